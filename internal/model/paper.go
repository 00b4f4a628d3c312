package model

import (
	"strconv"
	"time"
)

// Provenance records how a paper entered the library.
type Provenance string

const (
	ProvenanceLocal  Provenance = "Local"
	ProvenanceRemote Provenance = "Remote"
	ProvenanceDOI    Provenance = "DOI"
	ProvenanceManual Provenance = "Manual"
)

var provenanceColors = map[Provenance]string{
	ProvenanceLocal:  "#9b59b6",
	ProvenanceRemote: "#2ecc71",
	ProvenanceDOI:    "#3498db",
	ProvenanceManual: "#f39c12",
}

// Color returns the display color of the provenance tag.
func (p Provenance) Color() string {
	if c, ok := provenanceColors[p]; ok {
		return c
	}
	return provenanceColors[ProvenanceManual]
}

// ReadStatus tracks whether a paper has been opened.
type ReadStatus string

const (
	Unread ReadStatus = "unread"
	Read   ReadStatus = "read"
)

// Placeholders used when a field was left empty on creation.
const (
	UnknownAuthor  = "Unknown Author"
	UnknownJournal = "Unknown Journal"
	UnknownPages   = "Unknown"
)

// Paper is one bibliographic item owned by the library.
type Paper struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Authors    string     `json:"authors"`
	Source     string     `json:"source"`
	Year       string     `json:"year"`
	Pages      string     `json:"pages"`
	Tag        Provenance `json:"tag"`
	TagColor   string     `json:"tagColor"`
	Starred    bool       `json:"starred"`
	ReadStatus ReadStatus `json:"readStatus"`
	PDFURL     *string    `json:"pdfUrl"`   // nil = no remote origin
	LocalURI   *string    `json:"localUri"` // nil = not materialized
	Folders    []string   `json:"folders"`
	Collection string     `json:"collection,omitempty"`
	AddedDate  time.Time  `json:"addedDate"`
	DOI        string     `json:"doi,omitempty"`
}

// NewPaperParams holds parameters for creating a new Paper.
type NewPaperParams struct {
	Title      string
	Authors    string
	Source     string
	Year       string
	Pages      string
	DOI        string
	PDFURL     *string
	LocalURI   *string
	Collection string

	// Provenance overrides the derived tag. Search imports set ProvenanceRemote.
	Provenance Provenance
}

// NewPaper creates a Paper with a time-based ID, creation defaults and a
// provenance tag derived from where it came from.
func NewPaper(params NewPaperParams) Paper {
	now := time.Now()

	authors := params.Authors
	if authors == "" {
		authors = UnknownAuthor
	}
	source := params.Source
	if source == "" {
		source = UnknownJournal
	}
	year := params.Year
	if year == "" {
		year = strconv.Itoa(now.Year())
	}
	pages := params.Pages
	if pages == "" {
		pages = UnknownPages
	}

	tag := params.Provenance
	switch {
	case params.LocalURI != nil:
		tag = ProvenanceLocal
	case tag != "":
	case params.DOI != "":
		tag = ProvenanceDOI
	default:
		tag = ProvenanceManual
	}

	return Paper{
		ID:         NewID(),
		Title:      params.Title,
		Authors:    authors,
		Source:     source,
		Year:       year,
		Pages:      pages,
		Tag:        tag,
		TagColor:   tag.Color(),
		Starred:    false,
		ReadStatus: Unread,
		PDFURL:     params.PDFURL,
		LocalURI:   params.LocalURI,
		Folders:    []string{},
		Collection: params.Collection,
		AddedDate:  now,
		DOI:        params.DOI,
	}
}

// CanOpen reports whether the paper has anything to open or download.
func (p Paper) CanOpen() bool {
	return deref(p.LocalURI) != "" || deref(p.PDFURL) != ""
}

// OpenURI returns the local copy when present, otherwise the remote URL.
func (p Paper) OpenURI() string {
	if uri := deref(p.LocalURI); uri != "" {
		return uri
	}
	return deref(p.PDFURL)
}

// InFolder reports whether the paper is a member of the folder.
func (p Paper) InFolder(folderID string) bool {
	for _, id := range p.Folders {
		if id == folderID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so mutators never share slices or pointers
// with their input.
func (p Paper) Clone() Paper {
	c := p
	c.Folders = append([]string{}, p.Folders...)
	if p.PDFURL != nil {
		v := *p.PDFURL
		c.PDFURL = &v
	}
	if p.LocalURI != nil {
		v := *p.LocalURI
		c.LocalURI = &v
	}
	return c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
