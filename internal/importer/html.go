package importer

import (
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nikbrunner/paperstack/internal/library"
)

// ParseHTMLPapers parses a Netscape bookmark file into paper links. Each
// link carries the names of the folders it is nested in; the AUTHORS,
// JOURNAL, YEAR and DOI attributes written by the exporter are read back
// when present.
func ParseHTMLPapers(r io.Reader) ([]library.ImportedPaper, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var papers []library.ImportedPaper

	var folderStack []string  // names of the enclosing folders
	var pendingFolder *string // folder waiting to be pushed on next DL

	var parse func(*html.Node)
	parse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "h3":
				if name := getTextContent(n); name != "" {
					pendingFolder = &name
				}
				return

			case "a":
				href := strings.TrimSpace(getAttr(n, "href"))
				if href == "" {
					return
				}

				title := getTextContent(n)
				if title == "" {
					title = href
				}

				var added time.Time
				if addDate := getAttr(n, "add_date"); addDate != "" {
					if ts, err := strconv.ParseInt(addDate, 10, 64); err == nil {
						added = time.Unix(ts, 0)
					}
				}

				papers = append(papers, library.ImportedPaper{
					Title:     title,
					URL:       href,
					Authors:   getAttr(n, "authors"),
					Source:    getAttr(n, "journal"),
					Year:      getAttr(n, "year"),
					DOI:       getAttr(n, "doi"),
					Folders:   append([]string{}, folderStack...),
					AddedDate: added,
				})
				return

			case "dl":
				pushed := false
				if pendingFolder != nil {
					folderStack = append(folderStack, *pendingFolder)
					pendingFolder = nil
					pushed = true
				}

				for c := n.FirstChild; c != nil; c = c.NextSibling {
					parse(c)
				}

				if pushed {
					folderStack = folderStack[:len(folderStack)-1]
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			parse(c)
		}
	}

	parse(doc)
	return papers, nil
}

// getTextContent returns the text content of a node.
func getTextContent(n *html.Node) string {
	var text strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(text.String()), " ")
}

// getAttr returns the value of an attribute, case-insensitive.
func getAttr(n *html.Node, key string) string {
	key = strings.ToLower(key)
	for _, attr := range n.Attr {
		if strings.ToLower(attr.Key) == key {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}
