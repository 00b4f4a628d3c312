package model

import "time"

// FolderColors is the palette new folders pick from.
var FolderColors = []string{
	"#FFA726", "#42A5F5", "#EC407A", "#26A69A", "#7E57C2",
	"#FFD600", "#00B8D4", "#FF7043", "#5C6BC0", "#66BB6A",
}

// DefaultFolderIcon is the icon assigned to user folders.
const DefaultFolderIcon = "folder"

// Folder is a user-defined grouping container. Count caches the number of
// papers whose Folders contain ID.
type Folder struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Color   string    `json:"color"`
	Icon    string    `json:"icon"`
	Updated time.Time `json:"updated"`
	Count   int       `json:"count"`
}

// NewFolderParams holds parameters for creating a new Folder.
type NewFolderParams struct {
	Name  string
	Color string
}

// NewFolder creates an empty Folder with a time-based ID.
func NewFolder(params NewFolderParams) Folder {
	color := params.Color
	if color == "" {
		color = FolderColors[0]
	}
	return Folder{
		ID:      NewID(),
		Name:    params.Name,
		Color:   color,
		Icon:    DefaultFolderIcon,
		Updated: time.Now(),
		Count:   0,
	}
}

// DefaultFolders returns the folders seeded into an empty library.
func DefaultFolders() []Folder {
	now := time.Now()
	return []Folder{
		{ID: "1", Name: "Project Z", Color: FolderColors[0], Icon: DefaultFolderIcon, Updated: now},
		{ID: "2", Name: "Literature Review", Color: FolderColors[1], Icon: DefaultFolderIcon, Updated: now},
	}
}
