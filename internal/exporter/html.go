package exporter

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nikbrunner/paperstack/internal/model"
)

// DefaultExportPath returns the default export file path.
// Format: ~/Downloads/paperstack-export-YYYY-MM-DD.html
func DefaultExportPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("paperstack-export-%s.html", time.Now().Format("2006-01-02"))
	return filepath.Join(home, "Downloads", filename), nil
}

// ExportHTML writes the papers that have a link as a Netscape bookmark
// file. Every folder becomes a section, so a paper in two folders is
// listed twice; papers in no folder follow at the top level.
func ExportHTML(lib *model.Library) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	b.WriteString("<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	b.WriteString("<TITLE>Papers</TITLE>\n")
	b.WriteString("<H1>Papers</H1>\n")
	b.WriteString("<DL><p>\n")

	for _, folder := range lib.Folders {
		fmt.Fprintf(&b, "    <DT><H3 LAST_MODIFIED=\"%d\">%s</H3>\n", folder.Updated.Unix(), html.EscapeString(folder.Name))
		b.WriteString("    <DL><p>\n")
		for _, p := range lib.PapersInFolder(folder.ID) {
			writePaper(&b, p, 2)
		}
		b.WriteString("    </DL><p>\n")
	}

	for _, p := range lib.Papers {
		if len(p.Folders) == 0 {
			writePaper(&b, p, 1)
		}
	}

	b.WriteString("</DL><p>\n")
	return b.String()
}

func writePaper(b *strings.Builder, p model.Paper, indent int) {
	if p.PDFURL == nil || *p.PDFURL == "" {
		return
	}

	fmt.Fprintf(b, "%s<DT><A HREF=\"%s\" ADD_DATE=\"%d\"", strings.Repeat("    ", indent), html.EscapeString(*p.PDFURL), p.AddedDate.Unix())
	for _, attr := range []struct{ key, val string }{
		{"AUTHORS", p.Authors},
		{"JOURNAL", p.Source},
		{"YEAR", p.Year},
		{"DOI", p.DOI},
	} {
		if attr.val != "" {
			fmt.Fprintf(b, " %s=\"%s\"", attr.key, html.EscapeString(attr.val))
		}
	}
	fmt.Fprintf(b, ">%s</A>\n", html.EscapeString(p.Title))
}
