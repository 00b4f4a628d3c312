package picker

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nikbrunner/paperstack/internal/metadata"
	"github.com/nikbrunner/paperstack/internal/search"
)

var (
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	markStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	starStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true).
			MarginBottom(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))
)

// Item is one pickable line.
type Item struct {
	Title   string
	Detail  string
	Starred bool
}

// FromResults builds items from remote search results.
func FromResults(results []metadata.Result) []Item {
	items := make([]Item, len(results))
	for i, r := range results {
		detail := []string{}
		for _, s := range []string{r.Authors, r.Journal, r.Year, string(r.Source)} {
			if s != "" {
				detail = append(detail, s)
			}
		}
		items[i] = Item{Title: r.Title, Detail: strings.Join(detail, " · "), Starred: r.Starred}
	}
	return items
}

// FromPapers builds items from local search results.
func FromPapers(results []search.SearchResult) []Item {
	items := make([]Item, len(results))
	for i, r := range results {
		items[i] = Item{
			Title:   r.Paper.Title,
			Detail:  r.Paper.Authors + " · " + r.Paper.Year,
			Starred: r.Paper.Starred,
		}
	}
	return items
}

// Picker is a simple TUI for selecting one or more items. Space marks
// items; Enter confirms the marked items, or the one under the cursor
// when nothing is marked.
type Picker struct {
	items     []Item
	query     string
	cursor    int
	offset    int
	marked    map[int]bool
	selected  bool
	cancelled bool
	width     int
	height    int
}

// New creates a new Picker over items.
func New(items []Item, query string) Picker {
	return Picker{
		items:  items,
		query:  query,
		marked: make(map[int]bool),
		width:  80,
		height: 24,
	}
}

// Init implements tea.Model.
func (p Picker) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.scroll()
		return p, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			p.cancelled = true
			return p, tea.Quit

		case tea.KeyEnter:
			p.selected = len(p.items) > 0
			return p, tea.Quit

		case tea.KeySpace:
			p.toggle()
			return p, nil

		case tea.KeyDown:
			p.move(1)
			return p, nil

		case tea.KeyUp:
			p.move(-1)
			return p, nil
		}

		if msg.Type == tea.KeyRunes {
			switch string(msg.Runes) {
			case "j":
				p.move(1)
			case "k":
				p.move(-1)
			case " ":
				p.toggle()
			case "q":
				p.cancelled = true
				return p, tea.Quit
			}
		}
	}

	return p, nil
}

func (p *Picker) move(delta int) {
	next := p.cursor + delta
	if next < 0 || next >= len(p.items) {
		return
	}
	p.cursor = next
	p.scroll()
}

func (p *Picker) toggle() {
	if len(p.items) == 0 {
		return
	}
	if p.marked[p.cursor] {
		delete(p.marked, p.cursor)
	} else {
		p.marked[p.cursor] = true
	}
}

// visible is how many items fit between header and footer. Each item
// takes two lines.
func (p Picker) visible() int {
	return max((p.height-5)/2, 1)
}

func (p *Picker) scroll() {
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+p.visible() {
		p.offset = p.cursor - p.visible() + 1
	}
}

// View implements tea.Model.
func (p Picker) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("Search: %s (%d results)", p.query, len(p.items))))
	b.WriteString("\n\n")

	end := min(p.offset+p.visible(), len(p.items))
	for i := p.offset; i < end; i++ {
		item := p.items[i]
		cursor := "  "
		style := normalStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedStyle
		}
		mark := "[ ] "
		if p.marked[i] {
			mark = markStyle.Render("[x]") + " "
		}
		star := ""
		if item.Starred {
			star = " " + starStyle.Render("★")
		}

		fmt.Fprintf(&b, "%s%s%s%s\n", cursor, mark, style.Render(item.Title), star)
		fmt.Fprintf(&b, "       %s\n", detailStyle.Render(item.Detail))
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("j/k: move  space: mark  Enter: confirm  q/Esc: cancel"))

	return b.String()
}

// Selected returns the indexes of the chosen items in order, or nil if
// cancelled.
func (p Picker) Selected() []int {
	if p.cancelled || !p.selected {
		return nil
	}
	if len(p.marked) == 0 {
		return []int{p.cursor}
	}
	var out []int
	for i := range p.items {
		if p.marked[i] {
			out = append(out, i)
		}
	}
	return out
}

// Cancelled returns true if the user cancelled the selection.
func (p Picker) Cancelled() bool {
	return p.cancelled
}

// Run shows the picker on the terminal and returns the chosen indexes.
func Run(items []Item, query string) ([]int, error) {
	final, err := tea.NewProgram(New(items, query), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, err
	}
	return final.(Picker).Selected(), nil
}
