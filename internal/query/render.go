package query

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/vcs"
)

var (
	noteStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	dirStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	commitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	hitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).PaddingRight(2)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// Printer renders query results as text. Colour is only used when enabled,
// typically when the output is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

func (p *Printer) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Directory prints one line per entry: last update, kind and name.
func (p *Printer) Directory(entries []Entry) {
	for _, e := range entries {
		kind, name, style := "dir", e.Name, dirStyle
		if e.IsNote() {
			kind, name, style = "note", fmt.Sprintf("%s (id: %s)", e.Name, e.Note.ID), noteStyle
		}
		fmt.Fprintf(p.w, "%s\t%s\t%s\n", e.LastUpdated.Local().Format("2006-01-02 15:04"), kind, p.paint(style, name))
	}
}

// Tree prints tree as a connected diagram under label.
func (p *Printer) Tree(tree *notes.FileTree, label string) {
	if label != "" {
		fmt.Fprintln(p.w, p.paint(dirStyle, label))
	}
	tree.Walk(func(e notes.WalkEntry) bool {
		var b strings.Builder
		for _, last := range e.Ancestors {
			if last {
				b.WriteString("    ")
			} else {
				b.WriteString("│   ")
			}
		}
		if e.IsLast {
			b.WriteString("└── ")
		} else {
			b.WriteString("├── ")
		}
		if e.Node.IsLeaf() {
			b.WriteString(p.paint(noteStyle, fmt.Sprintf("%s (id: %s)", e.Name, e.Node.Note.ID)))
		} else {
			b.WriteString(p.paint(dirStyle, e.Name))
		}
		fmt.Fprintln(p.w, b.String())
		return true
	})
}

// Notes prints a metadata table.
func (p *Printer) Notes(list []notes.Metadata) {
	rows := make([][]string, 0, len(list))
	for _, m := range list {
		rows = append(rows, []string{
			m.Path,
			string(m.ID),
			strings.Join(m.Tags, " "),
			m.Created.Local().Format(DateTimeFormat),
			m.LastUpdated.Local().Format(DateTimeFormat),
		})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(false).
		Headers("path", "id", "tags", "created", "last updated").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow && p.color {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(p.w, t.String())
}

// Matches prints search hits as "<note>: <line>" with the matched text
// highlighted. Historic hits are prefixed with their commit.
func (p *Printer) Matches(matches []Match) {
	for _, m := range matches {
		if m.Commit != nil {
			fmt.Fprintf(p.w, "%s - ", p.paint(commitStyle, m.Commit.ShortID))
		}
		fmt.Fprintf(p.w, "%s: ", p.paint(infoStyle, m.Note.InfoText()))

		pos := 0
		var b strings.Builder
		for _, span := range m.Spans {
			b.WriteString(m.Text[pos:span[0]])
			b.WriteString(p.paint(hitStyle, m.Text[span[0]:span[1]]))
			pos = span[1]
		}
		b.WriteString(m.Text[pos:])
		fmt.Fprintln(p.w, b.String())
	}
}

// Log prints one line per commit.
func (p *Printer) Log(commits []vcs.Commit) {
	for _, c := range commits {
		fmt.Fprintf(p.w, "%s (%s): %s\n",
			p.paint(commitStyle, c.ShortID), c.When.Local().Format(DateTimeFormat), c.Summary())
	}
}

// Resources prints a resource listing.
func (p *Printer) Resources(list []string) {
	fmt.Fprintln(p.w, "Resources:")
	for _, r := range list {
		fmt.Fprintln(p.w, r)
	}
}
