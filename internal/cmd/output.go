package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	borderColor  = lipgloss.Color("#6B7280")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(successColor)
	failStyle   = lipgloss.NewStyle().Foreground(errorColor)
	labelStyle  = lipgloss.NewStyle().Foreground(mutedColor)
)

// defaultWidth is assumed when the output is not a terminal.
const defaultWidth = 120

// terminal describes where command output goes.
type terminal struct {
	styled bool
	width  int
}

func detectTerminal(w io.Writer) terminal {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return terminal{width: defaultWidth}
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = defaultWidth
	}
	return terminal{styled: true, width: width}
}

// truncate shortens s to maxWidth visual columns, adding "..." if truncated.
// ANSI escape sequences in s are preserved.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

// status renders ok in green or red on a terminal, plain otherwise.
func (t terminal) status(ok bool, text string) string {
	if !t.styled {
		return text
	}
	if ok {
		return okStyle.Render(text)
	}
	return failStyle.Render(text)
}

func (t terminal) label(text string) string {
	if !t.styled {
		return text
	}
	return labelStyle.Render(text)
}

// table renders rows under headers. Terminals get a rounded, colored
// border; other writers get a plain ASCII one.
func (t terminal) table(headers []string, rows [][]string) string {
	tbl := table.New().Headers(headers...).Rows(rows...)
	if !t.styled {
		return tbl.Border(lipgloss.ASCIIBorder()).
			StyleFunc(func(int, int) lipgloss.Style { return cellStyle }).
			String()
	}
	return tbl.Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}
