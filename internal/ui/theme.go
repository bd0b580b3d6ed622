package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme bundles palette + symbols + box borders.
// All UI helpers pull from `current`.
type Theme struct {
	Title, Muted, Accent, Success, Error, Pending lipgloss.Style
	Selected, Read                                lipgloss.Style

	BoxUnread, BoxRead string
	SymOK, SymFail     string
	SymWarn, SymInfo   string
	Border             lipgloss.Border
}

var current = classic()

// SetTheme switches between "classic", "neon" and "mono".
// Unknown names fall back to classic.
func SetTheme(name string) {
	switch strings.ToLower(name) {
	case "neon":
		current = Theme{
			Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("201")),
			Muted:    lipgloss.NewStyle().Faint(true),
			Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("51")),
			Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
			Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
			Pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
			Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("201")),
			Read:     lipgloss.NewStyle().Faint(true).Strikethrough(true),

			BoxUnread: "◻", BoxRead: "◼",
			SymOK: "✔", SymFail: "✖", SymWarn: "▲", SymInfo: "•",
			Border: lipgloss.RoundedBorder(),
		}
	case "mono":
		plain := lipgloss.NewStyle()
		current = Theme{
			Title: plain, Muted: plain, Accent: plain, Success: plain, Error: plain, Pending: plain,
			Selected: plain, Read: plain,

			BoxUnread: "[ ]", BoxRead: "[x]",
			SymOK: "ok", SymFail: "error:", SymWarn: "warning:", SymInfo: "-",
			Border: lipgloss.NormalBorder(),
		}
	default:
		current = classic()
	}
}

func classic() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Faint(true),
		Accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Selected: lipgloss.NewStyle().Bold(true).Reverse(true),
		Read:     lipgloss.NewStyle().Faint(true).Strikethrough(true),

		BoxUnread: "☐", BoxRead: "☑",
		SymOK: "✔", SymFail: "✖", SymWarn: "⚠", SymInfo: "•",
		Border: lipgloss.RoundedBorder(),
	}
}

// Current exposes what renderers need.
func Current() Theme { return current }
