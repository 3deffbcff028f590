package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used by text mode.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Code    lipgloss.Style
	Key     lipgloss.Style

	// Selected and Candidate mark graph nodes.
	Selected  lipgloss.Style
	Candidate lipgloss.Style
}

// NewStyles builds the style set on the given lipgloss renderer.
func NewStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:      r.NewStyle().Bold(true),
		Muted:     r.NewStyle().Foreground(lipgloss.Color("8")),
		Success:   r.NewStyle().Foreground(lipgloss.Color("10")),
		Error:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		Warning:   r.NewStyle().Foreground(lipgloss.Color("11")),
		Code:      r.NewStyle().Foreground(lipgloss.Color("13")),
		Key:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		Selected:  r.NewStyle().Bold(true),
		Candidate: r.NewStyle().Underline(true).Foreground(lipgloss.Color("11")),
	}
}
