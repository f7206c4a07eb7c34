package ui

import (
	"image/color"

	"charm.land/lipgloss/v2"
)

type Theme struct {
	Header       lipgloss.Style
	Status       lipgloss.Style
	PanelTitle   lipgloss.Style
	PanelBorder  lipgloss.Style
	PanelBody    lipgloss.Style
	Banner       lipgloss.Style
	Accent       lipgloss.Style
	Pass         lipgloss.Style
	Fail         lipgloss.Style
	Pending      lipgloss.Style
	Muted        lipgloss.Style
	Cell         lipgloss.Style
	CellSelected lipgloss.Style
	CellCursor   lipgloss.Style
	CellSolved   lipgloss.Style
}

type palette struct {
	warn   color.Color
	good   color.Color
	bad    color.Color
	ink    color.Color
	slate  color.Color
	text   color.Color
	accent color.Color
	border color.Color
	muted  color.Color
	double bool
}

func DefaultTheme() Theme {
	return ThemeForVariant("modern_arcade")
}

func ThemeForVariant(variant string) Theme {
	switch variant {
	case "cozy_clean":
		return buildTheme(palette{
			warn:   lipgloss.Color("#F2B872"),
			good:   lipgloss.Color("#80C4A3"),
			bad:    lipgloss.Color("#D17A86"),
			ink:    lipgloss.Color("#1E2430"),
			slate:  lipgloss.Color("#30394A"),
			text:   lipgloss.Color("#F4F6FA"),
			accent: lipgloss.Color("#86B6F6"),
			border: lipgloss.Color("#4A5972"),
			muted:  lipgloss.Color("#A3ACC2"),
		})
	case "retro_terminal":
		return buildTheme(palette{
			warn:   lipgloss.Color("#E5D47A"),
			good:   lipgloss.Color("#9CF5A2"),
			bad:    lipgloss.Color("#FF6B6B"),
			ink:    lipgloss.Color("#07150A"),
			slate:  lipgloss.Color("#12301A"),
			text:   lipgloss.Color("#C5F7C4"),
			accent: lipgloss.Color("#9CF5A2"),
			border: lipgloss.Color("#1F5C2F"),
			muted:  lipgloss.Color("#73A17A"),
			double: true,
		})
	default:
		return buildTheme(palette{
			warn:   lipgloss.Color("#FFC857"),
			good:   lipgloss.Color("#67F0A8"),
			bad:    lipgloss.Color("#FF6F91"),
			ink:    lipgloss.Color("#0E1420"),
			slate:  lipgloss.Color("#1B2740"),
			text:   lipgloss.Color("#EAF2FF"),
			accent: lipgloss.Color("#5EEBFF"),
			border: lipgloss.Color("#4B5F8A"),
			muted:  lipgloss.Color("#9CAAC6"),
		})
	}
}

func buildTheme(p palette) Theme {
	banner := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(p.accent).
		Foreground(p.text).
		Padding(0, 1)
	if p.double {
		banner = banner.BorderStyle(lipgloss.DoubleBorder()).BorderForeground(p.warn)
	}
	return Theme{
		Header:       lipgloss.NewStyle().Background(p.ink).Foreground(p.text).Padding(0, 1),
		Status:       lipgloss.NewStyle().Background(p.slate).Foreground(p.text).Padding(0, 1),
		PanelTitle:   lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		PanelBorder:  lipgloss.NewStyle().Foreground(p.border),
		PanelBody:    lipgloss.NewStyle().Foreground(p.text),
		Banner:       banner,
		Accent:       lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		Pass:         lipgloss.NewStyle().Foreground(p.good).Bold(true),
		Fail:         lipgloss.NewStyle().Foreground(p.bad).Bold(true),
		Pending:      lipgloss.NewStyle().Foreground(p.warn),
		Muted:        lipgloss.NewStyle().Foreground(p.muted),
		Cell:         lipgloss.NewStyle().Foreground(p.text).Background(p.slate),
		CellSelected: lipgloss.NewStyle().Foreground(p.ink).Background(p.accent).Bold(true),
		CellCursor:   lipgloss.NewStyle().Foreground(p.ink).Background(p.warn).Bold(true),
		CellSolved:   lipgloss.NewStyle().Foreground(p.ink).Background(p.good).Bold(true),
	}
}
