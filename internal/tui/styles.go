package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	ColorPrimary   = lipgloss.Color("#bd93f9") // Dracula Purple
	ColorSecondary = lipgloss.Color("#ff79c6") // Dracula Pink
	ColorSuccess   = lipgloss.Color("#50fa7b") // Dracula Green
	ColorError     = lipgloss.Color("#ff5555") // Dracula Red
	ColorWarning   = lipgloss.Color("#ffb86c") // Dracula Orange
	ColorText      = lipgloss.Color("#f8f8f2") // Dracula Foreground
	ColorSubtext   = lipgloss.Color("#6272a4") // Dracula Comment
	ColorBorder    = lipgloss.Color("#44475a") // Dracula Selection

	// Styles
	AppStyle = lipgloss.NewStyle().
			Padding(DefaultPaddingY, DefaultPaddingX).
			Foreground(ColorText)

	// Base Card Style
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(DefaultPaddingY, DefaultPaddingX)

	DoneCardStyle = CardStyle.
			BorderForeground(ColorSuccess)

	ErrorCardStyle = CardStyle.
			BorderForeground(ColorError)

	// Text inside the card
	CardTitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	CardStatsStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext).
			Italic(true)

	StatusLineStyle = lipgloss.NewStyle().
			Foreground(ColorSubtext)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorBorder)
)
