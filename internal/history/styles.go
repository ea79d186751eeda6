package history

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = lipgloss.Color("39")
	colorDim    = lipgloss.Color("240")
	colorMuted  = lipgloss.Color("245")
	colorText   = lipgloss.Color("252")
	colorBright = lipgloss.Color("15")
	colorSelect = lipgloss.Color("24")
	colorBar    = lipgloss.Color("236")
	colorError  = lipgloss.Color("196")
)

var (
	paneBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())

	paneHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(colorText).
			Background(colorBar)

	itemTitle    = lipgloss.NewStyle().Bold(true)
	itemSubtitle = lipgloss.NewStyle().Foreground(colorMuted)

	selectedTitle    = itemTitle.Foreground(colorBright).Background(colorSelect)
	selectedSubtitle = lipgloss.NewStyle().Foreground(colorText).Background(colorSelect)

	fieldLabel = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Width(16)

	detailHeading = lipgloss.NewStyle().Bold(true).Foreground(colorBright).MarginBottom(1)

	dividerStyle    = lipgloss.NewStyle().Foreground(colorDim)
	hintStyle       = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	letterBodyStyle = lipgloss.NewStyle().Foreground(colorText)
	errorStyle      = lipgloss.NewStyle().Foreground(colorError)
)

// borderFor returns the pane border, highlighted when the pane has focus.
func borderFor(focused bool) lipgloss.Style {
	if focused {
		return paneBorder.BorderForeground(colorAccent)
	}
	return paneBorder.BorderForeground(colorDim)
}

func headerFor(focused bool) lipgloss.Style {
	if focused {
		return paneHeader.Foreground(colorAccent)
	}
	return paneHeader.Foreground(colorDim)
}
