package history

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"

	"github.com/amishk599/autoapply/internal/model"
)

// rowsPerItem is the height of one application in a list pane
// (title, subtitle, blank separator).
const rowsPerItem = 3

// pane is one scrollable list of applications with its own cursor.
type pane struct {
	title  string
	items  []model.Application
	cursor int
	vp     viewport.Model
}

func (p *pane) setItems(items []model.Application) {
	p.items = items
	p.cursor = clamp(p.cursor, 0, max(len(items)-1, 0))
}

func (p *pane) move(delta int) {
	p.cursor = clamp(p.cursor+delta, 0, max(len(p.items)-1, 0))
	p.scrollToCursor()
}

func (p *pane) selected() (model.Application, bool) {
	if len(p.items) == 0 {
		return model.Application{}, false
	}
	return p.items[p.cursor], true
}

func (p *pane) resize(width, height int) {
	p.vp.Width = width
	p.vp.Height = height
}

// scrollToCursor keeps the selected item inside the viewport.
func (p *pane) scrollToCursor() {
	top := p.cursor * rowsPerItem
	bottom := top + rowsPerItem - 1
	switch {
	case top < p.vp.YOffset:
		p.vp.SetYOffset(top)
	case bottom >= p.vp.YOffset+p.vp.Height:
		p.vp.SetYOffset(bottom - p.vp.Height + 1)
	}
}

func (p *pane) refresh(focused bool) {
	p.vp.SetContent(p.render(focused))
}

func (p *pane) render(focused bool) string {
	if len(p.items) == 0 {
		return "  (no applications)"
	}
	rows := make([]string, 0, len(p.items))
	for i, a := range p.items {
		title, sub, marker := itemTitle, itemSubtitle, "  "
		if focused && i == p.cursor {
			title, sub, marker = selectedTitle, selectedSubtitle, "> "
		}
		rows = append(rows,
			marker+title.Render(a.JobTitle+" @ "+a.Company)+"\n"+
				marker+sub.Render(fmt.Sprintf("%s · %s · %.2f",
					a.AppliedAt.Local().Format("2006-01-02"), a.Status, a.MatchScore)))
	}
	return strings.Join(rows, "\n\n")
}

func (p *pane) view(focused bool) string {
	return borderFor(focused).Width(p.vp.Width).Render(p.vp.View())
}

func (p *pane) header(focused bool) string {
	return headerFor(focused).Render(fmt.Sprintf(" %s (%d)", p.title, len(p.items)))
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
