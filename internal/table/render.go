package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
)

// Renderer draws views to a terminal.
type Renderer struct {
	w      io.Writer
	header lipgloss.Style
	cell   lipgloss.Style
	muted  lipgloss.Style
	border lipgloss.Style
}

// NewRenderer returns a renderer writing to w. Without color only the
// border characters are drawn.
func NewRenderer(w io.Writer, color bool) *Renderer {
	r := lipgloss.NewRenderer(w)
	rd := &Renderer{
		w:      w,
		header: r.NewStyle().Padding(0, 1),
		cell:   r.NewStyle().Padding(0, 1),
		muted:  r.NewStyle(),
		border: r.NewStyle(),
	}
	if color {
		rd.header = rd.header.Bold(true).Foreground(lipgloss.Color("69"))
		rd.muted = rd.muted.Foreground(lipgloss.Color("241"))
		rd.border = rd.border.Foreground(lipgloss.Color("238"))
	}
	return rd
}

// Render writes the view. The loading state prints only its message; the
// empty state prints the header followed by the message.
func Render[T any](rd *Renderer, v View[T]) error {
	switch v.State {
	case StateLoading:
		_, err := fmt.Fprintln(rd.w, rd.muted.Render(v.Message))
		return err
	case StateEmpty:
		if len(v.Headers) > 0 {
			if _, err := fmt.Fprintln(rd.w, rd.grid(v.Headers, nil)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintln(rd.w, rd.muted.Render(v.Message))
		return err
	}

	rows := make([][]string, 0, len(v.Rows))
	for _, row := range v.Rows {
		cells := append([]string(nil), row.Cells...)
		if v.HasActions {
			cells = append(cells, strings.Join(row.ActionLabels(), " · "))
		}
		rows = append(rows, cells)
	}
	_, err := fmt.Fprintln(rd.w, rd.grid(v.Headers, rows))
	return err
}

// RenderPagination writes a "Page x of y" footer when the list spans more
// than one page.
func (rd *Renderer) RenderPagination(p Pagination) error {
	if !p.Visible() {
		return nil
	}
	first, last := p.Window()
	var nav []string
	if p.HasPrev() {
		nav = append(nav, fmt.Sprintf("prev: --page %d", p.Prev()))
	}
	if p.HasNext() {
		nav = append(nav, fmt.Sprintf("next: --page %d", p.Next()))
	}
	line := fmt.Sprintf("Page %d of %d (%d-%d of %d)", p.Page, p.TotalPages(), first, last, p.TotalCount)
	if len(nav) > 0 {
		line += "  " + strings.Join(nav, "  ")
	}
	_, err := fmt.Fprintln(rd.w, rd.muted.Render(line))
	return err
}

func (rd *Renderer) grid(headers []string, rows [][]string) string {
	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(rd.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return rd.header
			}
			return rd.cell
		})
	return t.String()
}
