package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"barsim/internal/chart"
)

// Styles.
var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	symbolStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	priceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	emaStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var boardTimeframes = []string{"1Min", "5Min", "15Min"}

// board keeps the latest chart point per symbol and timeframe.
type board struct {
	latest map[string]map[string]chart.Point
	points int
	last   time.Time
}

func newBoard() *board {
	return &board{latest: make(map[string]map[string]chart.Point)}
}

func (b *board) add(p chart.Point) {
	byTF, ok := b.latest[p.Symbol]
	if !ok {
		byTF = make(map[string]chart.Point)
		b.latest[p.Symbol] = byTF
	}
	if cur, ok := byTF[p.Timeframe]; ok && p.Time.Before(cur.Time) {
		b.points++
		return
	}
	byTF[p.Timeframe] = p
	b.points++
	if p.Time.After(b.last) {
		b.last = p.Time
	}
}

func (b *board) symbols() []string {
	out := make([]string, 0, len(b.latest))
	for s := range b.latest {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// header is the one-line status bar.
func (b *board) header(addr string) string {
	last := "-"
	if !b.last.IsZero() {
		last = b.last.Format("2006-01-02 15:04")
	}
	return headerStyle.Render(fmt.Sprintf(" barsim chart feed %s  symbols: %d  points: %d  last: %s ",
		addr, len(b.latest), b.points, last))
}

// render draws one row per symbol with close, EMA and their spread for each
// timeframe.
func (b *board) render() string {
	var sb strings.Builder

	sb.WriteString(colHeaderStyle.Render(fmt.Sprintf("%-8s", "Symbol")))
	for _, tf := range boardTimeframes {
		sb.WriteString(colHeaderStyle.Render(fmt.Sprintf(" | %-5s %9s %9s %7s", tf, "Close", "EMA", "Δ%")))
	}
	sb.WriteString("\n")

	for _, sym := range b.symbols() {
		sb.WriteString(symbolStyle.Render(fmt.Sprintf("%-8s", sym)))
		for _, tf := range boardTimeframes {
			p, ok := b.latest[sym][tf]
			if !ok {
				sb.WriteString(dimStyle.Render(fmt.Sprintf(" | %-5s %9s %9s %7s", "", "-", "-", "-")))
				continue
			}
			sb.WriteString(" | ")
			sb.WriteString(dimStyle.Render(p.Time.Format("15:04")))
			sb.WriteString(priceStyle.Render(fmt.Sprintf(" %9.2f", p.Close)))
			sb.WriteString(emaStyle.Render(fmt.Sprintf(" %9.2f", p.EMA)))
			sb.WriteString(spread(p))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func spread(p chart.Point) string {
	if p.EMA == 0 {
		return dimStyle.Render(fmt.Sprintf(" %7s", "-"))
	}
	pct := (p.Close - p.EMA) / p.EMA * 100
	s := fmt.Sprintf(" %+7.2f", pct)
	if pct >= 0 {
		return gainStyle.Render(s)
	}
	return lossStyle.Render(s)
}
