package monitor

import (
	"fmt"
	"strings"

	"fundarb/internal/application/service"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	topN int
}

func NewFormatter(topN int) *Formatter {
	return &Formatter{topN: topN}
}

// Render produces one board line: the top pairings with their annualized
// spread, colored by the move since the previous tick.
func (f *Formatter) Render(st *State, view *service.BoardView) string {
	var sb strings.Builder
	sb.WriteString(colorize("[FUNDARB] ", ansiDim))

	rows := view.Rows
	if len(rows) > f.topN {
		rows = rows[:f.topN]
	}
	if len(rows) == 0 {
		sb.WriteString(colorize("no pairings", ansiYellow))
		return sb.String()
	}

	for i, row := range rows {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}
		col := ansiYellow
		switch st.DirFor(row.ID) {
		case DirUp:
			col = ansiGreen
		case DirDown:
			col = ansiRed
		}
		cell := fmt.Sprintf("%s %s/%s %+.2f%%",
			row.Symbol, row.LongExchange, row.ShortExchange, row.SpreadRate1yNominal*100)
		if row.NextCycleScore != nil {
			cell += fmt.Sprintf(" s=%+.4f", *row.NextCycleScore)
		}
		sb.WriteString(colorize(cell, col))
	}

	sb.WriteString(colorize(fmt.Sprintf("  [%d rows, %s]", len(view.Rows), view.SortedBy), ansiDim))
	return sb.String()
}
