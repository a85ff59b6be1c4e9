package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
)

var (
	orbShades     = []rune(" .:-=+*#%@")
	spectrumBlock = []rune("▁▂▃▄▅▆▇█")
)

// renderOrb draws the orb for a level in [0,1]. The orb is rows tall and
// 2*rows+1 cells wide since terminal cells are about twice as tall as wide.
// A silent orb keeps a little over half its full radius.
func renderOrb(level float64, rows int) string {
	if rows <= 0 {
		return ""
	}
	level = math.Max(0, math.Min(1, level))

	cols := rows*2 + 1
	cy := float64(rows-1) / 2
	cx := float64(cols-1) / 2
	radius := (cy + 0.5) * (0.55 + 0.45*level)

	lines := make([]string, rows)
	row := make([]rune, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			d := math.Hypot((float64(x)-cx)/2, float64(y)-cy)
			if d > radius {
				row[x] = ' '
				continue
			}
			// brighter toward the center, and overall with level
			t := (1-d/radius)*0.7 + level*0.3
			idx := 1 + int(t*float64(len(orbShades)-2)+0.5)
			row[x] = orbShades[min(idx, len(orbShades)-1)]
		}
		lines[y] = string(row)
	}
	return strings.Join(lines, "\n")
}

// renderSpectrum folds bins into width bars.
func renderSpectrum(bins []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(bins) == 0 {
		return strings.Repeat(string(spectrumBlock[0]), width)
	}

	var b strings.Builder
	for i := 0; i < width; i++ {
		lo := i * len(bins) / width
		hi := max(lo+1, (i+1)*len(bins)/width)
		var sum float64
		for _, v := range bins[lo:min(hi, len(bins))] {
			sum += v
		}
		avg := math.Max(0, math.Min(1, sum/float64(hi-lo)))
		b.WriteRune(spectrumBlock[int(avg*float64(len(spectrumBlock)-1)+0.5)])
	}
	return b.String()
}

// center pads s on the left so it sits in the middle of width.
func center(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return strings.Repeat(" ", (width-w)/2) + s
}

func truncateLine(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return truncate.StringWithTail(s, uint(width), ellipsis) //nolint:gosec
}

// clipLines keeps at most n lines of s, each cut to width. A cut is marked
// with an ellipsis line.
func clipLines(s string, n, width int) string {
	if s == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	cut := len(lines) > n
	if cut {
		lines = lines[:max(0, n-1)]
	}
	for i, l := range lines {
		lines[i] = truncate.StringWithTail(l, uint(max(0, width)), ellipsis) //nolint:gosec
	}
	if cut {
		lines = append(lines, dimStyle.Render("  "+ellipsis))
	}
	return strings.Join(lines, "\n")
}
