package config

import (
	"bufio"
	"io"
	"strings"

	"github.com/CodeStranger-Fred/bishop/mdp"
)

// Grid is a terrain layout read from a map text file.
type Grid struct {
	Width  int
	Height int
	Types  []int
	Names  []string
}

// ParseGrid reads the map text format: one row of single-digit terrain
// labels per line, a blank line, then one terrain name per line.
//
//	00000
//	01110
//	00000
//
//	grass
//	mud
func ParseGrid(r io.Reader) (*Grid, error) {
	const op = "config.ParseGrid"
	g := &Grid{}
	rows := true
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimRight(sc.Text(), " \t\r")
		if rows {
			if text == "" {
				if g.Height > 0 {
					rows = false
				}
				continue
			}
			text = strings.TrimLeft(text, " \t")
			if g.Height > 0 && len(text) != g.Width {
				return nil, mdp.Configf(op, "line %d has %d cells, earlier rows have %d", line, len(text), g.Width)
			}
			for _, ch := range text {
				if ch < '0' || ch > '9' {
					return nil, mdp.Configf(op, "line %d: %q is not a terrain digit", line, ch)
				}
				g.Types = append(g.Types, int(ch-'0'))
			}
			g.Width = len(text)
			g.Height++
			continue
		}
		if name := strings.TrimSpace(text); name != "" {
			g.Names = append(g.Names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, mdp.Configf(op, "read map: %v", err)
	}
	if g.Height == 0 {
		return nil, mdp.Configf(op, "map has no rows")
	}
	return g, nil
}
