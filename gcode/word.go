package gcode

import (
	"strconv"
	"strings"
)

// Word is a single letter/value pair, like `G1` or `X-2.5`.
type Word struct {
	W   byte
	Arg float64
}

func (w Word) IsValid() bool {
	return w.W >= 'A' && w.W <= 'Z'
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// String formats the word with up to 4 decimal places (enough for inch programs).
func (w Word) String() string {
	return string(w.W) + formatFloat(w.Arg, 4)
}
