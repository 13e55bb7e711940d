package gcode

import (
	"errors"
	"strings"
)

// Block is one line of a program.
type Block []Word

func (b Block) String() string {
	var sb strings.Builder
	for _, w := range b {
		sb.WriteString(w.String())
	}
	return sb.String()
}

// Validate checks for unknown letters and repeated words.
//
// G and M words may appear more than once.
func (b Block) Validate() error {
	var seen [256]bool
	for _, g := range b {
		if !g.IsValid() {
			return errors.New("invalid word in block")
		}
		if g.W != 'G' && g.W != 'M' && seen[g.W] {
			return errors.New("word was repeated in a block: " + string(g.W))
		}
		seen[g.W] = true
	}
	return nil
}
