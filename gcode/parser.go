package gcode

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Parser reads a program one block at a time.
type Parser struct {
	br   *bufio.Reader
	line int
	text string
}

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

var (
	rx        = regexp.MustCompile(`^([A-Z][0-9.\-+]+)+$`)
	rxSplit   = regexp.MustCompile(`[A-Z][0-9.\-+]+`)
	rxComment = regexp.MustCompile(`\([^)]*\)`)
)

// Clean strips comments and whitespace from a single line and uppercases it.
func Clean(s string) string {
	s = strings.SplitN(s, ";", 2)[0]
	s = rxComment.ReplaceAllString(s, "")
	s = strings.Replace(s, " ", "", -1)
	s = strings.Replace(s, "\t", "", -1)
	s = strings.TrimSpace(s)
	return strings.ToUpper(s)
}

// Text returns the cleaned source of the last block read, with every
// value exactly as written.
func (p *Parser) Text() string { return p.text }

// Line returns the number of the last line read.
func (p *Parser) Line() int { return p.line }

// Read returns the next non-empty block, or io.EOF.
func (p *Parser) Read() (Block, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}
		p.line++

		s = Clean(s)
		if s == "" || s == "%" {
			continue
		}
		if s[0] == '$' {
			return nil, fmt.Errorf("line %d: system command not allowed in program: %s", p.line, s)
		}

		if !rx.MatchString(s) {
			return nil, fmt.Errorf("line %d: invalid or unhandled line: %s", p.line, s)
		}

		codes := rxSplit.FindAllString(s, -1)
		res := make(Block, len(codes))

		for i, c := range codes {
			_, err = fmt.Sscanf(c, "%c%f", &res[i].W, &res[i].Arg)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", p.line, err)
			}
		}
		if err = res.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %v", p.line, err)
		}
		p.text = s

		return res, nil
	}
}
