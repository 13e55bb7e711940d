package gcode

import (
	"bytes"
	"io"
)

// Parse reads every block of program.
func Parse(program []byte) ([]Block, error) {
	r := NewParser(bytes.NewReader(program))
	var b []Block
	for {
		bl, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		b = append(b, bl)
	}
	return b, nil
}

// Lines validates program and returns the cleaned text of every block, ready
// to be sent to a controller.
func Lines(program []byte) ([]string, error) {
	r := NewParser(bytes.NewReader(program))
	var lines []string
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, r.Text())
	}
	return lines, nil
}
