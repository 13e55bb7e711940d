package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mastercactapus/grblhc/coord"
)

// Status is a parsed Grbl 1.1 status report.
type Status struct {
	State string
	MPos  coord.Point
	WCO   coord.Point

	Feed    float64
	Spindle float64

	Raw string
}

// WPos returns the work position.
func (s Status) WPos() coord.Point { return s.MPos.Sub(s.WCO) }

// parseStatus reads a report like `<Idle|MPos:0.000,0.000,0.000|FS:0,0>`.
//
// Grbl only sends WCO every few reports, so fields missing from data keep
// their value from prev.
func parseStatus(prev Status, data string) (*Status, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "<") || !strings.HasSuffix(data, ">") {
		return nil, errors.New("not a status report: " + data)
	}
	stat := prev
	stat.Raw = data
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.State = parts[0]

	var wPos *coord.Point
	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = coord.ParsePoint(sParts[1])
		case "WPos":
			var p coord.Point
			p, err = coord.ParsePoint(sParts[1])
			wPos = &p
		case "WCO":
			stat.WCO, err = coord.ParsePoint(sParts[1])
		case "FS":
			stat.Feed, stat.Spindle, err = parsePair(sParts[1])
		case "F":
			stat.Feed, err = strconv.ParseFloat(sParts[1], 64)
		}
		if err != nil {
			return nil, errors.New("parse " + sParts[0] + ": " + err.Error())
		}
	}
	if wPos != nil {
		stat.MPos = wPos.Add(stat.WCO)
	}

	return &stat, nil
}

func parsePair(data string) (a, b float64, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 2 {
		return 0, 0, errors.New("invalid number of elements")
	}
	a, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, err
	}
	b, err = strconv.ParseFloat(parts[1], 64)
	return a, b, err
}
