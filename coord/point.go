// Package coord holds machine coordinates.
package coord

import (
	"errors"
	"strconv"
	"strings"
)

// Point is a position on the X, Y and Z axes, in millimeters.
type Point struct{ X, Y, Z float64 }

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// ParsePoint reads a comma separated "x,y,z" triple. Extra axes are ignored.
func ParsePoint(data string) (p Point, err error) {
	parts := strings.Split(strings.TrimSpace(data), ",")
	if len(parts) < 3 {
		return p, errors.New("invalid number of elements")
	}
	for i, dst := range []*float64{&p.X, &p.Y, &p.Z} {
		*dst, err = strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func (p Point) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	return f(p.X) + "," + f(p.Y) + "," + f(p.Z)
}
