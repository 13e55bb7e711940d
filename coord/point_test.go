package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoint_Add(t *testing.T) {
	a := Point{X: 1, Y: 2, Z: 3}
	b := Point{X: 4, Y: 5, Z: 6}

	assert.Equal(t, Point{X: 5, Y: 7, Z: 9}, a.Add(b))
	assert.Equal(t, a, a.Add(b).Sub(b))
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint("1.000,-2.5,30.125")
	assert.NoError(t, err)
	assert.Equal(t, Point{X: 1, Y: -2.5, Z: 30.125}, p)
	assert.Equal(t, "1.000,-2.500,30.125", p.String())

	// 4th axis is dropped
	p, err = ParsePoint("1,2,3,4")
	assert.NoError(t, err)
	assert.Equal(t, Point{X: 1, Y: 2, Z: 3}, p)

	_, err = ParsePoint("1,2")
	assert.Error(t, err)

	_, err = ParsePoint("1,x,3")
	assert.Error(t, err)
}
