package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue(t *testing.T) {
	var q JobQueue

	prog := []byte("G0X1")
	assert.Equal(t, 1, q.Enqueue("a", prog))
	assert.Equal(t, 2, q.Enqueue("b", []byte("G0X2")))
	assert.Equal(t, 3, q.Enqueue("c", []byte("G0X3")))

	// queued program is a copy
	prog[3] = '9'

	assert.Equal(t, []JobEntry{{1, "a"}, {2, "b"}, {3, "c"}}, q.PeekAll())

	j := q.Pop()
	require.NotNil(t, j)
	assert.Equal(t, "a", j.Name)
	assert.Equal(t, []byte("G0X1"), j.Program)
	assert.Equal(t, JobPending, j.Status)
	assert.Equal(t, []JobEntry{{1, "b"}, {2, "c"}}, q.PeekAll())

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Pop())
	assert.Empty(t, q.PeekAll())
	assert.Equal(t, 0, q.Clear())
}
