package devicetest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice(t *testing.T) {
	d := New(nil)

	require.NoError(t, d.Write([]byte("\x18")))
	assert.Equal(t, []byte(Banner), d.ReadLine(time.Millisecond))

	require.NoError(t, d.Write([]byte("G0X1\n")))
	assert.Equal(t, []byte("ok"), d.ReadLine(time.Millisecond))

	require.NoError(t, d.Write([]byte("!")))
	assert.Equal(t, 0, d.InWaiting())

	assert.Equal(t, []string{"\x18", "G0X1\n", "!"}, d.Writes())
	assert.Equal(t, 1, d.Count("!"))

	require.NoError(t, d.Close())
	assert.True(t, d.Closed())
	assert.Equal(t, ErrClosed, d.Write([]byte("?")))
}
