package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/pine/pkg/pine"
)

func TestCursor(t *testing.T) {
	var c Cursor
	assert.Nil(t, c.Index())

	c.SelectNext(-3)
	require.NotNil(t, c.Index())
	assert.Equal(t, 0, *c.Index())

	// No clamping until the graph is recomputed.
	c.SelectNext(10)
	assert.Equal(t, 10, *c.Index())

	i := c.Index()
	*i = 99
	assert.Equal(t, 10, *c.Index(), "Index returns a copy")

	c.Reset()
	assert.Nil(t, c.Index())

	c.Set(nil)
	assert.Nil(t, c.Index())
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode(" Graph ")
	require.NoError(t, err)
	assert.Equal(t, ModeGraph, got)

	_, err = ParseMode("documentation")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestMessageFromHints(t *testing.T) {
	assert.Equal(t, "", messageFromHints(pine.Hints{}))
	assert.Equal(t, "orders, sessions", messageFromHints(pine.Hints{Table: []pine.TableHint{
		{Pine: "orders"}, {Pine: "sessions"},
	}}))
}
