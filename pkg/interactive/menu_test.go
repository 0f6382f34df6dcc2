package interactive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChoices(t *testing.T) {
	t.Parallel()

	options := []MenuOption{
		{Name: "Run Suite", Description: "Run every check"},
		{Name: "Show Config", Description: "Print configuration"},
	}

	assert.Equal(t, []string{
		"Run Suite - Run every check",
		"Show Config - Print configuration",
		"Exit",
	}, Choices(options))
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	called := ""
	boom := errors.New("boom")

	options := []MenuOption{
		{Name: "A", Description: "first", Action: func() error { called = "A"; return nil }},
		{Name: "B", Description: "second", Action: func() error { called = "B"; return boom }},
	}

	require.NoError(t, Dispatch(options, "A - first"))
	assert.Equal(t, "A", called)

	require.ErrorIs(t, Dispatch(options, "B - second"), boom)
	assert.Equal(t, "B", called)

	require.ErrorIs(t, Dispatch(options, "Exit"), ErrExit)
	require.ErrorIs(t, Dispatch(options, "C - missing"), ErrInvalidSelection)
}
