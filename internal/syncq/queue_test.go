package syncq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDeduplicatesByKey(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)

	empty, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	cmd := Command{Method: "POST", Path: "/v1/pulls", Body: map[string]any{"count": 2}, IdempotencyKey: "k1"}
	require.NoError(t, q.Push(cmd))
	require.NoError(t, q.Push(cmd))
	require.NoError(t, q.Push(Command{Method: "POST", Path: "/v1/pulls", IdempotencyKey: "k2"}))

	all, err := q.Load()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "k1", all[0].IdempotencyKey)
	assert.False(t, all[0].QueuedAt.IsZero())
	assert.EqualValues(t, 2, all[0].Body["count"])
}

func TestReplayKeepsOnlyRequested(t *testing.T) {
	q, err := Open(t.TempDir())
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(Command{Method: "POST", Path: "/v1/pulls", IdempotencyKey: k}))
	}

	var seen []string
	dropped, err := q.Replay(func(c Command) Outcome {
		seen = append(seen, c.IdempotencyKey)
		if c.IdempotencyKey == "b" {
			return Keep
		}
		return Done
	})
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	left, err := q.Load()
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].IdempotencyKey)
}
