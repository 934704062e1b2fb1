package stores

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruner_RunOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	// A negative age makes every empty conversation eligible
	p := NewPruner(store, "", -time.Hour)
	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPruner_InvalidSchedule(t *testing.T) {
	store := newTestStore(t)

	p := NewPruner(store, "not a schedule", time.Hour)
	assert.Error(t, p.Start())
}

func TestPruner_StartStop(t *testing.T) {
	store := newTestStore(t)

	p := NewPruner(store, "@every 1h", time.Hour)
	require.NoError(t, p.Start())
	assert.Error(t, p.Start(), "second Start should fail")
	p.Stop()
	p.Stop()
}
