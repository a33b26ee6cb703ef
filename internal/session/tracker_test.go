package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/dastan/internal/apperr"
)

func TestBegin_CancelsPrevious(t *testing.T) {
	tr := NewTracker()
	slot := Key("s1", "lookup")

	ctx1, t1 := tr.Begin(context.Background(), slot)
	ctx2, t2 := tr.Begin(context.Background(), slot)

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())
	assert.Equal(t, uint64(1), t1.Generation)
	assert.Equal(t, uint64(2), t2.Generation)

	assert.False(t, tr.Current(t1))
	assert.True(t, tr.Current(t2))
	assert.False(t, tr.Finish(t1))
	assert.True(t, tr.Finish(t2))
}

func TestBegin_SlotsAreIndependent(t *testing.T) {
	tr := NewTracker()
	ctxA, _ := tr.Begin(context.Background(), Key("s1", "lookup"))
	_, _ = tr.Begin(context.Background(), Key("s1", "summary"))
	_, _ = tr.Begin(context.Background(), Key("s2", "lookup"))

	assert.NoError(t, ctxA.Err())
}

func TestFinish_DropsSlot(t *testing.T) {
	tr := NewTracker()
	slot := Key("s1", "lookup")

	_, old := tr.Begin(context.Background(), slot)
	_, mid := tr.Begin(context.Background(), slot)
	require.True(t, tr.Finish(mid))
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, uint64(0), tr.Generation(slot))

	_, fresh := tr.Begin(context.Background(), slot)
	assert.Greater(t, fresh.Generation, mid.Generation)
	assert.False(t, tr.Finish(old), "late finisher must not be mistaken for the new request")
	assert.Equal(t, fresh.Generation, tr.Generation(slot))
	assert.True(t, tr.Finish(fresh))
	assert.Equal(t, 0, tr.Len())
}

func TestFinish_RecreatedSlotRejectsLateTicket(t *testing.T) {
	tr := NewTracker()
	slot := Key("s1", "lookup")

	_, first := tr.Begin(context.Background(), slot)
	_, second := tr.Begin(context.Background(), slot)
	require.True(t, tr.Finish(second))

	_, third := tr.Begin(context.Background(), slot)
	assert.NotEqual(t, first.Generation, third.Generation)
	assert.False(t, tr.Finish(first))
	assert.True(t, tr.Current(third))
}

func TestRun_ReleasesSlots(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 1000; i++ {
		_, _, err := Run(tr, context.Background(), Key(fmt.Sprintf("sess-%d", i), "lookup"), func(ctx context.Context) (int, error) {
			return i, nil
		})
		require.NoError(t, err)
	}
	_, _, err := Run(tr, context.Background(), "failing", func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 0, tr.Len())
}

func TestRun_LastRequestWins(t *testing.T) {
	tr := NewTracker()
	slot := Key("s1", "lookup")

	started := make(chan struct{})
	staleDone := make(chan error, 1)
	go func() {
		_, _, err := Run(tr, context.Background(), slot, func(ctx context.Context) (string, error) {
			close(started)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(2 * time.Second):
				return "old", nil
			}
		})
		staleDone <- err
	}()

	<-started
	got, _, err := Run(tr, context.Background(), slot, func(ctx context.Context) (string, error) {
		return "new", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	select {
	case err := <-staleDone:
		assert.True(t, errors.Is(err, apperr.ErrStale))
	case <-time.After(time.Second):
		t.Fatal("superseded request did not return")
	}
	assert.Equal(t, 0, tr.Len())
}

func TestRun_PropagatesError(t *testing.T) {
	tr := NewTracker()
	boom := errors.New("boom")
	_, _, err := Run(tr, context.Background(), "slot", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}
