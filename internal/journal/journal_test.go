package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/policy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := Record{
		UtteranceID: "u-1",
		Source:      "stdin",
		Text:        "앉아",
		Normalized:  "앉아",
		Intent:      intent.Sit,
		Action:      intent.Sit,
		Score:       2,
		Reason:      policy.ReasonAccepted,
		Accepted:    true,
		Sent:        true,
		Posture:     policy.PostureSit,
		HeardAt:     base,
		DecidedAt:   base.Add(3 * time.Millisecond),
	}
	second := Record{
		UtteranceID: "u-2",
		Source:      "stdin",
		Text:        "앉아",
		Normalized:  "앉아",
		Intent:      intent.Sit,
		Action:      intent.Sit,
		Score:       2,
		Reason:      policy.ReasonCooldown,
		Posture:     policy.PostureSit,
		HeardAt:     base.Add(time.Second),
		DecidedAt:   base.Add(time.Second),
	}
	third := Record{
		UtteranceID: "u-3",
		Source:      "ingress",
		Text:        "일어서",
		Normalized:  "일어서",
		Intent:      intent.StandUp,
		Action:      intent.RiseSit,
		Score:       3.5,
		Reason:      policy.ReasonSendFailed,
		Accepted:    true,
		Posture:     policy.PostureSit,
		Error:       "executor write failed: executor exited",
		HeardAt:     base.Add(5 * time.Second),
		DecidedAt:   base.Add(5 * time.Second),
	}

	for _, r := range []Record{first, second, third} {
		seq, err := s.Record(ctx, r)
		require.NoError(t, err)
		assert.Positive(t, seq)
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "u-3", got[0].UtteranceID)
	assert.Equal(t, intent.RiseSit, got[0].Action)
	assert.Equal(t, intent.StandUp, got[0].Intent)
	assert.Equal(t, policy.ReasonSendFailed, got[0].Reason)
	assert.True(t, got[0].Accepted)
	assert.False(t, got[0].Sent)
	assert.Equal(t, "executor write failed: executor exited", got[0].Error)
	assert.True(t, third.HeardAt.Equal(got[0].HeardAt))

	assert.Equal(t, "u-2", got[1].UtteranceID)
	assert.Empty(t, got[1].Error)
	assert.Equal(t, policy.PostureSit, got[1].Posture)
	assert.Greater(t, got[0].Seq, got[1].Seq)
}

func TestRecentDefaultLimit(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCountByReason(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, reason := range []policy.Reason{
		policy.ReasonAccepted, policy.ReasonAccepted, policy.ReasonCooldown, policy.ReasonNoMatch,
	} {
		_, err := s.Record(ctx, Record{UtteranceID: "u", Source: "t", Reason: reason, HeardAt: now, DecidedAt: now})
		require.NoError(t, err)
	}

	counts, err := s.CountByReason(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[policy.Reason]int{
		policy.ReasonAccepted: 2,
		policy.ReasonCooldown: 1,
		policy.ReasonNoMatch:  1,
	}, counts)
}
