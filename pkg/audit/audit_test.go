package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	r := openTestRecorder(t)

	r.Record(ctx, "CLM-AB12CD34EF", EventClaimCreated, "")
	r.Record(ctx, "CLM-AB12CD34EF", EventStageChanged, "NEW -> QUESTIONED")
	r.Record(ctx, "CLM-0000000001", EventMailIngested, "uid=7")

	events, err := r.List(ctx, "CLM-AB12CD34EF")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventClaimCreated, events[0].Kind)
	assert.Equal(t, "NEW -> QUESTIONED", events[1].Detail)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestListEmptyClaim(t *testing.T) {
	r := openTestRecorder(t)
	events, err := r.List(context.Background(), "CLM-NOPE")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestNopSinkIsSilent(t *testing.T) {
	var sink Sink = Nop{}
	sink.Record(context.Background(), "CLM-AB12CD34EF", EventClaimCreated, "")
}
