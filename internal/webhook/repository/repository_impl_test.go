package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/shelfpay/internal/ledgertest"
	"github.com/smallbiznis/shelfpay/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var base = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func TestInsertIsIdempotent(t *testing.T) {
	conn := ledgertest.NewDB(t)
	r := Provide()
	ev := &domain.Event{ID: "evt_1", EventType: "charge.refunded", Payload: datatypes.JSON(`{"id":"evt_1"}`), CreatedAt: base, UpdatedAt: base}

	ok, err := r.Insert(context.Background(), conn, ev)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Insert(context.Background(), conn, ev)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.FindByID(context.Background(), conn, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, got.Processed)
	assert.JSONEq(t, `{"id":"evt_1"}`, string(got.Payload))
}

func TestReclaim(t *testing.T) {
	conn := ledgertest.NewDB(t)
	r := Provide()
	ctx := context.Background()
	stale := base.Add(-time.Hour)

	_, err := r.Insert(ctx, conn, &domain.Event{ID: "evt_1", EventType: "x", Payload: datatypes.JSON(`{}`), CreatedAt: base, UpdatedAt: base})
	require.NoError(t, err)

	// In flight: neither retryable nor stale.
	ok, err := r.Reclaim(ctx, conn, "evt_1", stale, base)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.MarkRetryable(ctx, conn, "evt_1", "order_not_found", base))
	ok, err = r.Reclaim(ctx, conn, "evt_1", stale, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// A second redelivery racing the first loses.
	ok, err = r.Reclaim(ctx, conn, "evt_1", stale, base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// Left unmarked past the stale horizon.
	ok, err = r.Reclaim(ctx, conn, "evt_1", base.Add(2*time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.MarkProcessed(ctx, conn, "evt_1", base.Add(3*time.Hour)))
	ok, err = r.Reclaim(ctx, conn, "evt_1", base.Add(24*time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.FindByID(ctx, conn, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	assert.True(t, got.Resolved())
}

func TestReclaimForReplayAcceptsFailedRows(t *testing.T) {
	conn := ledgertest.NewDB(t)
	r := Provide()
	ctx := context.Background()

	_, err := r.Insert(ctx, conn, &domain.Event{ID: "evt_1", EventType: "x", Payload: datatypes.JSON(`{}`), CreatedAt: base, UpdatedAt: base})
	require.NoError(t, err)
	require.NoError(t, r.MarkFailed(ctx, conn, "evt_1", "integrity_violation", base))

	ok, err := r.Reclaim(ctx, conn, "evt_1", base.Add(time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.ReclaimForReplay(ctx, conn, "evt_1", base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := r.FindByID(ctx, conn, "evt_1")
	require.NoError(t, err)
	assert.False(t, got.Processed)
	assert.Nil(t, got.ProcessingError)
}

func TestListUnresolvedPages(t *testing.T) {
	conn := ledgertest.NewDB(t)
	r := Provide()
	ctx := context.Background()

	for i, id := range []string{"evt_a", "evt_b", "evt_c", "evt_d"} {
		at := base.Add(time.Duration(i) * time.Minute)
		_, err := r.Insert(ctx, conn, &domain.Event{ID: id, EventType: "x", Payload: datatypes.JSON(`{}`), CreatedAt: at, UpdatedAt: at})
		require.NoError(t, err)
	}
	require.NoError(t, r.MarkProcessed(ctx, conn, "evt_b", base))
	require.NoError(t, r.MarkFailed(ctx, conn, "evt_c", "boom", base))

	count, err := r.CountUnresolved(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	page, err := r.ListUnresolved(ctx, conn, domain.ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "evt_a", page[0].ID)

	page, err = r.ListUnresolved(ctx, conn, domain.ListFilter{
		Limit:  5,
		Cursor: &domain.Cursor{ID: page[0].ID, CreatedAt: page[0].CreatedAt},
	})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "evt_c", page[0].ID)
	assert.Equal(t, "evt_d", page[1].ID)
}
