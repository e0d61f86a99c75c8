package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, "42", decoded.ID)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	type row struct{ id string }
	rows := []*row{{id: "a"}, {id: "b"}, {id: "c"}}

	info := BuildCursorPageInfo(rows, 2, func(r *row) string { return r.id })
	require.True(t, info.HasMore)
	require.Equal(t, "b", info.NextPageToken)

	info = BuildCursorPageInfo(rows, 5, func(r *row) string { return r.id })
	require.False(t, info.HasMore)
	require.Empty(t, info.NextPageToken)
}

func TestClampPageSize(t *testing.T) {
	require.Equal(t, 50, ClampPageSize(0, 50))
	require.Equal(t, 10, ClampPageSize(10, 50))
	require.Equal(t, MaxPageSize, ClampPageSize(1000, 50))
}
