package source

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

func TestFetchPages_KeepsPaginationOrder(t *testing.T) {
	t.Parallel()

	got, err := fetchPages(t.Context(), 7, 3,
		func(_ domain.Context, page int) (int, error) { return page * 10, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60}, got)
}

func TestFetchPages_StopAfterEndsEarly(t *testing.T) {
	t.Parallel()

	var fetched int32
	got, err := fetchPages(t.Context(), 10, 2,
		func(_ domain.Context, page int) (int, error) {
			atomic.AddInt32(&fetched, 1)
			return page, nil
		},
		func(batch []int) bool { return batch[len(batch)-1] >= 3 })
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, got, "pagination ends with the batch that tripped the stop")
	assert.Equal(t, int32(4), atomic.LoadInt32(&fetched))
}

func TestFetchPages_BatchFailsAsUnit(t *testing.T) {
	t.Parallel()

	feedDown := errors.New("feed down")
	_, err := fetchPages(t.Context(), 4, 2,
		func(_ domain.Context, page int) (int, error) {
			if page == 1 {
				return 0, feedDown
			}
			return page, nil
		}, nil)
	require.ErrorIs(t, err, feedDown)
}

func TestFetchPages_BatchSizeFloor(t *testing.T) {
	t.Parallel()

	got, err := fetchPages(t.Context(), 3, 0,
		func(_ domain.Context, page int) (int, error) { return page, nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestFetchPages_NoPages(t *testing.T) {
	t.Parallel()

	got, err := fetchPages(t.Context(), 0, 5,
		func(_ domain.Context, _ int) (int, error) { return 0, nil }, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
