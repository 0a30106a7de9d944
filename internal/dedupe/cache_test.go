package dedupe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) IsProcessed(ctx context.Context, canonicalURL string) (bool, error) {
	args := m.Called(ctx, canonicalURL)
	return args.Bool(0), args.Error(1)
}

func (m *mockRegistry) Record(ctx context.Context, canonicalURL string, status scrape.ProcessedStatus) error {
	args := m.Called(ctx, canonicalURL, status)
	return args.Error(0)
}

func TestCacheRemembersPositiveLookups(t *testing.T) {
	t.Parallel()

	reg := &mockRegistry{}
	ctx := context.Background()
	reg.On("IsProcessed", ctx, "example.com/a").Return(true, nil).Once()
	reg.On("IsProcessed", ctx, "example.com/b").Return(false, nil).Twice()

	cache, err := New(reg, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, err := cache.IsProcessed(ctx, "example.com/a")
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < 2; i++ {
		ok, err := cache.IsProcessed(ctx, "example.com/b")
		require.NoError(t, err)
		require.False(t, ok)
	}
	reg.AssertExpectations(t)
	require.Equal(t, 1, cache.Len())
}

func TestCacheRecordWritesThrough(t *testing.T) {
	t.Parallel()

	reg := &mockRegistry{}
	ctx := context.Background()
	reg.On("Record", ctx, "example.com/a", scrape.ProcessedTrash).Return(nil).Once()

	cache, err := New(reg, 8)
	require.NoError(t, err)
	require.NoError(t, cache.Record(ctx, "example.com/a", scrape.ProcessedTrash))

	ok, err := cache.IsProcessed(ctx, "example.com/a")
	require.NoError(t, err)
	require.True(t, ok)
	reg.AssertExpectations(t)
}

func TestCacheRecordFailureIsNotCached(t *testing.T) {
	t.Parallel()

	reg := &mockRegistry{}
	ctx := context.Background()
	reg.On("Record", ctx, "example.com/a", scrape.ProcessedProcessed).Return(errors.New("db down")).Once()
	reg.On("IsProcessed", ctx, "example.com/a").Return(false, nil).Once()

	cache, err := New(reg, 8)
	require.NoError(t, err)
	require.Error(t, cache.Record(ctx, "example.com/a", scrape.ProcessedProcessed))

	ok, err := cache.IsProcessed(ctx, "example.com/a")
	require.NoError(t, err)
	require.False(t, ok)
	reg.AssertExpectations(t)
}

func TestNewRequiresRegistry(t *testing.T) {
	t.Parallel()

	_, err := New(nil, 0)
	require.Error(t, err)
}
