package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	Store
	closed bool
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func TestRegistry_CachesPerModeAndTenant(t *testing.T) {
	ctx := context.Background()
	builds := 0
	r := NewRegistry(func(ctx context.Context, mode Mode, uid int64) (Store, error) {
		builds++
		return &fakeStore{}, nil
	})

	a, err := r.Get(ctx, ModeLocal, 0)
	require.NoError(t, err)
	b, err := r.Get(ctx, ModeLocal, 0)
	require.NoError(t, err)
	assert.Same(t, a, b, "same key must reuse the cached instance")
	assert.Equal(t, 1, builds)

	_, err = r.Get(ctx, ModeRemote, 0)
	require.NoError(t, err)
	_, err = r.Get(ctx, ModeLocal, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, builds, "mode and tenant are separate cache keys")
}

func TestRegistry_FactoryErrorNotCached(t *testing.T) {
	ctx := context.Background()
	fail := true
	r := NewRegistry(func(ctx context.Context, mode Mode, uid int64) (Store, error) {
		if fail {
			return nil, errors.New("open failed")
		}
		return &fakeStore{}, nil
	})

	_, err := r.Get(ctx, ModeLocal, 0)
	require.Error(t, err)

	fail = false
	s, err := r.Get(ctx, ModeLocal, 0)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestRegistry_InvalidateClosesAndRebuilds(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(func(ctx context.Context, mode Mode, uid int64) (Store, error) {
		return &fakeStore{}, nil
	})

	a, err := r.Get(ctx, ModeRemote, 3)
	require.NoError(t, err)

	require.NoError(t, r.Invalidate(ModeRemote, 3))
	assert.True(t, a.(*fakeStore).closed)

	require.NoError(t, r.Invalidate(ModeRemote, 3), "invalidating a missing key is a no-op")

	b, err := r.Get(ctx, ModeRemote, 3)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestRegistry_CloseAll(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(func(ctx context.Context, mode Mode, uid int64) (Store, error) {
		return &fakeStore{}, nil
	})

	a, _ := r.Get(ctx, ModeLocal, 1)
	b, _ := r.Get(ctx, ModeRemote, 2)

	require.NoError(t, r.Close())
	assert.True(t, a.(*fakeStore).closed)
	assert.True(t, b.(*fakeStore).closed)

	c, err := r.Get(ctx, ModeLocal, 1)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}
