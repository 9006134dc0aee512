package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	values map[string]string
	calls  int
}

func (f *fakeStore) GetAll(ctx context.Context) (map[string]string, error) {
	f.calls++
	return f.values, nil
}

func TestGetTriggersRefreshWhenEmpty(t *testing.T) {
	store := &fakeStore{values: map[string]string{"maintenance_mode": "false"}}
	p := NewProvider(store)

	v, ok := p.Get(context.Background(), "maintenance_mode")
	require.True(t, ok)
	assert.Equal(t, "false", v)
	assert.Equal(t, 1, store.calls)
}

func TestGetMissingKey(t *testing.T) {
	store := &fakeStore{values: map[string]string{}}
	p := NewProvider(store)
	_, ok := p.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestRefreshUpdatesValues(t *testing.T) {
	store := &fakeStore{values: map[string]string{"k": "v1"}}
	p := NewProvider(store)
	require.NoError(t, p.Refresh(context.Background()))
	v, _ := p.Get(context.Background(), "k")
	assert.Equal(t, "v1", v)

	store.values = map[string]string{"k": "v2"}
	require.NoError(t, p.Refresh(context.Background()))
	v, _ = p.Get(context.Background(), "k")
	assert.Equal(t, "v2", v)
}
