package device

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/billsync/internal/repositories/metadata"
	"github.com/dmitrijs2005/billsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceID_GeneratedOnceAndPersisted(t *testing.T) {
	db, err := store.OpenMemory(context.Background(), "device")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	meta := metadata.NewSQLiteRepository(db.SQL())

	id, err := NewProvider(meta).DeviceID(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "device_"))

	// a new provider over the same store sees the same id
	again, err := NewProvider(meta).DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

type failingMeta struct {
	metadata.Repository
	calls int
}

func (f *failingMeta) Get(context.Context, string) ([]byte, error) {
	f.calls++
	return nil, errors.New("boom")
}

func TestDeviceID_ReadError(t *testing.T) {
	m := &failingMeta{}
	_, err := NewProvider(m).DeviceID(context.Background())
	require.ErrorContains(t, err, "read device id")
	assert.Equal(t, 1, m.calls)
}

type countingMeta struct {
	metadata.Repository
	value []byte
	gets  int
}

func (c *countingMeta) Get(context.Context, string) ([]byte, error) {
	c.gets++
	return c.value, nil
}

func TestDeviceID_Cached(t *testing.T) {
	m := &countingMeta{value: []byte("device_fixed")}
	p := NewProvider(m)

	for range 3 {
		id, err := p.DeviceID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "device_fixed", id)
	}
	assert.Equal(t, 1, m.gets)
}
