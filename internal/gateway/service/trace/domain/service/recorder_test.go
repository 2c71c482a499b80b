package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/gateway/service/trace/store/inmemory"
	"github.com/loomhq/loom/pkg/cryptoutil"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testCipher(t *testing.T) *cryptoutil.Cipher {
	t.Helper()
	c, err := cryptoutil.NewCipher(testMasterKey)
	require.NoError(t, err)
	return c
}

func TestRecorderFlushesAndEncrypts(t *testing.T) {
	store := inmemory.NewTraceStore()
	cipher := testCipher(t)
	r := NewRecorder(store, cipher, RecorderOptions{QueueSize: 16, FlushInterval: 10 * time.Millisecond})

	r.Record(&Event{
		TenantID:     "tenant",
		Model:        "gpt-4o",
		Provider:     "openai",
		RequestBody:  []byte(`{"messages":[]}`),
		ResponseBody: []byte(`{"choices":[]}`),
		StatusCode:   200,
		LatencyMs:    42,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	rows, _, err := store.List(context.Background(), "tenant", 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "gpt-4o", row.Model)
	assert.Equal(t, 200, row.StatusCode)

	// Payloads are not stored in the clear, and decrypt only under the
	// owning tenant's associated data.
	assert.NotEqual(t, []byte(`{"messages":[]}`), row.RequestCiphertext)
	plain, err := cipher.Decrypt(row.RequestCiphertext, row.RequestIV, []byte("tenant"))
	require.NoError(t, err)
	assert.Equal(t, `{"messages":[]}`, string(plain))
	_, err = cipher.Decrypt(row.RequestCiphertext, row.RequestIV, []byte("other"))
	assert.ErrorIs(t, err, cryptoutil.ErrDecryptionFailed)

	assert.Zero(t, r.Dropped())
}

func TestRecorderDropsOldestOnOverflow(t *testing.T) {
	store := inmemory.NewTraceStore()
	// A long flush interval keeps the drainer out of the way while the
	// queue overflows.
	r := NewRecorder(store, testCipher(t), RecorderOptions{QueueSize: 4, FlushInterval: time.Hour})

	for i := 0; i < 10; i++ {
		r.Record(&Event{TenantID: "tenant", Model: fmt.Sprintf("m-%d", i)})
	}
	assert.Equal(t, uint64(6), r.Dropped())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	// The four newest survive.
	rows, _, err := store.List(context.Background(), "tenant", 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 4)
}

func TestRecorderNoopWithoutCipher(t *testing.T) {
	store := inmemory.NewTraceStore()
	r := NewRecorder(store, nil, RecorderOptions{})

	r.Record(&Event{TenantID: "tenant"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	assert.Zero(t, store.Len())
}

func TestRecorderCloseDrainsQueue(t *testing.T) {
	store := inmemory.NewTraceStore()
	r := NewRecorder(store, testCipher(t), RecorderOptions{QueueSize: 256, FlushInterval: time.Hour, MaxBatch: 10})

	for i := 0; i < 37; i++ {
		r.Record(&Event{TenantID: "tenant"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
	assert.Equal(t, 37, store.Len())
}
