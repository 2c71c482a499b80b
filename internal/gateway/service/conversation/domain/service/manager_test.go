package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/gateway/service/conversation/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/conversation/store/inmemory"
	"github.com/loomhq/loom/pkg/cryptoutil"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cipher, err := cryptoutil.NewCipher(testMasterKey)
	require.NoError(t, err)
	return NewManager(
		inmemory.NewPartitionStore(),
		inmemory.NewConversationStore(),
		inmemory.NewMessageStore(),
		inmemory.NewSnapshotStore(),
		inmemory.NewLocker(),
		cipher,
	)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("x", 100)))
}

func TestGetOrCreateConversationIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.GetOrCreateConversation(ctx, "tenant", "ext-1", nil, nil)
	require.NoError(t, err)
	second, err := m.GetOrCreateConversation(ctx, "tenant", "ext-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Same external ID under a different tenant is a different row.
	other, err := m.GetOrCreateConversation(ctx, "other", "ext-1", nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetOrCreatePartitionIdempotentUnderConcurrency(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := m.GetOrCreatePartition(ctx, "tenant", "shared", nil)
			require.NoError(t, err)
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func TestStoreMessagesAndLoadContext(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.GetOrCreateConversation(ctx, "tenant", "ext", nil, nil)
	require.NoError(t, err)

	require.NoError(t, m.StoreMessages(ctx, conv, "hello there", "hi, how can I help"))

	loaded, err := m.LoadContext(ctx, conv)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, entity.RoleUser, loaded.Messages[0].Role)
	assert.Equal(t, "hello there", loaded.Messages[0].Content)
	assert.Equal(t, entity.RoleAssistant, loaded.Messages[1].Role)
	assert.Equal(t, "hi, how can I help", loaded.Messages[1].Content)
	assert.Equal(t, EstimateTokens("hello there")+EstimateTokens("hi, how can I help"), loaded.TokenEstimate)
	assert.Empty(t, loaded.LatestSnapshotID)
}

func TestSnapshotElidesEarlierMessages(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.GetOrCreateConversation(ctx, "tenant", "ext", nil, nil)
	require.NoError(t, err)
	require.NoError(t, m.StoreMessages(ctx, conv, "old question", "old answer"))

	loaded, err := m.LoadContext(ctx, conv)
	require.NoError(t, err)
	require.NoError(t, m.CreateSnapshot(ctx, conv, "they talked about old things", len(loaded.Messages), loaded.LatestSnapshotID))

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, m.StoreMessages(ctx, conv, "new question", "new answer"))

	reloaded, err := m.LoadContext(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "they talked about old things", reloaded.LatestSnapshotSummary)
	require.Len(t, reloaded.Messages, 2)
	assert.Equal(t, "new question", reloaded.Messages[0].Content)
	assert.Equal(t, EstimateTokens("they talked about old things")+
		EstimateTokens("new question")+EstimateTokens("new answer"), reloaded.TokenEstimate)

	injection := m.BuildInjectionMessages(reloaded)
	require.Len(t, injection, 3)
	assert.Equal(t, "system", injection[0]["role"])
	assert.Contains(t, injection[0]["content"], "they talked about old things")
}

func TestCreateSnapshotOnceUnderConcurrency(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.GetOrCreateConversation(ctx, "tenant", "ext", nil, nil)
	require.NoError(t, err)
	require.NoError(t, m.StoreMessages(ctx, conv, "q", "a"))

	loaded, err := m.LoadContext(ctx, conv)
	require.NoError(t, err)

	// Many requests observe the same over-limit context and race to
	// snapshot it.
	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.CreateSnapshot(ctx, conv, "racing summary", len(loaded.Messages), loaded.LatestSnapshotID))
		}()
	}
	wg.Wait()

	reloaded, err := m.LoadContext(ctx, conv)
	require.NoError(t, err)
	require.NotEmpty(t, reloaded.LatestSnapshotID)
	// Only one snapshot won; a second load sees the same one.
	again, err := m.LoadContext(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, reloaded.LatestSnapshotID, again.LatestSnapshotID)
}

func TestNeedsSnapshot(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.NeedsSnapshot(4000, 4000))
	assert.True(t, m.NeedsSnapshot(4001, 4000))
}

func TestTenantAssociatedDataBindsCiphertext(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.GetOrCreateConversation(ctx, "tenant-a", "ext", nil, nil)
	require.NoError(t, err)
	require.NoError(t, m.StoreMessages(ctx, conv, "secret", "reply"))

	// Re-labelling the conversation under another tenant must not
	// decrypt its content.
	stolen := *conv
	stolen.TenantID = "tenant-b"
	_, err = m.LoadContext(ctx, &stolen)
	assert.ErrorIs(t, err, cryptoutil.ErrDecryptionFailed)
}
