package conversation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konecto/actuator-agent/internal/conversation"
	"github.com/konecto/actuator-agent/internal/log"
	"github.com/konecto/actuator-agent/internal/testutil"
)

func setupPostgresStore(t *testing.T, maxTurns int) (*conversation.PostgresStore, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	container, cleanup := testutil.SetupTestDB(t)
	return conversation.NewPostgresStore(container.Pool, maxTurns, log.NewNop()), cleanup
}

func TestPostgresStore_CommitAndReload_Integration(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupPostgresStore(t, 10)
	defer cleanup()

	conv, err := store.GetOrCreate(ctx, uuid.Nil)
	require.NoError(t, err)

	turns := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "find a single phase actuator"},
		{Role: conversation.RoleAssistant, Content: "763A00-11330C01/A matches."},
	}
	filters := map[string]string{"context_type": "110V Single Phase Power"}
	require.NoError(t, store.Commit(ctx, conv.ID, turns, filters))

	got, err := store.GetOrCreate(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, int32(1), got.Turns[0].Sequence)
	assert.Equal(t, int32(2), got.Turns[1].Sequence)
	assert.Equal(t, conversation.RoleUser, got.Turns[0].Role)
	assert.Equal(t, filters, got.LastFilters)
}

func TestPostgresStore_HistoryWindow_Integration(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupPostgresStore(t, 4)
	defer cleanup()

	conv, err := store.GetOrCreate(ctx, uuid.Nil)
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, store.Commit(ctx, conv.ID, []conversation.Turn{
			{Role: conversation.RoleUser, Content: fmt.Sprintf("q%d", i)},
			{Role: conversation.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		}, nil))
	}

	got, err := store.GetOrCreate(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 4)
	assert.Equal(t, "q3", got.Turns[0].Content)
	assert.Equal(t, "a4", got.Turns[3].Content)
	assert.Equal(t, int32(10), got.Turns[3].Sequence)
}

func TestPostgresStore_ConcurrentCommits_Integration(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupPostgresStore(t, 0)
	defer cleanup()

	conv, err := store.GetOrCreate(ctx, uuid.Nil)
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := range writers {
		go func(n int) {
			defer wg.Done()
			err := store.Commit(ctx, conv.ID, []conversation.Turn{
				{Role: conversation.RoleUser, Content: fmt.Sprintf("q%d", n)},
				{Role: conversation.RoleAssistant, Content: fmt.Sprintf("a%d", n)},
			}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := store.GetOrCreate(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, writers*2)
	for i, turn := range got.Turns {
		assert.Equal(t, int32(i)+1, turn.Sequence, "sequence must stay dense under concurrency")
	}
}

func TestPostgresStore_CommitUnknownConversation_Integration(t *testing.T) {
	ctx := context.Background()
	store, cleanup := setupPostgresStore(t, 10)
	defer cleanup()

	err := store.Commit(ctx, uuid.New(),
		[]conversation.Turn{{Role: conversation.RoleUser, Content: "x"}}, nil)
	require.ErrorIs(t, err, conversation.ErrNotFound)
}
