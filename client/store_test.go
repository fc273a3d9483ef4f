package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/event"
	"chat-relay/internal/models"
)

// fakeFetcher serves canned histories and records which keys were
// refetched.
type fakeFetcher struct {
	mu    sync.Mutex
	data  map[Key][]models.Message
	calls []Key
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{data: map[Key][]models.Message{}}
}

func (f *fakeFetcher) set(key Key, msgs []models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = msgs
}

func (f *fakeFetcher) FetchMessages(ctx context.Context, key Key) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	out := make([]models.Message, len(f.data[key]))
	copy(out, f.data[key])
	return out, nil
}

func (f *fakeFetcher) fetched() []Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Key, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestOptimisticInsertConvergesOnEcho(t *testing.T) {
	fetcher := newFakeFetcher()
	store := NewStore(1, fetcher)
	key := ChannelKey(3)
	store.Seed(key, nil)

	placeholder := store.OptimisticInsert(key, "hi")
	assert.Negative(t, placeholder.ID)

	msgs := store.Messages(key)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, 1, msgs[0].SenderID)

	// The server echo arrives; the refetched history holds the confirmed
	// row under its assigned id.
	channelID := 3
	stored := models.Message{ID: 42, Content: "hi", SenderID: 1, ChannelID: &channelID}
	fetcher.set(key, []models.Message{stored})
	err := store.Apply(context.Background(), event.New(event.MessagePayload{
		Content:   "hi",
		UserID:    1,
		ChannelID: &channelID,
		Message:   &stored,
	}))
	require.NoError(t, err)

	msgs = store.Messages(key)
	require.Len(t, msgs, 1, "placeholder and echo must collapse to one entry")
	assert.Equal(t, 42, msgs[0].ID)

	// The placeholder is confirmed, so a later expiry sweep removes nothing.
	store.Expire(0)
	require.Len(t, store.Messages(key), 1)
}

func TestDistinctPlaceholderIDs(t *testing.T) {
	store := NewStore(1, nil)
	key := ChannelKey(3)

	a := store.OptimisticInsert(key, "one")
	b := store.OptimisticInsert(key, "two")
	assert.Negative(t, a.ID)
	assert.Negative(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestExpireRollsBackUnconfirmedPlaceholders(t *testing.T) {
	store := NewStore(1, nil)
	key := ChannelKey(3)
	store.Seed(key, []models.Message{{ID: 10, Content: "old", SenderID: 2}})

	store.OptimisticInsert(key, "never confirmed")
	require.Len(t, store.Messages(key), 2)

	store.Expire(0)

	msgs := store.Messages(key)
	require.Len(t, msgs, 1)
	assert.Equal(t, 10, msgs[0].ID, "confirmed history must survive the sweep")
}

func TestExpireKeepsYoungPlaceholders(t *testing.T) {
	store := NewStore(1, nil)
	key := ChannelKey(3)

	store.OptimisticInsert(key, "just sent")
	store.Expire(time.Minute)

	require.Len(t, store.Messages(key), 1)
}

func TestApplyDeleteUsesCarriedKey(t *testing.T) {
	fetcher := newFakeFetcher()
	store := NewStore(1, fetcher)
	channelID := 3
	store.Seed(ChannelKey(3), []models.Message{{ID: 42, ChannelID: &channelID}})
	store.Seed(ChannelKey(4), []models.Message{{ID: 50}})

	err := store.Apply(context.Background(), event.New(event.DeletePayload{ID: 42, ChannelID: &channelID}))
	require.NoError(t, err)

	require.Equal(t, []Key{ChannelKey(3)}, fetcher.fetched(), "only the named conversation refetches")
	assert.Empty(t, store.Messages(ChannelKey(3)))
	require.Len(t, store.Messages(ChannelKey(4)), 1)
}

func TestApplyDeleteFallsBackToScan(t *testing.T) {
	fetcher := newFakeFetcher()
	store := NewStore(1, fetcher)
	store.Seed(ChannelKey(3), []models.Message{{ID: 42}})
	store.Seed(ThreadKey(40), []models.Message{{ID: 42}})
	store.Seed(ChannelKey(4), []models.Message{{ID: 50}})

	err := store.Apply(context.Background(), event.New(event.DeletePayload{ID: 42}))
	require.NoError(t, err)

	fetched := fetcher.fetched()
	assert.ElementsMatch(t, []Key{ChannelKey(3), ThreadKey(40)}, fetched)
	require.Len(t, store.Messages(ChannelKey(4)), 1, "untouched caches keep their history")
}

func TestApplyDirectMessageRefetchesPeerCache(t *testing.T) {
	fetcher := newFakeFetcher()
	store := NewStore(1, fetcher)

	// Inbound from the peer and the echo of our own send both land on the
	// cache keyed by the peer.
	inbound := event.New(event.DirectMessagePayload{Content: "hey", UserID: 2, RecipientID: 1})
	require.NoError(t, store.Apply(context.Background(), inbound))

	echo := event.New(event.DirectMessagePayload{Content: "yo", UserID: 1, RecipientID: 2})
	require.NoError(t, store.Apply(context.Background(), echo))

	assert.Equal(t, []Key{DMKey(2), DMKey(2)}, fetcher.fetched())
}

func TestApplyUserStatusPatchesInPlace(t *testing.T) {
	fetcher := newFakeFetcher()
	store := NewStore(1, fetcher)

	err := store.Apply(context.Background(), event.New(event.UserStatusPayload{UserID: 2, Status: "online"}))
	require.NoError(t, err)

	assert.Equal(t, "online", store.Presence(2))
	assert.Empty(t, fetcher.fetched(), "presence never triggers a refetch")
}

func TestApplyChannelDeletedDropsCache(t *testing.T) {
	store := NewStore(1, nil)
	store.Seed(ChannelKey(3), []models.Message{{ID: 42}})

	require.NoError(t, store.Apply(context.Background(), event.ChannelDeleted(3)))

	assert.Empty(t, store.Messages(ChannelKey(3)))
}

func TestApplyTypingIsStateless(t *testing.T) {
	fetcher := newFakeFetcher()
	store := NewStore(1, fetcher)

	require.NoError(t, store.Apply(context.Background(), event.New(event.TypingPayload{ChannelID: 3, UserID: 2})))
	assert.Empty(t, fetcher.fetched())
}

func TestDedupConversations(t *testing.T) {
	convs := []models.Conversation{
		{ID: 1, User1ID: 1, User2ID: 2},
		{ID: 2, User1ID: 2, User2ID: 1},
		{ID: 3, User1ID: 3, User2ID: 4},
		{ID: 4, User1ID: 1, User2ID: 2},
	}

	got := DedupConversations(convs)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID, "first occurrence wins for a pair")
	assert.Equal(t, 3, got[1].ID)
}
