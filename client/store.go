package client

import (
	"context"
	"sync"
	"time"

	"chat-relay/internal/event"
	"chat-relay/internal/models"
)

// KeyKind discriminates conversation cache keys.
type KeyKind string

const (
	KindChannel KeyKind = "channel"
	KindThread  KeyKind = "thread"
	KindDM      KeyKind = "dm"
)

// Key identifies one cached conversation: a channel, a thread root, or
// a DM peer.
type Key struct {
	Kind KeyKind
	ID   int
}

// ChannelKey, ThreadKey and DMKey build cache keys.
func ChannelKey(channelID int) Key { return Key{Kind: KindChannel, ID: channelID} }
func ThreadKey(parentID int) Key   { return Key{Kind: KindThread, ID: parentID} }
func DMKey(peerID int) Key         { return Key{Kind: KindDM, ID: peerID} }

// Fetcher re-reads a conversation from the source of truth.
type Fetcher interface {
	FetchMessages(ctx context.Context, key Key) ([]models.Message, error)
}

type placeholderMeta struct {
	key Key
	at  time.Time
}

// Store keeps per-conversation message caches consistent with broadcast
// events: optimistic local inserts before confirmation, invalidate-and-
// refetch on echoes and deletions, in-place presence patching.
type Store struct {
	userID  int
	fetcher Fetcher

	mu           sync.Mutex
	caches       map[Key][]models.Message
	presence     map[int]string
	placeholders map[int]placeholderMeta
	nextID       int
}

// NewStore builds a Store for the given local user.
func NewStore(userID int, fetcher Fetcher) *Store {
	return &Store{
		userID:       userID,
		fetcher:      fetcher,
		caches:       map[Key][]models.Message{},
		presence:     map[int]string{},
		placeholders: map[int]placeholderMeta{},
		// Seeded from the clock so placeholder ids never collide with
		// server-assigned (positive, monotonic) ids across restarts.
		nextID: -int(time.Now().UnixMilli()),
	}
}

// Seed replaces a cache with fetched history.
func (s *Store) Seed(key Key, msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCacheLocked(key, msgs)
}

// Messages returns a snapshot of the cache for a key.
func (s *Store) Messages(key Key) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.caches[key]))
	copy(out, s.caches[key])
	return out
}

// OptimisticInsert appends a placeholder entry with a strictly negative
// sentinel id, shown until the server echo confirms or corrects it.
func (s *Store) OptimisticInsert(key Key, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID--

	msg := models.Message{
		ID:        id,
		Content:   content,
		SenderID:  s.userID,
		CreatedAt: time.Now(),
	}
	s.caches[key] = append(s.caches[key], msg)
	s.placeholders[id] = placeholderMeta{key: key, at: time.Now()}
	return msg
}

// Apply reconciles one inbound event against the caches. Message echoes
// invalidate and refetch the affected conversation, so placeholders
// never outlive confirmation; presence changes are patched in place.
func (s *Store) Apply(ctx context.Context, e event.Event) error {
	switch p := e.Payload.(type) {
	case event.MessagePayload:
		return s.refetch(ctx, messageKey(p))
	case event.DirectMessagePayload:
		return s.refetch(ctx, DMKey(s.peerOf(p)))
	case event.DeletePayload:
		keys := s.keysForDelete(p)
		return s.refetchAll(ctx, keys)
	case event.DirectDeletePayload:
		return s.refetchAll(ctx, s.keysContaining(p.ID, KindDM))
	case event.UserStatusPayload:
		s.mu.Lock()
		s.presence[p.UserID] = p.Status
		s.mu.Unlock()
		return nil
	case event.ChannelPayload:
		if e.Type == event.TypeChannelDeleted {
			s.mu.Lock()
			delete(s.caches, ChannelKey(p.ID))
			s.mu.Unlock()
		}
		return nil
	}
	// Typing, reactions and errors carry no cache state.
	return nil
}

// Presence returns the last known status for a user.
func (s *Store) Presence(userID int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence[userID]
}

// Expire drops optimistic placeholders older than ttl. Called by the
// consumer when it decides unconfirmed sends should roll back.
func (s *Store) Expire(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, meta := range s.placeholders {
		if meta.at.After(cutoff) {
			continue
		}
		cache := s.caches[meta.key]
		kept := cache[:0]
		for _, m := range cache {
			if m.ID != id {
				kept = append(kept, m)
			}
		}
		s.caches[meta.key] = kept
		delete(s.placeholders, id)
	}
}

// DedupConversations collapses duplicate unordered participant pairs to
// one entry keyed by (lower id, higher id); the first occurrence wins.
func DedupConversations(convs []models.Conversation) []models.Conversation {
	type pair struct{ lo, hi int }
	seen := map[pair]struct{}{}
	out := make([]models.Conversation, 0, len(convs))
	for _, c := range convs {
		lo, hi := c.User1ID, c.User2ID
		if lo > hi {
			lo, hi = hi, lo
		}
		key := pair{lo: lo, hi: hi}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func messageKey(p event.MessagePayload) Key {
	if p.ThreadParentID != nil {
		return ThreadKey(*p.ThreadParentID)
	}
	if p.ChannelID != nil {
		return ChannelKey(*p.ChannelID)
	}
	return Key{}
}

func (s *Store) peerOf(p event.DirectMessagePayload) int {
	if p.UserID == s.userID {
		return p.RecipientID
	}
	return p.UserID
}

// keysForDelete prefers the keys carried on the event; when they are
// absent it falls back to every channel/thread cache holding the id.
func (s *Store) keysForDelete(p event.DeletePayload) []Key {
	var keys []Key
	if p.ThreadParentID != nil {
		keys = append(keys, ThreadKey(*p.ThreadParentID))
	}
	if p.ChannelID != nil {
		keys = append(keys, ChannelKey(*p.ChannelID))
	}
	if len(keys) > 0 {
		return keys
	}
	return append(s.keysContaining(p.ID, KindChannel), s.keysContaining(p.ID, KindThread)...)
}

func (s *Store) keysContaining(messageID int, kind KeyKind) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []Key
	for key, msgs := range s.caches {
		if key.Kind != kind {
			continue
		}
		for _, m := range msgs {
			if m.ID == messageID {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

func (s *Store) refetchAll(ctx context.Context, keys []Key) error {
	var firstErr error
	for _, key := range keys {
		if err := s.refetch(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) refetch(ctx context.Context, key Key) error {
	if (key == Key{}) || s.fetcher == nil {
		return nil
	}
	msgs, err := s.fetcher.FetchMessages(ctx, key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCacheLocked(key, msgs)
	return nil
}

func (s *Store) setCacheLocked(key Key, msgs []models.Message) {
	s.caches[key] = append([]models.Message(nil), msgs...)
	for id, meta := range s.placeholders {
		if meta.key == key {
			delete(s.placeholders, id)
		}
	}
}
