package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chat-relay/internal/models"
)

// APIFetcher reads conversation history from the relay's REST surface.
type APIFetcher struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIFetcher builds an APIFetcher for the given base URL and bearer
// token.
func NewAPIFetcher(baseURL, token string) *APIFetcher {
	return &APIFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchMessages reads one conversation's history.
func (f *APIFetcher) FetchMessages(ctx context.Context, key Key) ([]models.Message, error) {
	var path string
	switch key.Kind {
	case KindChannel:
		path = "/api/channels/" + strconv.Itoa(key.ID) + "/messages"
	case KindThread:
		path = "/api/messages/" + strconv.Itoa(key.ID) + "/thread"
	case KindDM:
		path = "/api/dm/" + strconv.Itoa(key.ID)
	default:
		return nil, fmt.Errorf("unknown cache key kind %q", key.Kind)
	}

	var body struct {
		Messages []models.Message `json:"messages"`
	}
	if err := f.get(ctx, path, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// FetchChannels lists all channels.
func (f *APIFetcher) FetchChannels(ctx context.Context) ([]models.Channel, error) {
	var body struct {
		Channels []models.Channel `json:"channels"`
	}
	if err := f.get(ctx, "/api/channels", &body); err != nil {
		return nil, err
	}
	return body.Channels, nil
}

// FetchConversations lists the caller's direct conversations, collapsed
// to one entry per participant pair.
func (f *APIFetcher) FetchConversations(ctx context.Context) ([]models.Conversation, error) {
	var body struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	if err := f.get(ctx, "/api/conversations", &body); err != nil {
		return nil, err
	}
	return DedupConversations(body.Conversations), nil
}

// SearchMessages runs a content search.
func (f *APIFetcher) SearchMessages(ctx context.Context, query string) ([]models.Message, error) {
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	if err := f.get(ctx, "/api/search?"+url.Values{"q": {query}}.Encode(), &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

func (f *APIFetcher) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
