package clients

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

// UserDirectory resolves user ids to identities.
type UserDirectory interface {
	BulkUsers(ctx context.Context, userIDs []int) ([]models.User, error)
}

// UserClient talks to the user service over its HTTP API.
type UserClient struct {
	baseURL string
	http    *http.Client
}

// NewUserClient constructs the wrapper.
func NewUserClient(baseURL string) *UserClient {
	return &UserClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// BulkUsers fetches identities for a set of user ids.
func (u *UserClient) BulkUsers(ctx context.Context, userIDs []int) ([]models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, strconv.Itoa(id))
	}

	endpoint := u.baseURL + "/internal/users?ids=" + url.QueryEscape(strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user service returned %d", resp.StatusCode)
	}

	var body struct {
		Users []models.User `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Users, nil
}
