package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fruitbot/internal/game"
	"fruitbot/internal/ledger"

	"github.com/cockroachdb/errors"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status     int
	Message    string
	Guidance   string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("api status %d: %s %s", e.Status, e.Message, e.Guidance)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Retryable reports whether replaying the same request later may succeed.
// Domain rejections are final.
func (e *APIError) Retryable() bool {
	return e.Status >= 500
}

// Queueable reports whether a failed command should be kept for a later
// sync: transport failures and server-side outages qualify.
func Queueable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	PlayerID    string    `json:"player_id"`
	Username    string    `json:"username"`
}

func (c *Client) IssueToken(ctx context.Context, adminKey, playerID, username string, admin bool) (TokenResponse, error) {
	var out TokenResponse
	err := c.request(ctx, http.MethodPost, "/v1/auth/token", "", map[string]any{
		"player_id": playerID,
		"username":  username,
		"admin":     admin,
	}, &out, "", map[string]string{"X-Admin-Key": adminKey})
	return out, err
}

func (c *Client) Pull(ctx context.Context, accessToken string, count int, idem string) (game.PullResult, error) {
	var out game.PullResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/pulls", accessToken, map[string]any{"count": count}, &out, idem)
	return out, err
}

func (c *Client) Balance(ctx context.Context, accessToken string) (game.BalanceView, error) {
	var out game.BalanceView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/balance", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) PassiveIncome(ctx context.Context, accessToken string) (game.IncomeResult, error) {
	var out game.IncomeResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/income/passive", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) ManualIncome(ctx context.Context, accessToken string) (game.CollectResult, error) {
	var out game.CollectResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/income/manual", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Pity(ctx context.Context, accessToken string) (game.PityInfo, error) {
	var out game.PityInfo
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/pity", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Collection(ctx context.Context, accessToken string) ([]game.CollectionItem, error) {
	var out struct {
		Items []game.CollectionItem `json:"items"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/collection", accessToken, nil, &out, "")
	return out.Items, err
}

func (c *Client) History(ctx context.Context, accessToken string, limit int) ([]ledger.Entry, error) {
	var out struct {
		Entries []ledger.Entry `json:"entries"`
	}
	path := "/v1/history?limit=" + strconv.Itoa(limit)
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out.Entries, err
}

func (c *Client) AdminAdjust(ctx context.Context, accessToken, playerID string, delta int64, reason string) (ledger.Account, error) {
	var out ledger.Account
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/admin/players/"+url.PathEscape(playerID)+"/adjust", accessToken, map[string]any{
		"delta":  delta,
		"reason": reason,
	}, &out, "")
	return out, err
}

func (c *Client) AdminWipe(ctx context.Context, accessToken, playerID string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/admin/players/"+url.PathEscape(playerID), accessToken, nil, nil, "")
}

func (c *Client) AdminStats(ctx context.Context, accessToken string) (ledger.Stats, error) {
	var out ledger.Stats
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/admin/stats", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	return c.request(ctx, method, path, accessToken, in, out, idem, nil)
}

func (c *Client) request(ctx context.Context, method, path, accessToken string, in any, out any, idem string, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var body struct {
		Error    string `json:"error"`
		Guidance string `json:"guidance"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Guidance = body.Guidance
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}
