// Package api holds the request/response collaborators of the chat view that
// do not feed back into message delivery: history persistence and branch
// (fork) previews.
package api

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
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	saveHistoryPath = "/api/live/save_user_chat_history/"
	forkPreviewPath = "/api/fork/fork_preview/"
)

// Client talks to the chat site's HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	log zerolog.Logger
	wg  sync.WaitGroup
}

func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger,
	}
}

// HTTPBase turns a configured server URL into an http(s) base URL.
func HTTPBase(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return u.String(), nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, &StatusError{Code: resp.StatusCode, Message: errResp.Message}
	}
	return respBody, nil
}

// HistoryEntry is the body of a save_user_chat_history request.
type HistoryEntry struct {
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	Username    string `json:"username"`
	UserMessage string `json:"user_message"`
}

// SaveHistory persists one sent message.
func (c *Client) SaveHistory(ctx context.Context, entry HistoryEntry) error {
	if _, err := c.do(ctx, http.MethodPost, saveHistoryPath, entry); err != nil {
		return fmt.Errorf("save chat history: %w", err)
	}
	return nil
}

// SaveHistoryAsync is the fire-and-forget form used after a send. Failures
// are logged and never reach the caller.
func (c *Client) SaveHistoryAsync(entry HistoryEntry) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.SaveHistory(ctx, entry); err != nil {
			c.log.Error().Err(err).Str("room", entry.RoomID).Msg("[api] save history failed")
		}
	}()
}

// Wait blocks until pending fire-and-forget requests finish.
func (c *Client) Wait() {
	c.wg.Wait()
}

// ForkRecord is one message already copied into a branch.
type ForkRecord struct {
	Floor    int             `json:"floor"`
	DataType string          `json:"data_type"`
	Data     json.RawMessage `json:"data"`
	MesHTML  string          `json:"mes_html"`
}

type ForkPreview struct {
	RoomInfo json.RawMessage `json:"room_info"`
	ChatInfo []ForkRecord    `json:"chat_info"`
}

// ForkPreview asks the site what a branch of roomID up to lastFloor would
// contain. targetID is the owner of the room being branched.
func (c *Client) ForkPreview(ctx context.Context, targetID, roomID string, lastFloor int) (*ForkPreview, error) {
	if lastFloor < 1 {
		return nil, fmt.Errorf("fork preview: last floor must be >= 1, got %d", lastFloor)
	}
	q := url.Values{}
	q.Set("target_id", targetID)
	q.Set("room_id", roomID)
	q.Set("last_floor", strconv.Itoa(lastFloor))

	body, err := c.do(ctx, http.MethodGet, forkPreviewPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("fork preview: %w", err)
	}
	var resp struct {
		Success bool        `json:"success"`
		Message string      `json:"message"`
		Data    ForkPreview `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("fork preview: decode: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("fork preview: %s", resp.Message)
	}
	return &resp.Data, nil
}
