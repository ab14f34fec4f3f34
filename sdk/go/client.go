package slotswapsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Slotswap HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client authenticating with an API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		APIKey:   apiKey,
		Timeout:  10 * time.Second,
	}
}

type Party struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Slot struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// MarketplaceSlot is an offered slot with its owner's display name.
type MarketplaceSlot struct {
	Slot
	OwnerName string `json:"owner_name"`
}

type SwapRequest struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	RequesterID    string    `json:"requester_id"`
	RequesterName  string    `json:"requester_name"`
	ResponderID    string    `json:"responder_id"`
	ResponderName  string    `json:"responder_name"`
	MySlotID       string    `json:"my_slot_id"`
	MySlotTitle    string    `json:"my_slot_title"`
	MySlotStart    time.Time `json:"my_slot_start"`
	MySlotEnd      time.Time `json:"my_slot_end"`
	TheirSlotID    string    `json:"their_slot_id"`
	TheirSlotTitle string    `json:"their_slot_title"`
	TheirSlotStart time.Time `json:"their_slot_start"`
	TheirSlotEnd   time.Time `json:"their_slot_end"`
}

// SlotInput creates a slot. Status is "locked" (default) or "offered".
type SlotInput struct {
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status,omitempty"`
}

// SlotUpdate patches a slot; nil fields are left unchanged.
type SlotUpdate struct {
	Title  *string    `json:"title,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Status *string    `json:"status,omitempty"`
}

// APIError wraps non-2xx responses. Code is the server's error code when the
// body carries the standard error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Me(ctx context.Context) (Party, error) {
	var resp Party
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) MySlots(ctx context.Context) ([]Slot, error) {
	var resp []Slot
	err := c.do(ctx, http.MethodGet, "slots", nil, &resp)
	return resp, err
}

func (c *Client) CreateSlot(ctx context.Context, in SlotInput) (Slot, error) {
	var resp Slot
	err := c.do(ctx, http.MethodPost, "slots", in, &resp)
	return resp, err
}

func (c *Client) UpdateSlot(ctx context.Context, id string, in SlotUpdate) (Slot, error) {
	var resp Slot
	err := c.do(ctx, http.MethodPatch, "slots/"+url.PathEscape(id), in, &resp)
	return resp, err
}

func (c *Client) DeleteSlot(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "slots/"+url.PathEscape(id), nil, nil)
}

// Marketplace lists slots other parties have offered.
func (c *Client) Marketplace(ctx context.Context) ([]MarketplaceSlot, error) {
	var resp []MarketplaceSlot
	err := c.do(ctx, http.MethodGet, "marketplace", nil, &resp)
	return resp, err
}

// Propose offers mySlotID in exchange for theirSlotID.
func (c *Client) Propose(ctx context.Context, mySlotID, theirSlotID string) (SwapRequest, error) {
	body := map[string]any{
		"my_slot_id":    mySlotID,
		"their_slot_id": theirSlotID,
	}
	var resp SwapRequest
	err := c.do(ctx, http.MethodPost, "swap-requests", body, &resp)
	return resp, err
}

func (c *Client) Respond(ctx context.Context, requestID string, accept bool) (SwapRequest, error) {
	var resp SwapRequest
	endpoint := fmt.Sprintf("swap-requests/%s/respond", url.PathEscape(requestID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"accept": accept}, &resp)
	return resp, err
}

func (c *Client) SwapRequest(ctx context.Context, requestID string) (SwapRequest, error) {
	var resp SwapRequest
	err := c.do(ctx, http.MethodGet, "swap-requests/"+url.PathEscape(requestID), nil, &resp)
	return resp, err
}

func (c *Client) Incoming(ctx context.Context) ([]SwapRequest, error) {
	var resp []SwapRequest
	err := c.do(ctx, http.MethodGet, "swap-requests/incoming", nil, &resp)
	return resp, err
}

func (c *Client) Outgoing(ctx context.Context) ([]SwapRequest, error) {
	var resp []SwapRequest
	err := c.do(ctx, http.MethodGet, "swap-requests/outgoing", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	prefix := strings.Trim(c.BasePath, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
