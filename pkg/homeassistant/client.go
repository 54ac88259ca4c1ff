package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/common"
	"github.com/sunrudder/sunrudder/pkg/log"
)

var ErrEntityNotFound = errors.New("entity not found")

// Client talks to the Home Assistant REST API.
type Client struct {
	client  *http.Client
	baseURL string
}

// State is the state of a single entity.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// Configured sets up a Client from flags. The token may also come from the
// HOMEASSISTANT_TOKEN environment variable.
func Configured() *Client {
	baseURL := lflag.String("homeassistant-url", "http://homeassistant.local:8123", "Base URL of the Home Assistant instance")
	token := lflag.String("homeassistant-token", "", "Long-lived access token for Home Assistant (or HOMEASSISTANT_TOKEN)")
	timeout := lflag.Duration("homeassistant-timeout", 10*time.Second, "Timeout for Home Assistant requests")

	c := &Client{}

	lflag.Do(func() {
		if _, err := url.Parse(*baseURL); err != nil {
			panic(fmt.Sprintf("invalid homeassistant-url (%s): %v", *baseURL, err))
		}
		tok := *token
		if tok == "" {
			tok = os.Getenv("HOMEASSISTANT_TOKEN")
		}
		*c = *NewClient(*baseURL, tok, *timeout)
	})

	return c
}

// NewClient returns a Client for the instance at baseURL.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		client:  common.HTTPClient(timeout, common.WithBearerToken(token)),
		baseURL: baseURL,
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, data interface{}) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doRequest(req *http.Request, dest interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrEntityNotFound
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		log.Ctx(req.Context()).ErrorContext(req.Context(), "homeassistant api error",
			slog.Int("status", resp.StatusCode),
			slog.String("url", req.URL.Path),
			slog.String("body", string(body)),
		)
		return fmt.Errorf("homeassistant status %d", resp.StatusCode)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode homeassistant response", slog.Any("error", err), slog.String("body", string(body)))
		return fmt.Errorf("failed to decode homeassistant response: %w", err)
	}
	return nil
}

// GetState returns the current state of entityID.
func (c *Client) GetState(ctx context.Context, entityID string) (State, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "api/states/"+entityID, nil)
	if err != nil {
		return State{}, err
	}
	var s State
	if err := c.doRequest(req, &s); err != nil {
		return State{}, fmt.Errorf("failed to get state of %s: %w", entityID, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched homeassistant state", slog.String("entity", entityID), slog.String("state", s.State))
	return s, nil
}

// CallService calls domain.service targeting entityID. Extra service data
// is merged into the request body.
func (c *Client) CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	payload := map[string]any{"entity_id": entityID}
	for k, v := range data {
		payload[k] = v
	}
	req, err := c.newRequest(ctx, http.MethodPost, "api/services/"+domain+"/"+service, payload)
	if err != nil {
		return err
	}
	if err := c.doRequest(req, nil); err != nil {
		return fmt.Errorf("failed to call %s.%s for %s: %w", domain, service, entityID, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "called homeassistant service",
		slog.String("domain", domain),
		slog.String("service", service),
		slog.String("entity", entityID),
	)
	return nil
}
