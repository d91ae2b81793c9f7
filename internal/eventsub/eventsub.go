// Package eventsub receives Twitch EventSub notifications over WebSocket and
// decodes them into the typed events the co-host reacts to. Subscriptions are
// created against the Helix API for each fresh session; reconnect messages
// are followed to the replacement endpoint without re-subscribing.
package eventsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/Mizu36/maddieply/internal/events"
)

// DefaultWebSocketURL is the public EventSub WebSocket endpoint.
const DefaultWebSocketURL = "wss://eventsub.wss.twitch.tv/ws"

// DefaultHelixURL is the Helix API base used to create subscriptions.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// TokenSource supplies a current app or user access token.
type TokenSource func(ctx context.Context) (string, error)

// Handler receives decoded notifications. Nil fields are skipped. Callbacks
// run on the read loop goroutine and must not block.
type Handler struct {
	OnRaid       func(events.Raid)
	OnCheer      func(events.Cheer)
	OnResub      func(events.Resub)
	OnSubscribe  func(events.Subscribe)
	OnGiftTotals func(events.GiftTotals)
}

// Config holds the EventSub connection settings.
type Config struct {
	// WebSocketURL overrides the EventSub endpoint, for tests.
	WebSocketURL string

	// HelixURL overrides the Helix base URL, for tests.
	HelixURL string

	// ClientID is the application's client ID, sent on Helix requests.
	ClientID string

	// BroadcasterID is the numeric channel ID the subscriptions target.
	BroadcasterID string

	// Token supplies the user access token carrying the required scopes.
	Token TokenSource

	// HTTPClient overrides the Helix HTTP client. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	// ReconnectDelay is the pause before redialing after connection loss.
	// Zero means 5s.
	ReconnectDelay time.Duration
}

// Client is the EventSub connection.
type Client struct {
	cfg     Config
	handler Handler
}

// New creates a Client. Run must be called to connect.
func New(cfg Config, handler Handler) (*Client, error) {
	if cfg.ClientID == "" || cfg.BroadcasterID == "" {
		return nil, fmt.Errorf("eventsub: client ID and broadcaster ID are required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("eventsub: token source is required")
	}
	if cfg.WebSocketURL == "" {
		cfg.WebSocketURL = DefaultWebSocketURL
	}
	if cfg.HelixURL == "" {
		cfg.HelixURL = DefaultHelixURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Client{cfg: cfg, handler: handler}, nil
}

// ─── Wire format ─────────────────────────────────────────────────────────────

type message struct {
	Metadata struct {
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload struct {
		Session *struct {
			ID                      string `json:"id"`
			KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
			ReconnectURL            string `json:"reconnect_url"`
		} `json:"session"`
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

// subscriptionSpec names one Helix subscription to create per session.
type subscriptionSpec struct {
	Type      string
	Version   string
	Condition map[string]string
}

func (c *Client) subscriptions() []subscriptionSpec {
	id := c.cfg.BroadcasterID
	return []subscriptionSpec{
		{Type: "channel.raid", Version: "1", Condition: map[string]string{"to_broadcaster_user_id": id}},
		{Type: "channel.cheer", Version: "1", Condition: map[string]string{"broadcaster_user_id": id}},
		{Type: "channel.subscribe", Version: "1", Condition: map[string]string{"broadcaster_user_id": id}},
		{Type: "channel.subscription.message", Version: "1", Condition: map[string]string{"broadcaster_user_id": id}},
		{Type: "channel.subscription.gift", Version: "1", Condition: map[string]string{"broadcaster_user_id": id}},
	}
}

// ─── Connection ──────────────────────────────────────────────────────────────

// Run connects and dispatches notifications until ctx is cancelled. Reconnect
// messages are followed; a lost connection is redialed at the base endpoint.
func (c *Client) Run(ctx context.Context) error {
	url := c.cfg.WebSocketURL
	fresh := true
	for {
		next, err := c.session(ctx, url, fresh)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if next != "" {
			// Server-directed move: subscriptions carry over.
			url, fresh = next, false
			continue
		}
		slog.Warn("eventsub connection lost, reconnecting",
			"err", err, "delay", c.cfg.ReconnectDelay)
		url, fresh = c.cfg.WebSocketURL, true
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// session runs one WebSocket session. It returns a non-empty URL when the
// server requested a reconnect.
func (c *Client) session(ctx context.Context, url string, fresh bool) (string, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("eventsub: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	welcome, err := readMessage(ctx, conn)
	if err != nil {
		return "", fmt.Errorf("eventsub: read welcome: %w", err)
	}
	if welcome.Metadata.MessageType != "session_welcome" || welcome.Payload.Session == nil {
		return "", fmt.Errorf("eventsub: expected session_welcome, got %q", welcome.Metadata.MessageType)
	}
	sessionID := welcome.Payload.Session.ID
	keepalive := time.Duration(welcome.Payload.Session.KeepaliveTimeoutSeconds) * time.Second
	if keepalive == 0 {
		keepalive = 10 * time.Second
	}

	if fresh {
		if err := c.subscribeAll(ctx, sessionID); err != nil {
			return "", err
		}
	}
	slog.Info("eventsub session established", "session_id", sessionID)

	for {
		// A silent connection past the keepalive window is dead.
		readCtx, cancel := context.WithTimeout(ctx, keepalive+5*time.Second)
		msg, err := readMessage(readCtx, conn)
		cancel()
		if err != nil {
			return "", err
		}
		switch msg.Metadata.MessageType {
		case "session_keepalive":
		case "session_reconnect":
			if msg.Payload.Session != nil && msg.Payload.Session.ReconnectURL != "" {
				return msg.Payload.Session.ReconnectURL, nil
			}
		case "notification":
			c.dispatch(msg.Metadata.SubscriptionType, msg.Payload.Event)
		case "revocation":
			slog.Warn("eventsub subscription revoked",
				"type", msg.Metadata.SubscriptionType)
		}
	}
}

func readMessage(ctx context.Context, conn *websocket.Conn) (*message, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("eventsub: decode message: %w", err)
	}
	return &msg, nil
}

// subscribeAll creates every needed subscription for the session.
func (c *Client) subscribeAll(ctx context.Context, sessionID string) error {
	token, err := c.cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("eventsub: fetch token: %w", err)
	}
	for _, spec := range c.subscriptions() {
		if err := c.subscribe(ctx, token, sessionID, spec); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) subscribe(ctx context.Context, token, sessionID string, spec subscriptionSpec) error {
	body, err := json.Marshal(map[string]any{
		"type":      spec.Type,
		"version":   spec.Version,
		"condition": spec.Condition,
		"transport": map[string]string{
			"method":     "websocket",
			"session_id": sessionID,
		},
	})
	if err != nil {
		return fmt.Errorf("eventsub: encode subscription: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.HelixURL+"/eventsub/subscriptions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("eventsub: build subscription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", c.cfg.ClientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("eventsub: create subscription %s: %w", spec.Type, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("eventsub: subscription %s rejected: status %d: %s",
			spec.Type, resp.StatusCode, msg)
	}
	return nil
}

// ─── Notification decoding ───────────────────────────────────────────────────

func (c *Client) dispatch(subType string, raw json.RawMessage) {
	switch subType {
	case "channel.raid":
		var e struct {
			FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
			FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
			Viewers                  int    `json:"viewers"`
		}
		if decodeEvent(subType, raw, &e) && c.handler.OnRaid != nil {
			c.handler.OnRaid(events.Raid{
				FromBroadcaster: e.FromBroadcasterUserName,
				FromLogin:       e.FromBroadcasterUserLogin,
				Viewers:         e.Viewers,
			})
		}
	case "channel.cheer":
		var e struct {
			UserName    string `json:"user_name"`
			Bits        int    `json:"bits"`
			Message     string `json:"message"`
			IsAnonymous bool   `json:"is_anonymous"`
		}
		if decodeEvent(subType, raw, &e) && c.handler.OnCheer != nil {
			c.handler.OnCheer(events.Cheer{
				User:      e.UserName,
				Bits:      e.Bits,
				Message:   e.Message,
				Anonymous: e.IsAnonymous,
			})
		}
	case "channel.subscription.message":
		var e struct {
			UserName         string `json:"user_name"`
			CumulativeMonths int    `json:"cumulative_months"`
			StreakMonths     int    `json:"streak_months"`
			Tier             string `json:"tier"`
			Message          struct {
				Text string `json:"text"`
			} `json:"message"`
		}
		if decodeEvent(subType, raw, &e) && c.handler.OnResub != nil {
			c.handler.OnResub(events.Resub{
				User:             e.UserName,
				CumulativeMonths: e.CumulativeMonths,
				StreakMonths:     e.StreakMonths,
				Tier:             e.Tier,
				Message:          e.Message.Text,
			})
		}
	case "channel.subscribe":
		var e struct {
			UserName string `json:"user_name"`
			Tier     string `json:"tier"`
			IsGift   bool   `json:"is_gift"`
		}
		if decodeEvent(subType, raw, &e) && c.handler.OnSubscribe != nil {
			c.handler.OnSubscribe(events.Subscribe{
				User:   e.UserName,
				Tier:   e.Tier,
				Gifted: e.IsGift,
			})
		}
	case "channel.subscription.gift":
		var e struct {
			UserName        string `json:"user_name"`
			Total           int    `json:"total"`
			Tier            string `json:"tier"`
			CumulativeTotal int    `json:"cumulative_total"`
			IsAnonymous     bool   `json:"is_anonymous"`
		}
		if decodeEvent(subType, raw, &e) && c.handler.OnGiftTotals != nil {
			c.handler.OnGiftTotals(events.GiftTotals{
				Gifter:          e.UserName,
				Count:           e.Total,
				Tier:            e.Tier,
				CumulativeTotal: e.CumulativeTotal,
				Anonymous:       e.IsAnonymous,
			})
		}
	default:
		slog.Debug("eventsub notification ignored", "type", subType)
	}
}

func decodeEvent(subType string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		slog.Warn("eventsub: malformed event", "type", subType, "err", err)
		return false
	}
	return true
}
