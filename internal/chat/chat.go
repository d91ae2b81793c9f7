// Package chat is the Twitch chat (IRC over WebSocket) client: it joins the
// broadcaster's channel, keeps a short rolling log of recent messages for the
// respond-to-chat flow, recognises gift-sub notice lines, and sends outgoing
// lines such as raid shout-outs.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Mizu36/maddieply/internal/events"
)

// DefaultURL is the public Twitch chat WebSocket endpoint.
const DefaultURL = "wss://irc-ws.chat.twitch.tv"

// LogSize is how many recent chat messages are retained for LLM context.
const LogSize = 10

// ErrNotConnected is returned by Send while no session is up.
var ErrNotConnected = errors.New("chat: not connected")

// GiftLine is a parsed gift-sub notice from chat. These lines carry the
// per-recipient half of a gift burst; the totals arrive via EventSub.
type GiftLine struct {
	Gifter    string
	Recipient string
	Tier      string
	Anonymous bool
}

var (
	giftLineRE     = regexp.MustCompile(`^(.+?) gifted a Tier (\d) Sub to (.+?)!$`)
	anonGiftLineRE = regexp.MustCompile(`^An anonymous gifter gave (.+?) a Tier (\d) Sub!$`)
)

// ParseGiftLine recognises the two gift-sub notice formats Twitch prints into
// chat. Returns (zero, false) for ordinary messages.
func ParseGiftLine(text string) (GiftLine, bool) {
	if m := giftLineRE.FindStringSubmatch(text); m != nil {
		return GiftLine{Gifter: m[1], Tier: m[2], Recipient: strings.TrimSpace(m[3])}, true
	}
	if m := anonGiftLineRE.FindStringSubmatch(text); m != nil {
		return GiftLine{Gifter: "Anonymous", Recipient: strings.TrimSpace(m[1]), Tier: m[2], Anonymous: true}, true
	}
	return GiftLine{}, false
}

// TokenSource supplies a current OAuth access token for the IRC PASS command.
type TokenSource func(ctx context.Context) (string, error)

// Config holds the chat connection settings.
type Config struct {
	// URL overrides the chat endpoint, for tests. Empty means DefaultURL.
	URL string

	// Nick is the bot account's login name.
	Nick string

	// Channel is the broadcaster channel to join, without the leading '#'.
	Channel string

	// Token supplies the OAuth token used to authenticate.
	Token TokenSource

	// ReconnectDelay is the pause between reconnect attempts. Zero means 5s.
	ReconnectDelay time.Duration
}

// Client is the chat connection. Safe for concurrent use.
type Client struct {
	cfg Config

	mu       sync.Mutex
	conn     *websocket.Conn
	recent   []events.ChatMessage
	handlers []func(events.ChatMessage)
	onGift   func(GiftLine)
}

// Option customises a Client.
type Option func(*Client)

// WithMessageHandler registers a callback invoked for every chat message.
// Handlers run on the read loop goroutine and must not block.
func WithMessageHandler(h func(events.ChatMessage)) Option {
	return func(c *Client) { c.handlers = append(c.handlers, h) }
}

// WithGiftHandler registers a callback for parsed gift-sub notice lines.
func WithGiftHandler(h func(GiftLine)) Option {
	return func(c *Client) { c.onGift = h }
}

// New creates a Client. Run must be called to connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Nick == "" || cfg.Channel == "" {
		return nil, errors.New("chat: nick and channel are required")
	}
	if cfg.Token == nil {
		return nil, errors.New("chat: token source is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	c := &Client{cfg: cfg}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Run connects and processes chat until ctx is cancelled, reconnecting after
// connection loss.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("chat connection lost, reconnecting",
			"err", err, "delay", c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	token, err := c.cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("chat: fetch token: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("chat: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for _, line := range []string{
		"PASS oauth:" + token,
		"NICK " + c.cfg.Nick,
		"JOIN #" + c.cfg.Channel,
	} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
			return fmt.Errorf("chat: handshake: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()
	slog.Info("chat connected", "channel", c.cfg.Channel)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(string(data), "\r\n") {
			if line == "" {
				continue
			}
			c.handleLine(ctx, line)
		}
	}
}

// Send posts one chat line to the joined channel.
func (c *Client) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	line := fmt.Sprintf("PRIVMSG #%s :%s", c.cfg.Channel, text)
	if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
		return fmt.Errorf("chat: send: %w", err)
	}
	return nil
}

// ClearRecent drops the rolling message log, typically after the log has been
// consumed by a chat response.
func (c *Client) ClearRecent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = nil
}

// Recent returns a copy of the rolling message log, oldest first.
func (c *Client) Recent() []events.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.ChatMessage, len(c.recent))
	copy(out, c.recent)
	return out
}

func (c *Client) handleLine(ctx context.Context, line string) {
	if strings.HasPrefix(line, "PING") {
		pong := "PONG" + strings.TrimPrefix(line, "PING")
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			if err := conn.Write(ctx, websocket.MessageText, []byte(pong)); err != nil {
				slog.Warn("chat: pong failed", "err", err)
			}
		}
		return
	}

	msg, ok := parsePrivmsg(line)
	if !ok {
		return
	}

	if gift, ok := ParseGiftLine(msg.Text); ok && c.onGift != nil {
		c.onGift(gift)
	}

	c.mu.Lock()
	c.recent = append(c.recent, msg)
	if len(c.recent) > LogSize {
		c.recent = c.recent[1:]
	}
	handlers := c.handlers
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// parsePrivmsg extracts the sender and body from an IRC PRIVMSG line. Tags and
// other commands are ignored.
func parsePrivmsg(line string) (events.ChatMessage, bool) {
	// Strip IRCv3 tags.
	if strings.HasPrefix(line, "@") {
		_, rest, ok := strings.Cut(line, " ")
		if !ok {
			return events.ChatMessage{}, false
		}
		line = rest
	}
	if !strings.HasPrefix(line, ":") {
		return events.ChatMessage{}, false
	}
	prefix, rest, ok := strings.Cut(line[1:], " ")
	if !ok {
		return events.ChatMessage{}, false
	}
	cmd, rest, ok := strings.Cut(rest, " ")
	if !ok || cmd != "PRIVMSG" {
		return events.ChatMessage{}, false
	}
	_, body, ok := strings.Cut(rest, " :")
	if !ok {
		return events.ChatMessage{}, false
	}
	user, _, _ := strings.Cut(prefix, "!")
	return events.ChatMessage{User: user, Text: body}, true
}
