package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Mizu36/maddieply/internal/events"
)

func TestParseGiftLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want GiftLine
		ok   bool
	}{
		{
			name: "named gifter",
			text: "StreamFan99 gifted a Tier 1 Sub to luckyviewer!",
			want: GiftLine{Gifter: "StreamFan99", Recipient: "luckyviewer", Tier: "1"},
			ok:   true,
		},
		{
			name: "anonymous gifter",
			text: "An anonymous gifter gave luckyviewer a Tier 3 Sub!",
			want: GiftLine{Gifter: "Anonymous", Recipient: "luckyviewer", Tier: "3", Anonymous: true},
			ok:   true,
		},
		{
			name: "ordinary message",
			text: "hello chat",
			ok:   false,
		},
		{
			name: "similar but not a notice",
			text: "I once gifted a Tier 1 Sub to my friend",
			ok:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseGiftLine(tc.text)
			if ok != tc.ok {
				t.Fatalf("ok = %v; want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("got %+v; want %+v", got, tc.want)
			}
		})
	}
}

func TestParsePrivmsg(t *testing.T) {
	t.Parallel()

	msg, ok := parsePrivmsg(":someuser!someuser@someuser.tmi.twitch.tv PRIVMSG #channel :hello :) there")
	if !ok {
		t.Fatal("expected a parsed message")
	}
	if msg.User != "someuser" || msg.Text != "hello :) there" {
		t.Fatalf("got %+v", msg)
	}

	tagged := "@badge-info=;color=#FF0000 :tagged!tagged@tmi PRIVMSG #channel :tagged body"
	msg, ok = parsePrivmsg(tagged)
	if !ok || msg.User != "tagged" || msg.Text != "tagged body" {
		t.Fatalf("tagged parse = %+v, %v", msg, ok)
	}

	if _, ok := parsePrivmsg(":tmi.twitch.tv 001 bot :Welcome"); ok {
		t.Fatal("numeric replies must not parse as messages")
	}
}

// fakeIRC accepts one connection, records the handshake, relays injected
// lines, and captures outgoing writes.
type fakeIRC struct {
	srv *httptest.Server

	mu       sync.Mutex
	received []string
	outbound chan string
}

func newFakeIRC(t *testing.T) *fakeIRC {
	t.Helper()
	f := &fakeIRC{outbound: make(chan string, 16)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		go func() {
			for line := range f.outbound {
				if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
					return
				}
			}
		}()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			f.mu.Lock()
			f.received = append(f.received, string(data))
			f.mu.Unlock()
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIRC) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeIRC) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.received))
	copy(out, f.received)
	return out
}

func (f *fakeIRC) contains(line string) bool {
	for _, l := range f.lines() {
		if l == line {
			return true
		}
	}
	return false
}

func testClient(t *testing.T, f *fakeIRC, opts ...Option) *Client {
	t.Helper()
	c, err := New(Config{
		URL:     f.url(),
		Nick:    "maddiebot",
		Channel: "teststream",
		Token:   func(context.Context) (string, error) { return "tok123", nil },
	}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRunAuthenticatesAndJoins(t *testing.T) {
	t.Parallel()

	f := newFakeIRC(t)
	c := testClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, func() bool {
		return f.contains("PASS oauth:tok123") &&
			f.contains("NICK maddiebot") &&
			f.contains("JOIN #teststream")
	})
}

func TestPingIsAnsweredWithPong(t *testing.T) {
	t.Parallel()

	f := newFakeIRC(t)
	c := testClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, func() bool { return f.contains("JOIN #teststream") })
	f.outbound <- "PING :tmi.twitch.tv"
	waitFor(t, func() bool { return f.contains("PONG :tmi.twitch.tv") })
}

func TestMessagesFeedLogAndHandlers(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		seen  []events.ChatMessage
		gifts []GiftLine
	)
	f := newFakeIRC(t)
	c := testClient(t, f,
		WithMessageHandler(func(m events.ChatMessage) {
			mu.Lock()
			seen = append(seen, m)
			mu.Unlock()
		}),
		WithGiftHandler(func(g GiftLine) {
			mu.Lock()
			gifts = append(gifts, g)
			mu.Unlock()
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitFor(t, func() bool { return f.contains("JOIN #teststream") })
	f.outbound <- ":viewer!viewer@tmi PRIVMSG #teststream :hi maddie"
	f.outbound <- ":viewer!viewer@tmi PRIVMSG #teststream :Gifty gifted a Tier 1 Sub to lucky!"

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && len(gifts) == 1
	})

	mu.Lock()
	if gifts[0].Gifter != "Gifty" || gifts[0].Recipient != "lucky" {
		t.Fatalf("gift = %+v", gifts[0])
	}
	mu.Unlock()

	recent := c.Recent()
	if len(recent) != 2 || recent[0].Text != "hi maddie" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestRecentLogIsBounded(t *testing.T) {
	t.Parallel()

	f := newFakeIRC(t)
	c := testClient(t, f)

	for i := 0; i < LogSize+5; i++ {
		c.handleLine(context.Background(), ":v!v@tmi PRIVMSG #teststream :msg")
	}
	if got := len(c.Recent()); got != LogSize {
		t.Fatalf("log length = %d; want %d", got, LogSize)
	}
}
