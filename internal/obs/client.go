// Package obs drives the on-screen avatar through the OBS WebSocket v5
// protocol: a thin request client plus the Animator that slides the avatar in
// and out and bounces it while a clip plays.
package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/coder/websocket"
)

// Protocol opcodes (OBS WebSocket v5).
const (
	opHello      = 0
	opIdentify   = 1
	opIdentified = 2
	opRequest    = 6
	opResponse   = 7
)

// ErrRequestFailed is returned when OBS reports a non-success request status.
var ErrRequestFailed = errors.New("obs: request failed")

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	RPCVersion     int `json:"rpcVersion"`
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

type requestData struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// Client is a minimal OBS WebSocket v5 request client. Safe for concurrent
// use; responses are routed back to callers by request ID.
type Client struct {
	conn *websocket.Conn

	mu      sync.Mutex
	nextID  int
	pending map[string]chan responseData
	closed  bool
}

// Dial connects to an OBS WebSocket endpoint (e.g. "ws://localhost:4455") and
// completes the Hello/Identify handshake. password may be empty when OBS auth
// is disabled.
func Dial(ctx context.Context, url, password string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("obs: dial: %w", err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan responseData),
	}
	if err := c.handshake(ctx, password); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, password string) error {
	var hello envelope
	if err := c.read(ctx, &hello); err != nil {
		return fmt.Errorf("obs: read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("obs: expected hello, got op %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		return fmt.Errorf("obs: decode hello: %w", err)
	}

	id := identifyData{RPCVersion: 1}
	if hd.Authentication != nil {
		if password == "" {
			return errors.New("obs: server requires authentication but no password configured")
		}
		id.Authentication = authToken(password, hd.Authentication.Challenge, hd.Authentication.Salt)
	}
	if err := c.write(ctx, envelope{Op: opIdentify, D: mustMarshal(id)}); err != nil {
		return fmt.Errorf("obs: send identify: %w", err)
	}

	var identified envelope
	if err := c.read(ctx, &identified); err != nil {
		return fmt.Errorf("obs: read identified: %w", err)
	}
	if identified.Op != opIdentified {
		return fmt.Errorf("obs: authentication rejected (op %d)", identified.Op)
	}
	return nil
}

// authToken derives the Identify authentication string:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func authToken(password, challenge, salt string) string {
	secret := sha256.Sum256([]byte(password + salt))
	b64Secret := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(b64Secret + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

// Call issues one request and waits for its response. The returned raw
// message is the responseData object, which may be empty.
func (c *Client) Call(ctx context.Context, requestType string, data any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("obs: client closed")
	}
	c.nextID++
	id := strconv.Itoa(c.nextID)
	ch := make(chan responseData, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := envelope{Op: opRequest, D: mustMarshal(requestData{
		RequestType: requestType,
		RequestID:   id,
		RequestData: data,
	})}
	if err := c.write(ctx, req); err != nil {
		return nil, fmt.Errorf("obs: send %s: %w", requestType, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.New("obs: connection closed")
		}
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("%w: %s: code %d: %s",
				ErrRequestFailed, requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		return resp.ResponseData, nil
	}
}

func (c *Client) readLoop() {
	for {
		var env envelope
		if err := c.read(context.Background(), &env); err != nil {
			c.failPending()
			return
		}
		if env.Op != opResponse {
			// Events and other server messages are not used.
			continue
		}
		var resp responseData
		if err := json.Unmarshal(env.D, &resp); err != nil {
			slog.Warn("obs: malformed response", "err", err)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) read(ctx context.Context, env *envelope) error {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, env)
}

func (c *Client) write(ctx context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
