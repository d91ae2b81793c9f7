package obs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeOBS runs a minimal OBS WebSocket v5 server: Hello with auth challenge,
// Identify verification, then canned request handling.
func fakeOBS(t *testing.T, password string, handle func(req requestData) responseData) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		const challenge, salt = "chal+abc", "salt+xyz"
		hello := map[string]any{
			"op": opHello,
			"d": map[string]any{
				"rpcVersion": 1,
				"authentication": map[string]string{
					"challenge": challenge,
					"salt":      salt,
				},
			},
		}
		data, _ := json.Marshal(hello)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}

		_, raw, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var env envelope
		json.Unmarshal(raw, &env)
		var id identifyData
		json.Unmarshal(env.D, &id)
		if id.Authentication != authToken(password, challenge, salt) {
			t.Errorf("bad auth token %q", id.Authentication)
			return
		}
		data, _ = json.Marshal(map[string]any{"op": opIdentified, "d": map[string]any{"negotiatedRpcVersion": 1}})
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}

		for {
			_, raw, err := conn.Read(ctx)
			if err != nil {
				return
			}
			json.Unmarshal(raw, &env)
			if env.Op != opRequest {
				continue
			}
			var req requestData
			json.Unmarshal(env.D, &req)
			resp := handle(req)
			resp.RequestID = req.RequestID
			data, _ := json.Marshal(envelope{Op: opResponse, D: mustMarshal(resp)})
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialAuthenticatesAndCalls(t *testing.T) {
	t.Parallel()

	srv := fakeOBS(t, "hunter2", func(req requestData) responseData {
		var resp responseData
		resp.RequestType = req.RequestType
		resp.RequestStatus.Result = true
		resp.RequestStatus.Code = 100
		if req.RequestType == "GetCurrentProgramScene" {
			resp.ResponseData = json.RawMessage(`{"currentProgramSceneName":"Live"}`)
		}
		return resp
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, wsURL(srv), "hunter2")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	raw, err := c.Call(ctx, "GetCurrentProgramScene", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var scene struct {
		CurrentProgramSceneName string `json:"currentProgramSceneName"`
	}
	if err := json.Unmarshal(raw, &scene); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if scene.CurrentProgramSceneName != "Live" {
		t.Fatalf("scene = %q", scene.CurrentProgramSceneName)
	}
}

func TestCallSurfacesRequestFailure(t *testing.T) {
	t.Parallel()

	srv := fakeOBS(t, "hunter2", func(req requestData) responseData {
		var resp responseData
		resp.RequestType = req.RequestType
		resp.RequestStatus.Result = false
		resp.RequestStatus.Code = 600
		resp.RequestStatus.Comment = "no such request"
		return resp
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, wsURL(srv), "hunter2")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Call(ctx, "Bogus", nil); !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("Call = %v; want ErrRequestFailed", err)
	}
}

func TestDialRequiresPasswordWhenChallenged(t *testing.T) {
	t.Parallel()

	srv := fakeOBS(t, "hunter2", func(requestData) responseData { return responseData{} })
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := Dial(ctx, wsURL(srv), ""); err == nil {
		t.Fatal("expected error when server demands auth and no password is set")
	}
}

func TestAuthTokenIsDeterministic(t *testing.T) {
	t.Parallel()

	a := authToken("pw", "challenge", "salt")
	b := authToken("pw", "challenge", "salt")
	if a != b || a == "" {
		t.Fatalf("authToken unstable: %q vs %q", a, b)
	}
	if authToken("other", "challenge", "salt") == a {
		t.Fatal("different passwords must produce different tokens")
	}
}
