package solanamcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeServer struct {
	sessionID string
	out       chan []byte
}

func newFakeServer(t *testing.T, sessionID string) *httptest.Server {
	t.Helper()
	fs := &fakeServer{sessionID: sessionID, out: make(chan []byte, 8)}
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", fs.handleSSE)
	mux.HandleFunc("/messages", fs.handleMessages)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (fs *fakeServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Privy-Wallet-Id") == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"User has no Privy wallet"}`))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=%s\n\n", fs.sessionID)
	flusher.Flush()
	for {
		select {
		case msg := <-fs.out:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (fs *fakeServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("sessionId") != "s-1" {
		http.Error(w, "No transport found for sessionId", http.StatusBadRequest)
		return
	}
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("Accepted"))
	if len(req.ID) == 0 {
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "initialize":
		resp["result"] = map[string]any{
			"protocolVersion": DefaultProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "solana-mcpd", "version": "test"},
		}
	case "tools/list":
		resp["result"] = map[string]any{"tools": []map[string]any{
			{"name": "BALANCE", "inputSchema": map[string]any{"type": "object"}},
			{"name": "TRANSFER", "inputSchema": map[string]any{"type": "object"}},
		}}
	case "tools/call":
		switch req.Params.Name {
		case "BALANCE":
			resp["result"] = map[string]any{"content": []map[string]any{{"type": "text", "text": "1.5"}}}
		case "TRANSFER":
			resp["result"] = map[string]any{
				"content": []map[string]any{{"type": "text", "text": "insufficient balance"}},
				"isError": true,
			}
		default:
			resp["error"] = map[string]any{"code": -32602, "message": "unknown tool: " + req.Params.Name}
		}
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}
	data, _ := json.Marshal(resp)
	fs.out <- data
}

func testCredentials() Credentials {
	return Credentials{
		WalletID:         "wallet-1",
		AppID:            "app-1",
		AppSecret:        "secret",
		AuthorizationKey: "wallet-auth:key",
		WalletAddress:    "11111111111111111111111111111111",
		Network:          "devnet",
	}
}

func TestClientRoundTrip(t *testing.T) {
	srv := newFakeServer(t, "s-1")
	client := NewClient(srv.URL, srv.Client())
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx, testCredentials()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := client.SessionID(); got != "s-1" {
		t.Fatalf("expected session s-1, got %q", got)
	}

	info, err := client.Initialize(ctx, "test-client", "0.0.1")
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if info.ProtocolVersion != DefaultProtocolVersion || info.ServerInfo.Name != "solana-mcpd" {
		t.Fatalf("unexpected initialize result: %+v", info)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "BALANCE" {
		t.Fatalf("unexpected tools: %+v", tools)
	}

	result, err := client.CallTool(ctx, "BALANCE", map[string]any{})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if result.IsError || result.Text() != "1.5" {
		t.Fatalf("unexpected result: %+v", result)
	}

	result, err = client.CallTool(ctx, "TRANSFER", nil)
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !result.IsError || result.Text() != "insufficient balance" {
		t.Fatalf("expected in-band tool error, got %+v", result)
	}

	_, err = client.CallTool(ctx, "NOPE", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32602 {
		t.Fatalf("expected rpc error -32602, got %v", err)
	}
}

func TestConnectRejected(t *testing.T) {
	srv := newFakeServer(t, "s-1")
	client := NewClient(srv.URL, srv.Client())

	err := client.Connect(context.Background(), Credentials{})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "User has no Privy wallet" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestUnknownSessionSurfacesAPIError(t *testing.T) {
	srv := newFakeServer(t, "gone")
	client := NewClient(srv.URL, srv.Client())
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Connect(context.Background(), testCredentials()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.ListTools(ctx)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T (%v)", err, err)
	}
	if apiErr.Message != "No transport found for sessionId" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestCallAfterStreamEnds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: endpoint\ndata: /messages?sessionId=s-1\n\n")
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, srv.Client())
	if err := client.Connect(context.Background(), testCredentials()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	select {
	case <-client.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}
	if _, err := client.ListTools(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
