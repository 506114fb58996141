package solanamcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHTTPTimeout defines the timeout applied to message posts by clients
// created without a custom http.Client. The event stream itself is never
// subject to a timeout.
const DefaultHTTPTimeout = 15 * time.Second

// DefaultProtocolVersion is the protocol revision requested by Initialize.
const DefaultProtocolVersion = "2024-11-05"

// ErrClosed is returned for calls made after the event stream has ended.
var ErrClosed = errors.New("solanamcp: stream closed")

// Credentials carries the custody wallet headers sent on the stream request.
type Credentials struct {
	WalletID         string
	AppID            string
	AppSecret        string
	AuthorizationKey string
	WalletAddress    string
	// Network is optional; the server defaults to mainnet.
	Network string
}

// Header renders the credentials as request headers.
func (c Credentials) Header() http.Header {
	h := http.Header{}
	h.Set("X-Privy-Wallet-Id", c.WalletID)
	h.Set("X-Privy-App-Id", c.AppID)
	h.Set("X-Privy-App-Secret", c.AppSecret)
	h.Set("X-Privy-Authorization-Private-Key", c.AuthorizationKey)
	h.Set("X-Wallet-Address", c.WalletAddress)
	if c.Network != "" {
		h.Set("X-Network", c.Network)
	}
	return h
}

// Tool describes one entry returned by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the payload of a tools/call response. IsError marks a tool
// failure reported in-band rather than as a protocol error.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text joins all text blocks of the result.
func (r ToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ServerInfo identifies the remote implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the payload of an initialize response.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
}

// APIError represents a non-2xx HTTP answer from the server.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("solanamcp api error (%d): %s", e.StatusCode, e.Message)
}

// RPCError is a JSON-RPC error object returned for a request.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("solanamcp rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client speaks MCP to a solana-mcpd server over its SSE transport.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	nextID atomic.Int64

	mu       sync.Mutex
	endpoint *url.URL
	stream   io.ReadCloser
	pending  map[string]chan rpcResponse
	done     chan struct{}
	err      error
}

// NewClient instantiates a client for the server at rawURL. When httpClient
// is nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{
		baseURL:    parsed,
		httpClient: httpClient,
		pending:    make(map[string]chan rpcResponse),
	}
}

// Connect opens the event stream with the given credentials and waits for
// the endpoint event. Setup failures surface as *APIError.
func (c *Client) Connect(ctx context.Context, creds Credentials) error {
	c.mu.Lock()
	if c.stream != nil {
		c.mu.Unlock()
		return errors.New("solanamcp: already connected")
	}
	c.mu.Unlock()

	u := c.baseURL.ResolveReference(&url.URL{Path: path.Join(c.baseURL.Path, "/sse")})
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = creds.Header()
	req.Header.Set("Accept", "text/event-stream")

	streamClient := *c.httpClient
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return decodeAPIError(resp)
	}

	reader := bufio.NewReader(resp.Body)
	endpoint := make(chan string, 1)
	done := make(chan struct{})

	c.mu.Lock()
	c.stream = resp.Body
	c.done = done
	c.mu.Unlock()

	go c.readLoop(reader, endpoint, done)

	select {
	case raw, ok := <-endpoint:
		if !ok {
			return c.streamErr()
		}
		ref, err := url.Parse(raw)
		if err != nil {
			_ = c.Close()
			return fmt.Errorf("parse endpoint %q: %w", raw, err)
		}
		c.mu.Lock()
		c.endpoint = u.ResolveReference(ref)
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	}
}

// SessionID returns the server-assigned session identifier once connected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endpoint == nil {
		return ""
	}
	return c.endpoint.Query().Get("sessionId")
}

// Initialize performs the MCP handshake and sends the initialized
// notification.
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) (InitializeResult, error) {
	params := map[string]any{
		"protocolVersion": DefaultProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      ServerInfo{Name: clientName, Version: clientVersion},
	}
	var result InitializeResult
	if err := c.Call(ctx, "initialize", params, &result); err != nil {
		return InitializeResult{}, err
	}
	if err := c.Notify(ctx, "notifications/initialized", nil); err != nil {
		return InitializeResult{}, err
	}
	return result, nil
}

// ListTools returns the tools exposed by the session.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.Call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool. A tool-level failure is returned as a result with
// IsError set, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args any) (ToolResult, error) {
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	var result ToolResult
	if err := c.Call(ctx, "tools/call", params, &result); err != nil {
		return ToolResult{}, err
	}
	return result, nil
}

// Call sends a JSON-RPC request and waits for the matching response on the
// event stream.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	id := c.nextID.Add(1)
	key := strconv.FormatInt(id, 10)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	done := c.done
	c.pending[key] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	if err := c.post(ctx, rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return nil
	case <-done:
		return c.streamErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify sends a JSON-RPC notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	return c.post(ctx, rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// Close ends the event stream, which closes the session on the server.
func (c *Client) Close() error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Close()
}

// Done is closed once the event stream ends.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Client) post(ctx context.Context, payload rpcRequest) error {
	c.mu.Lock()
	endpoint := c.endpoint
	c.mu.Unlock()
	if endpoint == nil {
		return errors.New("solanamcp: not connected")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) readLoop(reader *bufio.Reader, endpoint chan<- string, done chan struct{}) {
	var (
		event string
		data  []string
		sent  bool
	)
	err := func() error {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if len(data) > 0 {
					payload := strings.Join(data, "\n")
					switch event {
					case "endpoint":
						if !sent {
							endpoint <- payload
							sent = true
						}
					case "", "message":
						c.dispatch([]byte(payload))
					}
				}
				event, data = "", nil
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
	}()

	if errors.Is(err, io.EOF) || err == nil {
		err = ErrClosed
	} else {
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	if !sent {
		close(endpoint)
	}
	close(done)
}

func (c *Client) dispatch(payload []byte) {
	var batch []rpcResponse
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return
		}
	} else {
		var single rpcResponse
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return
		}
		batch = []rpcResponse{single}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, resp := range batch {
		if ch, ok := c.pending[string(bytes.TrimSpace(resp.ID))]; ok {
			select {
			case ch <- resp:
			default:
			}
		}
	}
}

func (c *Client) streamErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
