package custody

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "SolanaMCP-Agent/internal/errors"
)

const (
	// DefaultBaseURL 是托管服务的默认地址。
	DefaultBaseURL = "https://api.privy.io"
	// DefaultTimeout 是单次托管调用的默认超时时间。
	DefaultTimeout = 30 * time.Second

	headerAppID         = "privy-app-id"
	headerAuthSignature = "privy-authorization-signature"

	maxResponseBytes = 1 << 20
)

// Signer 是钱包适配器依赖的托管签名能力。
type Signer interface {
	// SignTransaction 返回签名后的序列化交易。
	SignTransaction(ctx context.Context, walletID string, tx []byte) ([]byte, error)
	// SignAndSendTransaction 在指定链上签名并广播交易，返回交易哈希。
	SignAndSendTransaction(ctx context.Context, walletID, caip2 string, tx []byte) (string, error)
	// SignMessage 返回托管服务给出的原始签名字段，由调用方归一化。
	SignMessage(ctx context.Context, walletID string, message []byte) (json.RawMessage, error)
}

// Credentials 是访问托管服务所需的应用凭证。
type Credentials struct {
	AppID            string
	AppSecret        string
	AuthorizationKey string
}

// Client 通过 HTTPS 调用托管钱包 RPC 接口。
type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	authKey    *ecdsa.PrivateKey
	httpClient *http.Client
	timeout    time.Duration
}

// Option 定义 Client 的可选配置。
type Option func(*Client)

// WithBaseURL 覆盖托管服务地址。
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithHTTPClient 使用自定义 HTTP 客户端。
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout 设置单次调用的超时时间，非正数表示不设超时。
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient 校验凭证并创建客户端。授权私钥无法解析时返回 VALIDATION_ERROR。
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if strings.TrimSpace(creds.AppID) == "" || strings.TrimSpace(creds.AppSecret) == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "custody app id and secret are required")
	}
	key, err := ParseAuthorizationKey(creds.AuthorizationKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "invalid authorization private key")
	}

	client := &Client{
		baseURL:    DefaultBaseURL,
		appID:      creds.AppID,
		appSecret:  creds.AppSecret,
		authKey:    key,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type rpcRequest struct {
	Method string    `json:"method"`
	CAIP2  string    `json:"caip2,omitempty"`
	Params rpcParams `json:"params"`
}

type rpcParams struct {
	Transaction string `json:"transaction,omitempty"`
	Message     string `json:"message,omitempty"`
	Encoding    string `json:"encoding"`
}

type rpcResponse struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SignTransaction 调用 signTransaction。
func (c *Client) SignTransaction(ctx context.Context, walletID string, tx []byte) ([]byte, error) {
	req := rpcRequest{
		Method: "signTransaction",
		Params: rpcParams{Transaction: base64.StdEncoding.EncodeToString(tx), Encoding: "base64"},
	}
	var data struct {
		SignedTransaction string `json:"signed_transaction"`
	}
	if err := c.call(ctx, walletID, req, &data); err != nil {
		return nil, err
	}
	if data.SignedTransaction == "" {
		return nil, xerrors.New(xerrors.CodeSigningFailure, "custody response missing signed transaction")
	}
	signed, err := base64.StdEncoding.DecodeString(data.SignedTransaction)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "custody returned malformed signed transaction")
	}
	return signed, nil
}

// SignAndSendTransaction 调用 signAndSendTransaction。
func (c *Client) SignAndSendTransaction(ctx context.Context, walletID, caip2 string, tx []byte) (string, error) {
	req := rpcRequest{
		Method: "signAndSendTransaction",
		CAIP2:  caip2,
		Params: rpcParams{Transaction: base64.StdEncoding.EncodeToString(tx), Encoding: "base64"},
	}
	var data struct {
		Hash string `json:"hash"`
	}
	if err := c.call(ctx, walletID, req, &data); err != nil {
		return "", err
	}
	if data.Hash == "" {
		return "", xerrors.New(xerrors.CodeSigningFailure, "custody response missing transaction hash")
	}
	return data.Hash, nil
}

// SignMessage 调用 signMessage，消息以 base64 文本形式发送。
func (c *Client) SignMessage(ctx context.Context, walletID string, message []byte) (json.RawMessage, error) {
	req := rpcRequest{
		Method: "signMessage",
		Params: rpcParams{Message: base64.StdEncoding.EncodeToString(message), Encoding: "base64"},
	}
	var data struct {
		Signature json.RawMessage `json:"signature"`
	}
	if err := c.call(ctx, walletID, req, &data); err != nil {
		return nil, err
	}
	if len(data.Signature) == 0 || string(data.Signature) == "null" {
		return nil, xerrors.New(xerrors.CodeSigningFailure, "custody response missing signature")
	}
	return data.Signature, nil
}

// call 发送一次 RPC 请求，不做任何重试。
func (c *Client) call(ctx context.Context, walletID string, req rpcRequest, out any) error {
	if strings.TrimSpace(walletID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "wallet id is required")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSigningFailure, err, "encode custody request")
	}
	endpoint := fmt.Sprintf("%s/v1/wallets/%s/rpc", c.baseURL, url.PathEscape(walletID))
	signature, err := authorizationSignature(c.authKey, http.MethodPost, endpoint, c.appID, body)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSigningFailure, err, "sign custody request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSigningFailure, err, "build custody request")
	}
	httpReq.SetBasicAuth(c.appID, c.appSecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerAppID, c.appID)
	httpReq.Header.Set(headerAuthSignature, signature)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return xerrors.Wrap(xerrors.CodeSigningFailure, err, "custody request timed out",
				xerrors.WithMetadata("method", req.Method))
		}
		return xerrors.Wrap(xerrors.CodeSigningFailure, err, "custody request failed",
			xerrors.WithMetadata("method", req.Method))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSigningFailure, err, "read custody response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(req.Method, resp.StatusCode, payload)
	}

	var envelope rpcResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return xerrors.Wrap(xerrors.CodeSigningFailure, err, "decode custody response")
	}
	if len(envelope.Data) == 0 {
		return xerrors.New(xerrors.CodeSigningFailure, "custody response missing data")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return xerrors.Wrap(xerrors.CodeSigningFailure, err, "decode custody response data")
	}
	return nil
}

func statusError(method string, status int, payload []byte) error {
	var body errorResponse
	detail := strings.TrimSpace(string(payload))
	if err := json.Unmarshal(payload, &body); err == nil {
		switch {
		case body.Error != "":
			detail = body.Error
		case body.Message != "":
			detail = body.Message
		}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return xerrors.New(xerrors.CodeSigningFailure,
		fmt.Sprintf("custody %s failed with status %d: %s", method, status, detail),
		xerrors.WithMetadata("method", method),
		xerrors.WithMetadata("status", fmt.Sprint(status)))
}
