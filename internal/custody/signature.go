package custody

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// authorizationKeyPrefix 是授权私钥在控制台导出时携带的前缀。
const authorizationKeyPrefix = "wallet-auth:"

// ParseAuthorizationKey 解析 base64 编码的 PKCS#8 P-256 私钥，允许携带 wallet-auth: 前缀。
func ParseAuthorizationKey(raw string) (*ecdsa.PrivateKey, error) {
	encoded := strings.TrimPrefix(strings.TrimSpace(raw), authorizationKeyPrefix)
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode authorization key: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse authorization key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("authorization key is %T, want ECDSA", parsed)
	}
	return key, nil
}

// canonicalPayload 生成键有序、无多余空白的 JSON，作为签名输入。
func canonicalPayload(method, url, appID string, body []byte) ([]byte, error) {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}

	// 结构体字段顺序不保证有序，转成 map 让编码器按键排序。
	payload := map[string]any{
		"version": 1,
		"method":  method,
		"url":     url,
		"body":    decoded,
		"headers": map[string]string{headerAppID: appID},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode signature payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// authorizationSignature 计算 privy-authorization-signature 请求头。
func authorizationSignature(key *ecdsa.PrivateKey, method, url, appID string, body []byte) (string, error) {
	payload, err := canonicalPayload(method, url, appID, body)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
