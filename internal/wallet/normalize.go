package wallet

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// NormalizeSignature 将托管服务返回的签名统一为字节切片。
// 接受三种形态：base64 字符串、{"type":"Buffer","data":[...]} 形式的字节对象、数字数组。
func NormalizeSignature(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty signature")
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("decode signature string: %w", err)
		}
		return decodeBase64(text)
	case '[':
		return decodeByteArray(trimmed)
	case '{':
		var object struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, fmt.Errorf("decode signature object: %w", err)
		}
		if len(object.Data) == 0 {
			return nil, fmt.Errorf("signature object has no data")
		}
		return decodeByteArray(object.Data)
	default:
		return nil, fmt.Errorf("unsupported signature shape %q", trimmed[0])
	}
}

func decodeBase64(text string) ([]byte, error) {
	if out, err := base64.StdEncoding.DecodeString(text); err == nil {
		return out, nil
	}
	out, err := base64.RawStdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decode base64 signature: %w", err)
	}
	return out, nil
}

func decodeByteArray(raw json.RawMessage) ([]byte, error) {
	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode signature bytes: %w", err)
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("signature byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
