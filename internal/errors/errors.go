package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，决定日志级别与是否告警。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// 错误码。系统内不存在自动重试。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeConfiguration         Code = "CONFIGURATION_ERROR"
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeNoWallet              Code = "NO_WALLET"
	CodeSigningFailure        Code = "SIGNING_FAILURE"
	CodeSessionNotFound       Code = "SESSION_NOT_FOUND"
	CodeDuplicateSession      Code = "DUPLICATE_SESSION"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
)

// Attributes 为错误码提供默认行为。
// HTTPStatus 低于 500 的错误码，其信息可以原样返回给客户端。
type Attributes struct {
	Message    string
	Severity   Severity
	Alert      bool
	HTTPStatus int
}

var registry = map[Code]Attributes{
	CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true, HTTPStatus: http.StatusInternalServerError},
	CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo, HTTPStatus: http.StatusBadRequest},
	CodeConfiguration:         {Message: "invalid process configuration", Severity: SeverityCritical, Alert: true, HTTPStatus: http.StatusInternalServerError},
	CodeValidation:            {Message: "invalid credential header", Severity: SeverityInfo, HTTPStatus: http.StatusBadRequest},
	CodeNoWallet:              {Message: "user has no privy wallet", Severity: SeverityInfo, HTTPStatus: http.StatusBadRequest},
	CodeSigningFailure:        {Message: "custody backend rejected the request", Severity: SeverityWarning, Alert: true, HTTPStatus: http.StatusBadGateway},
	CodeSessionNotFound:       {Message: "no transport found for sessionId", Severity: SeverityInfo, HTTPStatus: http.StatusBadRequest},
	CodeDuplicateSession:      {Message: "session already registered", Severity: SeverityWarning, Alert: true, HTTPStatus: http.StatusInternalServerError},
	CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Alert: true, HTTPStatus: http.StatusServiceUnavailable},
	CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Alert: true, HTTPStatus: http.StatusInternalServerError},
	CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Alert: true, HTTPStatus: http.StatusInternalServerError},
	CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning, Alert: true, HTTPStatus: http.StatusGatewayTimeout},
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息，例如出错的请求头名称。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New 创建一个新的错误实例，message 为空时使用错误码的默认信息。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Public 返回可直接展示给客户端的信息，不包含错误码与内部原因。
func (e *Error) Public() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if e == nil || !ok || t == nil {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// Is 判断 err 链中是否存在指定错误码。
func Is(err error, code Code) bool {
	if e, ok := From(err); ok {
		return e.Code() == code
	}
	return false
}

// ShouldAlert 判断是否需要触发告警，未包装的错误不告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return AttributesOf(e.code).Alert
	}
	return false
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	return AttributesOf(CodeOf(err)).Severity
}

// HTTPStatusOf 返回错误对应的 HTTP 状态码。
func HTTPStatusOf(err error) int {
	return AttributesOf(CodeOf(err)).HTTPStatus
}

// PublicMessage 返回适合写入响应体的信息。
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := From(err); ok {
		return e.Public()
	}
	return err.Error()
}
