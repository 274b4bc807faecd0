package errors

import (
	"errors"
	"fmt"
)

var (
	// 身份相关
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")

	// 在线状态存储相关
	ErrPresenceNotFound = errors.New("presence record not found")

	// 会话与连接相关
	ErrConnectionNotFound = errors.New("connection not attached")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrInvalidTransition  = errors.New("invalid session state transition")

	// 协议相关
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownEvent     = errors.New("unknown event")
)

// AuthError 握手被拒绝，连接不会进入 Active
type AuthError struct {
	Reason error // ErrMissingCredential 或 ErrInvalidCredential
	Cause  error
}

func NewAuthError(reason, cause error) *AuthError {
	return &AuthError{Reason: reason, Cause: cause}
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth: %v: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("auth: %v", e.Reason)
}

func (e *AuthError) Unwrap() []error {
	return compact(e.Reason, e.Cause)
}

// StoreError 外部 KV 不可用或返回了无法解析的数据
type StoreError struct {
	Op  string // get|set|delete
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ProtocolError 单个事件的载荷不合法，只丢弃该事件
type ProtocolError struct {
	Event  string
	Reason string
	Err    error
}

func NewProtocolError(event, reason string) *ProtocolError {
	return &ProtocolError{Event: event, Reason: reason, Err: ErrMalformedPayload}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Event, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func compact(errs ...error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
