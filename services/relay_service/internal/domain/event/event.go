package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// 客户端发来的事件
const (
	JoinStatus      = "join:status"
	UpdateStatus    = "update:status"
	JoinChat        = "join:chat"
	LeaveChat       = "leave:chat"
	SendChatMessage = "send:chat:message"
	InputFocus      = "chat:input:focus"
	InputBlur       = "chat:input:blur"
	InitializeCall  = "initialize:call"
	JoinCall        = "join:call"
	LeaveCall       = "leave:call"
	Ping            = "ping"
)

// 服务端推送的固定事件
const (
	Pong      = "pong"
	Error     = "error"
	Connected = "connected"
)

// Inbound 列出所有入站事件名，用于指标标签
var Inbound = []string{
	JoinStatus, UpdateStatus, JoinChat, LeaveChat, SendChatMessage,
	InputFocus, InputBlur, InitializeCall, JoinCall, LeaveCall, Ping,
}

func OnlineStatus(userID string) string { return "online:status:" + userID }

func ChatMessage(chatID string) string { return "chat:message:" + chatID }

func InputFocusIn(chatID string) string { return InputFocus + ":" + chatID }

func InputBlurIn(chatID string) string { return InputBlur + ":" + chatID }

func Busy(userID string) string { return "busy:" + userID }

func Ring(userID string) string { return userID + ":ring" }

func Unavailable(userID string) string { return "unavailable:" + userID }

func CallJoined(callID string) string { return callID + "joined:call" }

func CallLeft(callID string) string { return callID + "left:call" }

// Frame 线上的一帧：{"event": "...", "data": ..., "ts": 毫秒时间戳}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ts    int64           `json:"ts,omitempty"`
}

// Encode 把事件和载荷编码成一帧。json.RawMessage 载荷原样透传。
func Encode(name string, payload interface{}) ([]byte, error) {
	f := Frame{Event: name, Ts: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", name, err)
		}
		f.Data = data
	}
	return json.Marshal(f)
}

// Decode 解析一帧，事件名不能为空
func Decode(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("decode frame: missing event name")
	}
	return &f, nil
}
