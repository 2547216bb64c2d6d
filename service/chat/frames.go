package chat

import (
	"encoding/json"
	"time"

	"ChatRelay/service/store"
	"ChatRelay/tools/decode"
	"ChatRelay/tools/errs"
)

const timestampLayout = time.RFC3339

// Client→server frame kinds. Server→client frames reuse KindMessage and
// KindError and add KindAuthSuccess/KindHistory.
const (
	KindAuth        = "auth"
	KindMessage     = "message"
	KindAuthSuccess = "auth_success"
	KindHistory     = "history"
	KindError       = "error"
)

// Frame is one parsed inbound frame: its declared kind plus the raw
// object for payload binding.
type Frame struct {
	Kind string
	Raw  map[string]any
}

// AuthPayload is the client credential frame.
type AuthPayload struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// MessagePayload is the client chat frame.
type MessagePayload struct {
	Text string `json:"text"`
}

// ParseFrame parses one inbound frame. A bare {text} object without a
// type is accepted as a message for backward compatibility; a frame that
// is not a JSON object fails with ErrProtocol.
func ParseFrame(raw []byte) (*Frame, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errs.ErrProtocol.WrapMsg("unmarshal frame", "err", err)
	}
	kind, _ := m["type"].(string)
	if kind == "" {
		if _, ok := m["text"]; ok {
			kind = KindMessage
		}
	}
	return &Frame{Kind: kind, Raw: m}, nil
}

func DecodeAuth(f *Frame) (*AuthPayload, error) {
	p, err := decode.DecodeMap[AuthPayload](f.Raw)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("decode auth payload", "err", err)
	}
	return p, nil
}

func DecodeMessage(f *Frame) (*MessagePayload, error) {
	p, err := decode.DecodeMap[MessagePayload](f.Raw)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("decode message payload", "err", err)
	}
	return p, nil
}

// ---- outbound frame builders ----

type statusFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type historyFrame struct {
	Type     string              `json:"type"`
	Messages []store.ChatMessage `json:"messages"`
}

type messageFrame struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	UID       string `json:"uid"`
}

func BuildAuthSuccess(message string) []byte {
	b, _ := json.Marshal(statusFrame{Type: KindAuthSuccess, Message: message})
	return b
}

func BuildError(message string) []byte {
	b, _ := json.Marshal(statusFrame{Type: KindError, Message: message})
	return b
}

// BuildHistory carries stored messages oldest first.
func BuildHistory(msgs []store.ChatMessage) []byte {
	if msgs == nil {
		msgs = []store.ChatMessage{}
	}
	b, _ := json.Marshal(historyFrame{Type: KindHistory, Messages: msgs})
	return b
}

func BuildChatMessage(m *store.ChatMessage) []byte {
	b, _ := json.Marshal(messageFrame{
		Type:      KindMessage,
		Username:  m.AuthorName,
		Text:      m.Text,
		Timestamp: m.Timestamp.Format(timestampLayout),
		UID:       m.AuthorID,
	})
	return b
}
