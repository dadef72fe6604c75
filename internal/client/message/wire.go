package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Push frame types
const (
	FrameLiveMessage = "chat_live_message"
	FrameUserMessage = "chat_user_message"
)

var (
	ErrNotList      = errors.New("poll payload data is not a list")
	ErrUnknownFrame = errors.New("unknown frame type")
)

// Frame is one inbound push-channel frame.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type liveFrameData struct {
	SenderName      string  `json:"sender_name"`
	IsUser          bool    `json:"is_user"`
	SendDate        string  `json:"send_date"`
	LiveMessage     *string `json:"live_message"`
	LiveMessageHTML *string `json:"live_message_html"`
}

type userFrameData struct {
	Username *string `json:"username"`
	Message  *string `json:"message"`
}

// PollItem is one entry of the get_room_chat response.
type PollItem struct {
	Floor    *int   `json:"floor"`
	DataType string `json:"data_type"`
	Data     struct {
		Name     string `json:"name"`
		IsUser   bool   `json:"is_user"`
		SendDate string `json:"send_date"`
		Mes      string `json:"mes"`
	} `json:"data"`
	MesHTML string `json:"mes_html"`
}

type pollResponse struct {
	Data json.RawMessage `json:"data"`
}

// DecodePollResponse extracts the items of a poll response body. A body whose
// data field is not a JSON list returns ErrNotList.
func DecodePollResponse(body []byte) ([]Message, error) {
	var resp pollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	raw := bytes.TrimSpace(resp.Data)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrNotList
	}
	var items []PollItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode poll items: %w", err)
	}
	msgs := make([]Message, 0, len(items))
	for _, it := range items {
		msgs = append(msgs, it.Message())
	}
	return msgs, nil
}

// Message converts a poll item. Items tagged ai or user go to the live pane.
func (it PollItem) Message() Message {
	m := Message{
		DataType:   ParseDataType(it.DataType),
		SenderName: it.Data.Name,
		IsUser:     it.Data.IsUser,
		SentAt:     FormatSentAt(it.Data.SendDate),
		Source:     SourcePoll,
		Pane:       PaneUser,
	}
	if it.Floor != nil {
		m.Floor = *it.Floor
		m.HasFloor = true
	}
	if m.DataType != DataTypeUnknown {
		m.Pane = PaneLive
	}
	m.Body = it.Data.Mes
	if !it.Data.IsUser && it.MesHTML != "" {
		m.Body = it.MesHTML
	}
	return m
}

// FromPushFrame is the ingestion adapter for the push channel. Frames do not
// tag their author kind, so it is inferred here from the fields present and
// nowhere else. now stamps user-pane messages, which carry no date.
func FromPushFrame(f Frame, now time.Time) (Message, error) {
	switch f.Type {
	case FrameLiveMessage:
		var d liveFrameData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", f.Type, err)
		}
		m := Message{
			SenderName: d.SenderName,
			IsUser:     d.IsUser,
			SentAt:     FormatSentAt(d.SendDate),
			Source:     SourcePush,
			Pane:       PaneLive,
			DataType:   classifyLive(d),
		}
		if d.IsUser {
			m.Body = deref(d.LiveMessage)
		} else {
			m.Body = deref(d.LiveMessageHTML)
		}
		return m, nil

	case FrameUserMessage:
		var d userFrameData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", f.Type, err)
		}
		m := Message{
			SenderName: deref(d.Username),
			IsUser:     true,
			Body:       deref(d.Message),
			SentAt:     now.Format(TimeLayout),
			Source:     SourcePush,
			Pane:       PaneUser,
			DataType:   DataTypeUnknown,
		}
		// a user frame carrying broadcast fields belongs to the live pane
		if d.Username == nil && d.Message == nil {
			var live liveFrameData
			if err := json.Unmarshal(f.Data, &live); err == nil && (live.LiveMessage != nil || live.LiveMessageHTML != nil) {
				return FromPushFrame(Frame{Type: FrameLiveMessage, Data: f.Data}, now)
			}
		}
		return m, nil
	}
	return Message{}, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Type)
}

func classifyLive(d liveFrameData) DataType {
	if d.IsUser {
		return DataTypeUser
	}
	if d.LiveMessage != nil || d.LiveMessageHTML != nil {
		return DataTypeAI
	}
	return DataTypeUnknown
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
