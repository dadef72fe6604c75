package message

import (
	"strings"
	"time"
)

type DataType string

const (
	DataTypeAI      DataType = "ai"
	DataTypeUser    DataType = "user"
	DataTypeUnknown DataType = "unknown"
)

// ParseDataType maps the wire value to a DataType, anything unexpected is unknown.
func ParseDataType(s string) DataType {
	switch DataType(strings.ToLower(strings.TrimSpace(s))) {
	case DataTypeAI:
		return DataTypeAI
	case DataTypeUser:
		return DataTypeUser
	}
	return DataTypeUnknown
}

type Source int

const (
	SourcePoll Source = iota
	SourcePush
	SourceLocal
)

func (s Source) String() string {
	switch s {
	case SourcePoll:
		return "poll"
	case SourcePush:
		return "push"
	case SourceLocal:
		return "local"
	}
	return "unknown"
}

// Pane is the display region a message is rendered into.
type Pane int

const (
	PaneLive Pane = iota
	PaneUser
)

func (p Pane) String() string {
	if p == PaneLive {
		return "live"
	}
	return "user"
}

// Message is one chat entry after ingestion. Floor is only meaningful when
// HasFloor is set; push frames never carry one.
type Message struct {
	Floor      int
	HasFloor   bool
	DataType   DataType
	SenderName string
	IsUser     bool
	Body       string
	SentAt     string
	Source     Source
	Pane       Pane
}

// Outbound is the frame written to the push channel.
type Outbound struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// TimeLayout is the display layout for every SentAt value.
const TimeLayout = "2006-01-02 15:04"

const InvalidTime = "invalid time"

var serverLayouts = []string{
	"Jan 2, 2006 3:04PM",
	"January 2, 2006 3:04PM",
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
	TimeLayout,
	time.RFC3339,
}

// FormatSentAt converts a server formatted date such as "Jul 11, 2025 05:51PM"
// into TimeLayout. Unparseable input yields InvalidTime.
func FormatSentAt(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return InvalidTime
	}
	// month names match case-insensitively, AM/PM does not
	upper := strings.ToUpper(raw)
	for _, layout := range serverLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return t.Format(TimeLayout)
		}
	}
	return InvalidTime
}
