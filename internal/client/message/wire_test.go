package message

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodePollResponse(t *testing.T) {
	body := []byte(`{"code":0,"data":[
		{"floor":1,"data_type":"user","data":{"name":"pride","is_user":true,"send_date":"July 11, 2025 5:51pm","mes":"hello"},"mes_html":"<p>hello</p>"},
		{"floor":2,"data_type":"ai","data":{"name":"Seraphina","is_user":false,"send_date":"Jul 11, 2025 06:13PM","mes":"raw"},"mes_html":"<p>rendered</p>"},
		{"floor":3,"data_type":"system","data":{"name":"sys","mes":"note"}}
	]}`)

	msgs, err := DecodePollResponse(body)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}

	if msgs[0].Body != "hello" || msgs[0].Pane != PaneLive || msgs[0].DataType != DataTypeUser {
		t.Errorf("Unexpected user item: %+v", msgs[0])
	}
	if msgs[0].SentAt != "2025-07-11 17:51" {
		t.Errorf("Expected normalised date, got %q", msgs[0].SentAt)
	}
	if msgs[1].Body != "<p>rendered</p>" || msgs[1].DataType != DataTypeAI {
		t.Errorf("Expected html body for ai item, got %+v", msgs[1])
	}
	if msgs[2].Pane != PaneUser || msgs[2].DataType != DataTypeUnknown {
		t.Errorf("Expected unknown item in user pane, got %+v", msgs[2])
	}
	for i, m := range msgs {
		if !m.HasFloor || m.Floor != i+1 || m.Source != SourcePoll {
			t.Errorf("Item %d: unexpected floor/source %+v", i, m)
		}
	}
}

func TestDecodePollResponseNotList(t *testing.T) {
	for _, body := range []string{
		`{"data":{"floor":1}}`,
		`{"data":null}`,
		`{"code":1}`,
		`{"data":"oops"}`,
	} {
		if _, err := DecodePollResponse([]byte(body)); !errors.Is(err, ErrNotList) {
			t.Errorf("%s: expected ErrNotList, got %v", body, err)
		}
	}

	if _, err := DecodePollResponse([]byte(`not json`)); err == nil || errors.Is(err, ErrNotList) {
		t.Errorf("Expected a decode error, got %v", err)
	}
}

func TestPollItemWithoutFloor(t *testing.T) {
	msgs, err := DecodePollResponse([]byte(`{"data":[{"data_type":"ai","data":{"mes":"x"}}]}`))
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if msgs[0].HasFloor {
		t.Errorf("Expected missing floor, got %+v", msgs[0])
	}
}

func TestFromPushFrame(t *testing.T) {
	now := time.Date(2025, 7, 11, 9, 30, 0, 0, time.UTC)

	live := Frame{Type: FrameLiveMessage, Data: json.RawMessage(`{"sender_name":"Seraphina","is_user":false,"send_date":"Jul 11, 2025 06:13PM","live_message":"raw","live_message_html":"<b>hi</b>"}`)}
	m, err := FromPushFrame(live, now)
	if err != nil {
		t.Fatalf("Failed to adapt live frame: %v", err)
	}
	if m.Pane != PaneLive || m.DataType != DataTypeAI || m.Body != "<b>hi</b>" || m.HasFloor {
		t.Errorf("Unexpected live message: %+v", m)
	}

	echo := Frame{Type: FrameLiveMessage, Data: json.RawMessage(`{"sender_name":"pride","is_user":true,"live_message":"plain","live_message_html":"<p>plain</p>"}`)}
	m, _ = FromPushFrame(echo, now)
	if m.Body != "plain" || m.DataType != DataTypeUser {
		t.Errorf("Expected raw body for user-authored live frame, got %+v", m)
	}

	user := Frame{Type: FrameUserMessage, Data: json.RawMessage(`{"username":"bob","message":"hey"}`)}
	m, _ = FromPushFrame(user, now)
	if m.Pane != PaneUser || m.SenderName != "bob" || m.Body != "hey" || m.SentAt != "2025-07-11 09:30" {
		t.Errorf("Unexpected user message: %+v", m)
	}

	broadcast := Frame{Type: FrameUserMessage, Data: json.RawMessage(`{"sender_name":"AI","live_message_html":"<i>x</i>"}`)}
	m, _ = FromPushFrame(broadcast, now)
	if m.Pane != PaneLive || m.DataType != DataTypeAI {
		t.Errorf("Expected broadcast content routed live, got %+v", m)
	}
}

func TestFromPushFrameErrors(t *testing.T) {
	if _, err := FromPushFrame(Frame{Type: "user_list"}, time.Now()); !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("Expected ErrUnknownFrame, got %v", err)
	}
	if _, err := FromPushFrame(Frame{Type: FrameLiveMessage, Data: json.RawMessage(`[1,2]`)}, time.Now()); err == nil {
		t.Error("Expected decode error for malformed data")
	}
}

func TestFormatSentAt(t *testing.T) {
	cases := map[string]string{
		"Jul 11, 2025 05:51PM":    "2025-07-11 17:51",
		"July 11, 2025 5:51pm":    "2025-07-11 17:51",
		"Jan 2, 2025 12:05AM":     "2025-01-02 00:05",
		"2025-07-11 08:00":        "2025-07-11 08:00",
		"yesterday-ish":           InvalidTime,
		"":                        InvalidTime,
	}
	for in, want := range cases {
		if got := FormatSentAt(in); got != want {
			t.Errorf("FormatSentAt(%q) = %q, want %q", in, got, want)
		}
	}
}
