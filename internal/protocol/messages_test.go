package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewMatched_WireShape(t *testing.T) {
	raw, err := NewMatched("B", []string{"MUSIC", "FILM"}, "abc123", "http://chat-0")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]string{
		"state":         "MATCHED",
		"matchedUserId": "B",
		"interest":      "MUSIC,FILM",
		"chatId":        "abc123",
		"chatServerUrl": "http://chat-0",
	}
	for key, val := range want {
		if fields[key] != val {
			t.Errorf("field %s: expected %q, got %q", key, val, fields[key])
		}
	}
}

func TestNewMatched_WildcardHasEmptyInterest(t *testing.T) {
	raw, err := NewMatched("B", nil, "abc123", "http://chat-0")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var frame MatchedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Interest != "" {
		t.Errorf("expected empty interest for wildcard pairing, got %q", frame.Interest)
	}
}

func TestNewWaiting(t *testing.T) {
	raw, err := NewWaiting()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"state":"WAITING"}` {
		t.Errorf("unexpected waiting frame: %s", raw)
	}
}

func TestMessageFrames(t *testing.T) {
	raw, err := NewMaintenance("back soon")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var frame MessageFrame
	json.Unmarshal(raw, &frame)
	if frame.State != StateMaintenance || frame.Message != "back soon" {
		t.Errorf("unexpected maintenance frame: %+v", frame)
	}

	raw, err = NewError("boom")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	json.Unmarshal(raw, &frame)
	if frame.State != StateError || frame.Message != "boom" {
		t.Errorf("unexpected error frame: %+v", frame)
	}
}
