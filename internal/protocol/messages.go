// Package protocol defines the JSON frames pushed to clients over the
// matchmaking event stream. Every frame carries a "state" discriminator;
// the MATCHED frame is also the payload published on the notification
// bus, so its wire shape is shared between the stream and the bus.
package protocol

import (
	"encoding/json"
	"strings"
)

// Stream states.
const (
	StateWaiting     = "WAITING"
	StateMatched     = "MATCHED"
	StateMaintenance = "MAINTENANCE"
	StateError       = "ERROR"
)

// WaitingFrame is emitted once when the caller is enqueued.
type WaitingFrame struct {
	State string `json:"state"`
}

// MatchedFrame is emitted once when a pair forms, then the stream ends.
// Interest is the comma-separated list of common interests; empty for a
// wildcard pairing.
type MatchedFrame struct {
	State         string `json:"state"`
	MatchedUserID string `json:"matchedUserId"`
	Interest      string `json:"interest"`
	ChatID        string `json:"chatId"`
	ChatServerURL string `json:"chatServerUrl"`
}

// MessageFrame carries the MAINTENANCE and ERROR states, which only need
// a human-readable message.
type MessageFrame struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// NewWaiting returns the serialized WAITING frame.
func NewWaiting() ([]byte, error) {
	return json.Marshal(WaitingFrame{State: StateWaiting})
}

// NewMatched returns the serialized MATCHED frame for the given partner
// and common interests.
func NewMatched(partnerID string, common []string, chatID, chatServerURL string) ([]byte, error) {
	return json.Marshal(MatchedFrame{
		State:         StateMatched,
		MatchedUserID: partnerID,
		Interest:      strings.Join(common, ","),
		ChatID:        chatID,
		ChatServerURL: chatServerURL,
	})
}

// NewMaintenance returns the serialized MAINTENANCE frame.
func NewMaintenance(message string) ([]byte, error) {
	return json.Marshal(MessageFrame{State: StateMaintenance, Message: message})
}

// NewError returns the serialized ERROR frame.
func NewError(message string) ([]byte, error) {
	return json.Marshal(MessageFrame{State: StateError, Message: message})
}
