package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// MessageType tags a message on the sync channel.
type MessageType string

const (
	// TypeBalanceUpdated is broadcast after every local mutation.
	TypeBalanceUpdated MessageType = "BALANCE_UPDATED"
)

// DefaultChannelName is the sync channel shared by every context.
const DefaultChannelName = "faycoin-sync"

var channelNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// ValidChannelName reports whether name is usable as a channel name: 1 to 64
// letters, digits, dots, underscores or hyphens.
func ValidChannelName(name string) bool {
	return channelNamePattern.MatchString(name)
}

// ReplicationMessage is the payload replicated to other contexts.
// Timestamp is milliseconds since the Unix epoch.
type ReplicationMessage struct {
	Type       MessageType `json:"type"`
	Origin     string      `json:"origin,omitempty"`
	NewBalance int64       `json:"newBalance"`
	OldBalance int64       `json:"oldBalance"`
	Timestamp  int64       `json:"timestamp"`
}

// NewBalanceUpdated builds a BALANCE_UPDATED message.
func NewBalanceUpdated(origin string, change BalanceChange, tsMillis int64) ReplicationMessage {
	return ReplicationMessage{
		Type:       TypeBalanceUpdated,
		Origin:     origin,
		NewBalance: change.NewBalance,
		OldBalance: change.OldBalance,
		Timestamp:  tsMillis,
	}
}

// Change returns the transition carried by the message.
func (m ReplicationMessage) Change() BalanceChange {
	return BalanceChange{NewBalance: m.NewBalance, OldBalance: m.OldBalance}
}

// Encode marshals the message to its wire form.
func (m ReplicationMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// wireMessage uses pointers so missing fields can be told apart from zeros.
type wireMessage struct {
	Type       MessageType `json:"type"`
	Origin     string      `json:"origin"`
	NewBalance *int64      `json:"newBalance"`
	OldBalance *int64      `json:"oldBalance"`
	Timestamp  int64       `json:"timestamp"`
}

// DecodeMessage parses and validates an inbound frame.
// Frames with an unknown type return ErrUnknownMessageType and should be ignored.
func DecodeMessage(data []byte) (ReplicationMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return ReplicationMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch w.Type {
	case TypeBalanceUpdated:
	case "":
		return ReplicationMessage{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	default:
		return ReplicationMessage{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, w.Type)
	}

	if w.NewBalance == nil {
		return ReplicationMessage{}, fmt.Errorf("%w: missing newBalance", ErrInvalidMessage)
	}
	if *w.NewBalance < 0 {
		return ReplicationMessage{}, fmt.Errorf("%w: negative newBalance %d", ErrInvalidMessage, *w.NewBalance)
	}

	msg := ReplicationMessage{
		Type:       w.Type,
		Origin:     w.Origin,
		NewBalance: *w.NewBalance,
		Timestamp:  w.Timestamp,
	}
	if w.OldBalance != nil {
		msg.OldBalance = *w.OldBalance
	}
	return msg, nil
}
