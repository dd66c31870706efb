package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known conversation roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single conversation turn. A conversation is a []Message in
// chronological order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastUserMessage returns the most recent user message, scanning from the end.
// The second result is false when the conversation has no user message, in
// which case an empty user message is returned.
func LastUserMessage(conversation []Message) (Message, bool) {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == RoleUser {
			return conversation[i], true
		}
	}
	return Message{Role: RoleUser}, false
}

type Channel string

const (
	ChannelMorning   Channel = "morning"
	ChannelAfternoon Channel = "afternoon"
	ChannelNight     Channel = "night"
	ChannelCustom    Channel = "custom"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case ChannelMorning, ChannelAfternoon, ChannelNight, ChannelCustom:
		return c, nil
	}
	return "", fmt.Errorf("unknown notification channel %q", s)
}

// Notification is one emitted broadcast or user-directed message.
// Recipient is empty for broadcasts.
type Notification struct {
	ID        string    `json:"id"`
	Channel   Channel   `json:"channel,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *Notification) IsDirect() bool {
	return n.Recipient != ""
}
