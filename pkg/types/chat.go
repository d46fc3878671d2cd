package types

import "time"

// Message is one entry of a conversation transcript. IsBot is false for
// messages typed by the visitor.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsBot     bool      `json:"isBot"`
	CreatedAt time.Time `json:"createdAt"`
}

func (m Message) Role() string {
	if m.IsBot {
		return "bot"
	}
	return "user"
}

// State is a point-in-time copy of a conversation.
type State struct {
	Messages   []Message `json:"messages"`
	Responding bool      `json:"responding"`
}
