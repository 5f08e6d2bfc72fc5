package model

// Message represents a single chat message, used for both websocket
// frames and the history endpoint.
type Message struct {
	ChatID    string `json:"chat_id"`
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Body      string `json:"message"`
	SentAt    string `json:"time_sent"`
}
