// Package model defines data structure.
package model

// ChatPreview is the dashboard summary record for one chat. Field names
// mirror the server payload; timestamps ride as RFC 3339 strings because
// the backend nulls them for chats with no messages yet.
type ChatPreview struct {
	ChatID          string            `json:"chat_id"`
	ChatName        string            `json:"chat_name"`
	LastMessage     string            `json:"last_message"`
	LastMessageTime string            `json:"last_message_time"`
	Participants    []string          `json:"participants"`
	TimeCreated     string            `json:"time_created"`
	UnreadBy        []string          `json:"unread_messages_by"`
	Permissions     map[string]string `json:"participant_permissions"`
}

// HasParticipant reports whether username is on the chat's participant list.
func (p ChatPreview) HasParticipant(username string) bool {
	for _, u := range p.Participants {
		if u == username {
			return true
		}
	}
	return false
}
