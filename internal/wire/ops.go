// Package wire implements the JSON frame contract of the push connection:
// outbound command envelopes and the inbound operation-tagged events.
package wire

// Operation tags. The same tag can appear on both directions with
// different field shapes; inbound shapes are defined in decode.go.
const (
	OpEnterChat      = "enter_chat"
	OpExitChat       = "exit_chat"
	OpSendMessage    = "send_message"
	OpMessage        = "message"
	OpChatCreated    = "chat_created"
	OpReadReceipt    = "read_receipt"
	OpCreateChat     = "create_chat"
	OpUpdateChat     = "update_chat"
	OpLeaveChat      = "leave_chat"
	OpUpdateUser     = "update_user"
	OpUpdateUsername = "update_username"
)

// ChatRef is the payload of enter_chat, exit_chat and leave_chat commands.
type ChatRef struct {
	ChatID string `json:"chat_id"`
}

// MessagePayload is the send_message command payload. The timeStamp key is
// spelled exactly as the server expects it.
type MessagePayload struct {
	ChatID    string `json:"chat_id"`
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	TimeStamp string `json:"timeStamp"`
}

// ReadReceiptPayload acknowledges the latest message of a chat.
type ReadReceiptPayload struct {
	ChatID   string `json:"chat_id"`
	Username string `json:"username"`
}

// RenamePayload is the update_username command payload.
type RenamePayload struct {
	NewUsername string `json:"new_username"`
	OldUsername string `json:"old_username"`
}

// CreateChatPayload is the create_chat command payload.
type CreateChatPayload struct {
	ChatName     string            `json:"chat_name"`
	Participants []string          `json:"participants"`
	Permissions  map[string]string `json:"permissions"`
}

// ChatUpdatePayload is the update_chat command payload.
type ChatUpdatePayload struct {
	ChatID              string            `json:"chat_id"`
	EditorUsername      string            `json:"editor_username"`
	ChatName            string            `json:"chat_name"`
	AddedParticipants   []string          `json:"added_participants"`
	RemovedParticipants []string          `json:"removed_participants"`
	UpdatedPermissions  map[string]string `json:"updated_permissions"`
}
