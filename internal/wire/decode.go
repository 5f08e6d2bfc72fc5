package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mkrier/chatsync/internal/model"
)

var (
	// ErrUnknownOperation marks a frame whose tag we don't handle.
	// Callers skip these for forward compatibility.
	ErrUnknownOperation = errors.New("internal/wire: unknown operation")

	// ErrInvalidFrame marks a frame that decoded but is missing a
	// required field for its operation.
	ErrInvalidFrame = errors.New("internal/wire: invalid frame")
)

// Event is one decoded inbound frame. The concrete type is determined by
// the operation tag.
type Event interface {
	Operation() string
}

// EnterChat tells us some client of this session entered a chat. The
// server nests the id under data for this operation.
type EnterChat struct {
	ChatID string
}

func (EnterChat) Operation() string { return OpEnterChat }

// MessageEvent carries a new chat message plus the receipt state the
// server computed for it.
type MessageEvent struct {
	Message  model.Message
	UnreadBy []string
}

func (MessageEvent) Operation() string { return OpMessage }

// ChatCreated announces a chat this user was just added to.
type ChatCreated struct {
	Preview model.ChatPreview
}

func (ChatCreated) Operation() string { return OpChatCreated }

// ReadReceipt replaces the unread set of one chat.
type ReadReceipt struct {
	ChatID   string
	UnreadBy []string
}

func (ReadReceipt) Operation() string { return OpReadReceipt }

// ChatUpdated carries the new metadata of an edited chat. The server sends
// the full preview shape so an unknown chat can be created from it.
type ChatUpdated struct {
	Preview model.ChatPreview
}

func (ChatUpdated) Operation() string { return OpUpdateChat }

// LeaveChat removes a chat from this user's view. Nested data.chat_id.
type LeaveChat struct {
	ChatID string
}

func (LeaveChat) Operation() string { return OpLeaveChat }

// UserRenamed rewrites one username across a chat's participant and
// unread sets. chat_id is nested under data; the usernames are top-level.
type UserRenamed struct {
	ChatID      string
	OldUsername string
	NewUsername string
}

func (UserRenamed) Operation() string { return OpUpdateUser }

// nestedRef matches the operations that bury chat_id one level down.
type nestedRef struct {
	Data struct {
		ChatID string `json:"chat_id"`
	} `json:"data"`
}

// Decode parses one inbound frame into its typed event. Field shapes vary
// per operation and are preserved exactly as the server sends them, not
// normalized. A nil error means the event is safe to dispatch.
func Decode(p []byte) (Event, error) {
	var head struct {
		Operation string `json:"operation"`
	}
	if err := json.Unmarshal(p, &head); err != nil {
		return nil, fmt.Errorf("internal/wire: could not decode frame: %w", err)
	}

	switch head.Operation {
	case OpEnterChat:
		var f nestedRef
		if err := json.Unmarshal(p, &f); err != nil {
			return nil, fmt.Errorf("internal/wire: bad %s frame: %w", head.Operation, err)
		}
		if f.Data.ChatID == "" {
			return nil, fmt.Errorf("%w: %s missing data.chat_id", ErrInvalidFrame, head.Operation)
		}
		return EnterChat{ChatID: f.Data.ChatID}, nil

	case OpLeaveChat:
		var f nestedRef
		if err := json.Unmarshal(p, &f); err != nil {
			return nil, fmt.Errorf("internal/wire: bad %s frame: %w", head.Operation, err)
		}
		if f.Data.ChatID == "" {
			return nil, fmt.Errorf("%w: %s missing data.chat_id", ErrInvalidFrame, head.Operation)
		}
		return LeaveChat{ChatID: f.Data.ChatID}, nil

	case OpMessage:
		var f struct {
			model.Message
			UnreadBy []string `json:"unread_messages_by"`
		}
		if err := json.Unmarshal(p, &f); err != nil {
			return nil, fmt.Errorf("internal/wire: bad %s frame: %w", head.Operation, err)
		}
		if f.ChatID == "" {
			return nil, fmt.Errorf("%w: %s missing chat_id", ErrInvalidFrame, head.Operation)
		}
		return MessageEvent{Message: f.Message, UnreadBy: f.UnreadBy}, nil

	case OpChatCreated:
		var f model.ChatPreview
		if err := json.Unmarshal(p, &f); err != nil {
			return nil, fmt.Errorf("internal/wire: bad %s frame: %w", head.Operation, err)
		}
		if f.ChatID == "" {
			return nil, fmt.Errorf("%w: %s missing chat_id", ErrInvalidFrame, head.Operation)
		}
		return ChatCreated{Preview: f}, nil

	case OpReadReceipt:
		var f struct {
			ChatID   string   `json:"chat_id"`
			UnreadBy []string `json:"unread_messages_by"`
		}
		if err := json.Unmarshal(p, &f); err != nil {
			return nil, fmt.Errorf("internal/wire: bad %s frame: %w", head.Operation, err)
		}
		if f.ChatID == "" {
			return nil, fmt.Errorf("%w: %s missing chat_id", ErrInvalidFrame, head.Operation)
		}
		return ReadReceipt{ChatID: f.ChatID, UnreadBy: f.UnreadBy}, nil

	case OpUpdateChat:
		var f model.ChatPreview
		if err := json.Unmarshal(p, &f); err != nil {
			return nil, fmt.Errorf("internal/wire: bad %s frame: %w", head.Operation, err)
		}
		if f.ChatID == "" {
			return nil, fmt.Errorf("%w: %s missing chat_id", ErrInvalidFrame, head.Operation)
		}
		// A frame without a participant list would read as "the current
		// user was removed" downstream; membership decisions need the
		// real list.
		if f.Participants == nil {
			return nil, fmt.Errorf("%w: %s missing participants", ErrInvalidFrame, head.Operation)
		}
		return ChatUpdated{Preview: f}, nil

	case OpUpdateUser:
		var f struct {
			nestedRef
			OldUsername string `json:"old_username"`
			NewUsername string `json:"username"`
		}
		if err := json.Unmarshal(p, &f); err != nil {
			return nil, fmt.Errorf("internal/wire: bad %s frame: %w", head.Operation, err)
		}
		if f.Data.ChatID == "" || f.OldUsername == "" || f.NewUsername == "" {
			return nil, fmt.Errorf("%w: %s missing required field", ErrInvalidFrame, head.Operation)
		}
		return UserRenamed{ChatID: f.Data.ChatID, OldUsername: f.OldUsername, NewUsername: f.NewUsername}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, head.Operation)
}
