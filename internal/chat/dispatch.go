package chat

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"strings"

	"github.com/mkrier/chatsync/internal/wire"
)

// handleFrame is the read pump's callback: decode one inbound frame and
// apply it. Frames arrive strictly in connection order. Nothing in here is
// fatal; a bad frame is dropped and processing continues, and an event for
// state we don't have is a silent no-op. The worst outcome is a stale view,
// recoverable by a fresh pull fetch.
func (s *Session) handleFrame(ctx context.Context, p []byte) {
	ev, err := wire.Decode(p)
	if err != nil {
		// Unknown tags are expected from newer servers; everything else
		// means a malformed frame.
		if !errors.Is(err, wire.ErrUnknownOperation) {
			log.Printf("dropping inbound frame: %v", err)
		}
		return
	}

	switch e := ev.(type) {
	case wire.EnterChat:
		s.handleEnterChat(ctx, e)
	case wire.MessageEvent:
		s.handleMessage(e)
	case wire.ChatCreated:
		s.handleChatCreated(e)
	case wire.ReadReceipt:
		s.handleReadReceipt(e)
	case wire.ChatUpdated:
		s.handleChatUpdated(e)
	case wire.LeaveChat:
		s.handleLeaveChat(e)
	case wire.UserRenamed:
		s.handleUserRenamed(e)
	}
}

// handleEnterChat reacts to a server-driven enter for a different chat
// than the one open here, e.g. another client of the same session moved.
// The forced exit must run before any further mutation of that frame.
func (s *Session) handleEnterChat(ctx context.Context, e wire.EnterChat) {
	s.mu.Lock()
	current := s.activeChatID
	s.mu.Unlock()

	if current == "" || current == e.ChatID {
		return
	}

	if err := s.ExitChat(ctx, current); err != nil {
		slog.WarnContext(ctx, "forced chat exit failed",
			"error", err,
			"chat_id", current)
	}
}

// handleMessage appends to the transcript only when the message belongs to
// the open chat; the preview updates either way. Duplicate delivery yields
// duplicate transcript entries, which the transport's delivery guarantees
// make acceptable.
func (s *Session) handleMessage(e wire.MessageEvent) {
	msg := e.Message
	msg.Body = s.sanitizer.Sanitize(msg.Body)

	// An empty body, including one sanitized down to nothing, carries no
	// content worth storing or stamping on the preview.
	if strings.TrimSpace(msg.Body) == "" {
		return
	}

	s.mu.Lock()
	changed := false
	if s.activeChatID != "" && s.activeChatID == msg.ChatID {
		s.messages = append(s.messages, msg)
		changed = true
	}
	if s.previews.applyNewMessage(msg, e.UnreadBy) {
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// handleChatCreated inserts the new preview at the front. Must stay
// idempotent under duplicate delivery: an id we already have is skipped.
func (s *Session) handleChatCreated(e wire.ChatCreated) {
	s.mu.Lock()
	if s.previews.indexOf(e.Preview.ChatID) != -1 {
		s.mu.Unlock()
		return
	}
	s.previews.insertFront(e.Preview)
	s.mu.Unlock()

	s.notify()
}

// handleReadReceipt replaces the unread set in place, no reorder.
func (s *Session) handleReadReceipt(e wire.ReadReceipt) {
	s.mu.Lock()
	i := s.previews.indexOf(e.ChatID)
	if i == -1 {
		s.mu.Unlock()
		return
	}
	s.previews.chats[i].UnreadBy = e.UnreadBy
	s.mu.Unlock()

	s.notify()
}

// handleChatUpdated rewrites a chat's metadata, treating an unknown chat
// as a creation. When the update drops the current user from the
// participant list the chat leaves the dashboard too; that is a forced
// removal, and it clears the transcript iff the removed chat was open.
func (s *Session) handleChatUpdated(e wire.ChatUpdated) {
	s.mu.Lock()

	if s.previews.indexOf(e.Preview.ChatID) == -1 {
		s.previews.insertFront(e.Preview)
		s.mu.Unlock()
		s.notify()
		return
	}

	s.previews.upsert(e.Preview)

	if !e.Preview.HasParticipant(s.user) {
		s.previews.remove(e.Preview.ChatID)
		if s.activeChatID == e.Preview.ChatID {
			s.activeChatID = ""
			s.messages = nil
		}
	}
	s.mu.Unlock()

	s.notify()
}

// handleLeaveChat removes the preview and clears the transcript when the
// removed chat was the open one.
func (s *Session) handleLeaveChat(e wire.LeaveChat) {
	s.mu.Lock()
	if !s.previews.remove(e.ChatID) {
		s.mu.Unlock()
		return
	}
	if s.activeChatID == e.ChatID {
		s.activeChatID = ""
		s.messages = nil
	}
	s.mu.Unlock()

	s.notify()
}

// handleUserRenamed rewrites one username in the matching preview's
// participant and unread sets. The current user's own rename is handled on
// the command path, so it is skipped here.
func (s *Session) handleUserRenamed(e wire.UserRenamed) {
	s.mu.Lock()

	if e.NewUsername == s.user {
		s.mu.Unlock()
		return
	}

	i := s.previews.indexOf(e.ChatID)
	if i == -1 {
		s.mu.Unlock()
		return
	}

	changed := false
	for j, u := range s.previews.chats[i].Participants {
		if u == e.OldUsername {
			s.previews.chats[i].Participants[j] = e.NewUsername
			changed = true
		}
	}
	for j, u := range s.previews.chats[i].UnreadBy {
		if u == e.OldUsername {
			s.previews.chats[i].UnreadBy[j] = e.NewUsername
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}
