// Package chat keeps one user's view of their chats consistent: the
// dashboard preview list plus the transcript of the single open chat,
// reconciled against push events and pull snapshots.
package chat

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/mkrier/chatsync/internal/connection"
	"github.com/mkrier/chatsync/internal/model"
	"github.com/mkrier/chatsync/internal/wire"
)

// Conn is the push connection as the session sees it.
type Conn interface {
	Connect(ctx context.Context, username string) error
	Disconnect()
	IsLive() bool
	Send(ctx context.Context, operation string, data any) error
	Listen(ctx context.Context, handle func(context.Context, []byte))
}

// Fetcher is the pull side: one-shot snapshot fetches.
type Fetcher interface {
	DashboardChats(ctx context.Context, username string) ([]model.ChatPreview, error)
	ChatMessages(ctx context.Context, username, chatID string) ([]model.Message, error)
}

type sanitizer interface {
	Sanitize(s string) string
}

// Session is the reconciliation core for one logged-in user. All state
// mutation happens under one lock; the OnChange hook fires after each
// completed mutation so a rendering layer can subscribe without the core
// depending on it.
type Session struct {
	conn  Conn
	fetch Fetcher

	// We need to sanitize incoming message bodies to prevent XSS.
	sanitizer sanitizer

	mu           sync.Mutex
	user         string
	previews     previewList
	messages     []model.Message
	activeChatID string
	onChange     func()
}

// NewSession wires a session over the given push connection and pull
// client. Construct one per logical session; nothing here is global.
func NewSession(conn Conn, fetch Fetcher) *Session {
	return &Session{
		conn:      conn,
		fetch:     fetch,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// OnChange registers fn to run after every state mutation. Set it before
// Connect; the zero hook is fine for tests that inspect state directly.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Connect binds the session identity and opens the push connection. No-op
// when a connection is already live or username is empty. The read pump
// runs until Disconnect or the server closes the connection.
func (s *Session) Connect(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	if s.conn.IsLive() {
		return nil
	}

	s.mu.Lock()
	s.user = username
	s.mu.Unlock()

	if err := s.conn.Connect(ctx, username); err != nil {
		return err
	}

	// The pump outlives the connect call; Disconnect ends it by closing
	// the transport.
	go s.conn.Listen(context.Background(), s.handleFrame)

	s.notify()
	return nil
}

// Disconnect closes the push connection. Idempotent; session state stays
// for a later reconnect.
func (s *Session) Disconnect() {
	s.conn.Disconnect()
}

// IsLive reports whether the push connection is open right now.
func (s *Session) IsLive() bool {
	return s.conn.IsLive()
}

// User returns the session identity.
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// ActiveChatID returns the id of the open chat, or "" when none is open.
func (s *Session) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChatID
}

// Previews returns a copy of the dashboard list, most recently active
// first.
func (s *Session) Previews() []model.ChatPreview {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ChatPreview, len(s.previews.chats))
	copy(out, s.previews.chats)
	return out
}

// Messages returns a copy of the open chat's transcript.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ChatIndex returns the preview index of chatID, or -1 when absent.
func (s *Session) ChatIndex(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previews.indexOf(chatID)
}

// EnterChat opens a chat: sends enter_chat, marks it active and pulls its
// history. No-op when chatID is empty or already active; refused when the
// connection is not live.
func (s *Session) EnterChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return nil
	}

	s.mu.Lock()
	if chatID == s.activeChatID {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.conn.Send(ctx, wire.OpEnterChat, wire.ChatRef{ChatID: chatID}); err != nil {
		return err
	}

	s.mu.Lock()
	s.activeChatID = chatID
	s.mu.Unlock()
	s.notify()

	return s.RefreshTranscript(ctx)
}

// ExitChat sends exit_chat for chatID and clears the transcript. The
// notification is fire-and-forget: the given id is sent as-is, and local
// state clears whether or not it matched the active chat.
func (s *Session) ExitChat(ctx context.Context, chatID string) error {
	if err := s.conn.Send(ctx, wire.OpExitChat, wire.ChatRef{ChatID: chatID}); err != nil {
		return err
	}

	s.mu.Lock()
	s.activeChatID = ""
	s.messages = nil
	s.mu.Unlock()
	s.notify()

	return nil
}

// SwitchChat moves from one chat to another without fetching history;
// callers decide whether to refresh. Returns the preview index of the new
// chat for UI convenience, or -1. Equal ids are a complete no-op.
func (s *Session) SwitchChat(ctx context.Context, oldChatID, newChatID string) (int, error) {
	if oldChatID == newChatID {
		return -1, nil
	}

	// The whole switch is send-gated; without a live connection nothing
	// local moves either.
	if !s.conn.IsLive() {
		return -1, connection.ErrNotLive
	}

	if oldChatID != "" {
		if err := s.conn.Send(ctx, wire.OpExitChat, wire.ChatRef{ChatID: oldChatID}); err != nil {
			return -1, err
		}
	}

	s.mu.Lock()
	s.messages = nil
	s.activeChatID = newChatID
	s.mu.Unlock()
	s.notify()

	if newChatID == "" {
		return -1, nil
	}

	if err := s.conn.Send(ctx, wire.OpEnterChat, wire.ChatRef{ChatID: newChatID}); err != nil {
		return s.ChatIndex(newChatID), err
	}

	return s.ChatIndex(newChatID), nil
}

// RefreshTranscript pulls the message history of the active chat and
// replaces the transcript wholesale, or with nothing when the fetch fails.
// A result that lands after the user moved on is discarded: a stale fetch
// must not overwrite a newer transcript.
func (s *Session) RefreshTranscript(ctx context.Context) error {
	s.mu.Lock()
	user, chatID := s.user, s.activeChatID
	s.mu.Unlock()

	if chatID == "" {
		return nil
	}

	msgs, err := s.fetch.ChatMessages(ctx, user, chatID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch chat history",
			"error", err,
			"chat_id", chatID)
		msgs = nil
	}

	s.mu.Lock()
	if s.activeChatID != chatID {
		s.mu.Unlock()
		return err
	}
	s.messages = msgs
	s.mu.Unlock()
	s.notify()

	return err
}

// RefreshDashboard pulls all previews and replaces the dashboard with the
// sorted snapshot. On failure the dashboard goes empty; the caller may
// inspect the returned error but nothing is retried here.
func (s *Session) RefreshDashboard(ctx context.Context) error {
	user := s.User()
	if user == "" {
		return nil
	}

	chats, err := s.fetch.DashboardChats(ctx, user)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch dashboard chats",
			"error", err,
			"username", user)
		chats = nil
	}

	s.mu.Lock()
	s.previews.replaceAll(chats)
	s.mu.Unlock()
	s.notify()

	return err
}

// SendMessage sends a chat message. Bodies that trim to empty are dropped
// silently; the message id is generated here so the server never needs to
// echo an id back.
func (s *Session) SendMessage(ctx context.Context, chatID, sender, body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	return s.conn.Send(ctx, wire.OpSendMessage, wire.MessagePayload{
		ChatID:    chatID,
		Type:      "message",
		MessageID: uuid.NewString(),
		Sender:    sender,
		Message:   body,
		TimeStamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SendReadReceipt acknowledges the latest message of the active chat.
// No-op when no chat is open or no user is bound.
func (s *Session) SendReadReceipt(ctx context.Context) error {
	s.mu.Lock()
	user, chatID := s.user, s.activeChatID
	s.mu.Unlock()

	if chatID == "" || user == "" {
		return nil
	}

	return s.conn.Send(ctx, wire.OpReadReceipt, wire.ReadReceiptPayload{
		ChatID:   chatID,
		Username: user,
	})
}

// UpdateUsername renames the current user and rebinds the session identity
// once the command is accepted by the transport.
func (s *Session) UpdateUsername(ctx context.Context, newUsername string) error {
	old := s.User()

	err := s.conn.Send(ctx, wire.OpUpdateUsername, wire.RenamePayload{
		NewUsername: newUsername,
		OldUsername: old,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.user = newUsername
	s.mu.Unlock()
	s.notify()

	log.Printf("updated username to %s", newUsername)
	return nil
}

// CreateChat asks the server to create a chat. The preview shows up when
// the server echoes chat_created back on the push connection.
func (s *Session) CreateChat(ctx context.Context, chatName string, participants []string, permissions map[string]string) error {
	return s.conn.Send(ctx, wire.OpCreateChat, wire.CreateChatPayload{
		ChatName:     chatName,
		Participants: participants,
		Permissions:  permissions,
	})
}

// LeaveChat asks the server to drop the current user from a chat. Local
// removal happens when the leave_chat event comes back.
func (s *Session) LeaveChat(ctx context.Context, chatID string) error {
	return s.conn.Send(ctx, wire.OpLeaveChat, wire.ChatRef{ChatID: chatID})
}

// UpdateChat edits a chat's name, membership or permissions.
func (s *Session) UpdateChat(ctx context.Context, chatID, chatName string, added, removed []string, permissions map[string]string) error {
	return s.conn.Send(ctx, wire.OpUpdateChat, wire.ChatUpdatePayload{
		ChatID:              chatID,
		EditorUsername:      s.User(),
		ChatName:            chatName,
		AddedParticipants:   added,
		RemovedParticipants: removed,
		UpdatedPermissions:  permissions,
	})
}

// Reset tears the session down for logout: disconnects if live and clears
// identity, previews and transcript.
func (s *Session) Reset() {
	if s.conn.IsLive() {
		s.conn.Disconnect()
	}

	s.mu.Lock()
	s.user = ""
	s.activeChatID = ""
	s.previews.chats = nil
	s.messages = nil
	s.mu.Unlock()
	s.notify()
}
