package chat

import (
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mkrier/chatsync/internal/model"
)

// previewList is the ordered dashboard collection. Chat ids are unique
// across the sequence and order is most-recently-active first after any
// mutation. Callers hold the session lock.
type previewList struct {
	chats []model.ChatPreview
}

func (l *previewList) indexOf(chatID string) int {
	for i, c := range l.chats {
		if c.ChatID == chatID {
			return i
		}
	}
	return -1
}

func (l *previewList) insertFront(p model.ChatPreview) {
	l.chats = append([]model.ChatPreview{p}, l.chats...)
}

// upsert replaces the mutable fields in place when the chat is known,
// without changing its position, and inserts at the front when it is not.
// Returns the chat's resulting index.
func (l *previewList) upsert(p model.ChatPreview) int {
	i := l.indexOf(p.ChatID)
	if i == -1 {
		l.insertFront(p)
		return 0
	}

	l.chats[i].ChatName = p.ChatName
	l.chats[i].Participants = p.Participants
	l.chats[i].Permissions = p.Permissions
	return i
}

// moveToFront is a remove-then-reinsert at index 0. Idempotent; no-op when
// the chat is absent or already at the front.
func (l *previewList) moveToFront(chatID string) {
	i := l.indexOf(chatID)
	if i <= 0 {
		return
	}

	p := l.chats[i]
	l.chats = append(l.chats[:i], l.chats[i+1:]...)
	l.insertFront(p)
}

func (l *previewList) remove(chatID string) bool {
	i := l.indexOf(chatID)
	if i == -1 {
		return false
	}

	l.chats = append(l.chats[:i], l.chats[i+1:]...)
	return true
}

// applyNewMessage promotes the chat to the front and stamps the preview
// with the message's body, time and receipt state. A message for a chat we
// don't know about is dropped; the server and our list are out of sync and
// a fresh snapshot will reconcile.
func (l *previewList) applyNewMessage(msg model.Message, unreadBy []string) bool {
	i := l.indexOf(msg.ChatID)
	if i == -1 {
		log.Printf("dropping preview update for unknown chat %s", msg.ChatID)
		return false
	}

	if i != 0 {
		l.moveToFront(msg.ChatID)
	}
	l.chats[0].LastMessage = msg.Body
	l.chats[0].LastMessageTime = msg.SentAt
	l.chats[0].UnreadBy = unreadBy
	return true
}

// replaceAll swaps in a full snapshot, ordered by last activity descending
// with ties broken by chat name ascending, case-insensitive. Used only on
// a full refresh from a pull fetch.
func (l *previewList) replaceAll(chats []model.ChatPreview) {
	sorted := make([]model.ChatPreview, len(chats))
	copy(sorted, chats)

	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := lastActivity(sorted[i]), lastActivity(sorted[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return strings.ToLower(sorted[i].ChatName) < strings.ToLower(sorted[j].ChatName)
	})

	l.chats = sorted
}

// lastActivity is the later of last message time and creation time.
// Unparseable or missing timestamps count as the zero time so such chats
// sink to the bottom instead of failing the refresh.
func lastActivity(p model.ChatPreview) time.Time {
	t := parseWhen(p.LastMessageTime)
	if created := parseWhen(p.TimeCreated); created.After(t) {
		t = created
	}
	return t
}

func parseWhen(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
