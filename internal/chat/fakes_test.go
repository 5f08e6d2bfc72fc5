package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/mkrier/chatsync/internal/model"
)

var errFakeNotLive = errors.New("fake conn: not live")

type sentFrame struct {
	op   string
	data any
}

// fakeConn records every frame the session tries to send.
type fakeConn struct {
	mu   sync.Mutex
	live bool
	sent []sentFrame
}

func (f *fakeConn) Connect(ctx context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = true
	return nil
}

func (f *fakeConn) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = false
}

func (f *fakeConn) IsLive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *fakeConn) Send(ctx context.Context, operation string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live {
		return errFakeNotLive
	}
	f.sent = append(f.sent, sentFrame{op: operation, data: data})
	return nil
}

func (f *fakeConn) Listen(ctx context.Context, handle func(context.Context, []byte)) {}

func (f *fakeConn) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.op
	}
	return out
}

// fakeFetcher serves canned snapshots. A non-nil gate makes ChatMessages
// block until the gate closes, which lets tests order a fetch against
// other mutations deterministically.
type fakeFetcher struct {
	mu      sync.Mutex
	chats   []model.ChatPreview
	msgs    map[string][]model.Message
	err     error
	gate    chan struct{}
	started chan string
}

func (f *fakeFetcher) DashboardChats(ctx context.Context, username string) ([]model.ChatPreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats, f.err
}

func (f *fakeFetcher) ChatMessages(ctx context.Context, username, chatID string) ([]model.Message, error) {
	f.mu.Lock()
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- chatID
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[chatID], f.err
}

func newTestSession(user string) (*Session, *fakeConn, *fakeFetcher) {
	conn := &fakeConn{live: true}
	fetch := &fakeFetcher{msgs: make(map[string][]model.Message)}
	s := NewSession(conn, fetch)
	s.user = user
	return s, conn, fetch
}

func seedPreviews(s *Session, previews ...model.ChatPreview) {
	s.mu.Lock()
	s.previews.chats = previews
	s.mu.Unlock()
}
