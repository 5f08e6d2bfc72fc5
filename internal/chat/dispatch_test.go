package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrier/chatsync/internal/model"
)

func TestMessageEventUpdatesPreviewAndOrder(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s,
		model.ChatPreview{ChatID: "2", ChatName: "second"},
		model.ChatPreview{ChatID: "1", ChatName: "first"},
	)

	s.handleFrame(context.Background(), []byte(`{
		"operation": "message",
		"chat_id": "1",
		"message": "hi",
		"time_sent": "2026-01-02T15:04:05Z",
		"unread_messages_by": ["bob"]
	}`))

	previews := s.Previews()
	require.Len(t, previews, 2)
	assert.Equal(t, "1", previews[0].ChatID)
	assert.Equal(t, "hi", previews[0].LastMessage)
	assert.Equal(t, []string{"bob"}, previews[0].UnreadBy)
	assert.Equal(t, "2", previews[1].ChatID)
}

func TestMessageEventAppendsToTranscriptOnlyWhenActive(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "1"}, model.ChatPreview{ChatID: "2"})
	s.mu.Lock()
	s.activeChatID = "1"
	s.mu.Unlock()

	s.handleFrame(context.Background(), []byte(`{"operation":"message","chat_id":"1","message":"for active"}`))
	s.handleFrame(context.Background(), []byte(`{"operation":"message","chat_id":"2","message":"for other"}`))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "for active", msgs[0].Body)
}

func TestMessageEventSanitizesBody(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "1"})
	s.mu.Lock()
	s.activeChatID = "1"
	s.mu.Unlock()

	s.handleFrame(context.Background(), []byte(`{"operation":"message","chat_id":"1","message":"<script>x()</script>hey"}`))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hey", msgs[0].Body)
}

func TestChatCreatedIsIdempotent(t *testing.T) {
	s, _, _ := newTestSession("carol")

	frame := []byte(`{"operation":"chat_created","chat_id":"42","chat_name":"general"}`)
	s.handleFrame(context.Background(), frame)
	s.handleFrame(context.Background(), frame)

	assert.Len(t, s.Previews(), 1)
}

func TestChatCreatedSequenceKeepsNewestFirstNoDuplicates(t *testing.T) {
	s, _, _ := newTestSession("carol")

	for _, id := range []string{"1", "2", "3"} {
		s.handleFrame(context.Background(), []byte(`{"operation":"chat_created","chat_id":"`+id+`"}`))
	}

	previews := s.Previews()
	require.Len(t, previews, 3)
	assert.Equal(t, "3", previews[0].ChatID)
	assert.Equal(t, "1", previews[2].ChatID)
}

func TestReadReceiptUpdatesInPlaceWithoutReorder(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "2"}, model.ChatPreview{ChatID: "1"})

	s.handleFrame(context.Background(), []byte(`{"operation":"read_receipt","chat_id":"1","unread_messages_by":[]}`))

	previews := s.Previews()
	assert.Equal(t, "2", previews[0].ChatID)
	assert.Empty(t, previews[1].UnreadBy)
	assert.NotNil(t, previews[1].UnreadBy)
}

func TestUpdateChatRewritesMetadata(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "other"}, model.ChatPreview{ChatID: "42", ChatName: "old"})

	s.handleFrame(context.Background(), []byte(`{
		"operation": "update_chat",
		"chat_id": "42",
		"chat_name": "new name",
		"participants": ["carol", "dave"],
		"participant_permissions": {"dave": "member"}
	}`))

	previews := s.Previews()
	require.Len(t, previews, 2)
	// Updates do not reorder.
	assert.Equal(t, "other", previews[0].ChatID)
	assert.Equal(t, "new name", previews[1].ChatName)
	assert.Equal(t, []string{"carol", "dave"}, previews[1].Participants)
}

func TestUpdateChatForUnknownChatCreatesPreview(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "1"})

	s.handleFrame(context.Background(), []byte(`{
		"operation": "update_chat",
		"chat_id": "9",
		"chat_name": "brand new",
		"participants": ["carol"]
	}`))

	previews := s.Previews()
	require.Len(t, previews, 2)
	assert.Equal(t, "9", previews[0].ChatID)
}

func TestUpdateChatForcedRemovalClearsTranscriptIffActive(t *testing.T) {
	removal := []byte(`{
		"operation": "update_chat",
		"chat_id": "42",
		"chat_name": "general",
		"participants": ["dave"]
	}`)

	t.Run("active chat", func(t *testing.T) {
		s, _, _ := newTestSession("carol")
		seedPreviews(s, model.ChatPreview{ChatID: "42", Participants: []string{"carol", "dave"}})
		s.mu.Lock()
		s.activeChatID = "42"
		s.messages = []model.Message{{ChatID: "42", Body: "hi"}}
		s.mu.Unlock()

		s.handleFrame(context.Background(), removal)

		assert.Empty(t, s.Previews())
		assert.Empty(t, s.ActiveChatID())
		assert.Empty(t, s.Messages())
	})

	t.Run("inactive chat", func(t *testing.T) {
		s, _, _ := newTestSession("carol")
		seedPreviews(s,
			model.ChatPreview{ChatID: "42", Participants: []string{"carol", "dave"}},
			model.ChatPreview{ChatID: "7", Participants: []string{"carol"}},
		)
		s.mu.Lock()
		s.activeChatID = "7"
		s.messages = []model.Message{{ChatID: "7", Body: "keep me"}}
		s.mu.Unlock()

		s.handleFrame(context.Background(), removal)

		require.Len(t, s.Previews(), 1)
		assert.Equal(t, "7", s.ActiveChatID())
		assert.Len(t, s.Messages(), 1)
	})
}

func TestUpdateChatWithoutParticipantsLeavesStateUntouched(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{
		ChatID:       "42",
		ChatName:     "general",
		Participants: []string{"carol", "dave"},
	})
	s.mu.Lock()
	s.activeChatID = "42"
	s.messages = []model.Message{{ChatID: "42", Body: "hi"}}
	s.mu.Unlock()

	// A partial frame must not read as "carol was removed".
	s.handleFrame(context.Background(), []byte(`{"operation":"update_chat","chat_id":"42","chat_name":"renamed"}`))

	previews := s.Previews()
	require.Len(t, previews, 1)
	assert.Equal(t, "general", previews[0].ChatName)
	assert.Equal(t, []string{"carol", "dave"}, previews[0].Participants)
	assert.Equal(t, "42", s.ActiveChatID())
	assert.Len(t, s.Messages(), 1)
}

func TestMessageEventEmptyBodyIsNoop(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s,
		model.ChatPreview{ChatID: "2"},
		model.ChatPreview{ChatID: "1", LastMessage: "old"},
	)
	s.mu.Lock()
	s.activeChatID = "1"
	s.mu.Unlock()

	for _, frame := range []string{
		`{"operation":"message","chat_id":"1","message":""}`,
		`{"operation":"message","chat_id":"1","message":"   "}`,
		`{"operation":"message","chat_id":"1","message":"<script>x()</script>"}`,
	} {
		s.handleFrame(context.Background(), []byte(frame))
	}

	assert.Empty(t, s.Messages())
	previews := s.Previews()
	assert.Equal(t, "2", previews[0].ChatID)
	assert.Equal(t, "old", previews[1].LastMessage)
	assert.Empty(t, previews[1].UnreadBy)
}

func TestLeaveChatRemovesAndClearsWhenActive(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "42"})
	s.mu.Lock()
	s.activeChatID = "42"
	s.messages = []model.Message{{ChatID: "42"}}
	s.mu.Unlock()

	s.handleFrame(context.Background(), []byte(`{"operation":"leave_chat","data":{"chat_id":"42"}}`))

	assert.Empty(t, s.Previews())
	assert.Empty(t, s.ActiveChatID())
	assert.Empty(t, s.Messages())
}

func TestUserRenamedRewritesParticipantsAndUnread(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{
		ChatID:       "5",
		Participants: []string{"alice", "carol"},
		UnreadBy:     []string{"alice"},
	})

	s.handleFrame(context.Background(), []byte(`{
		"operation": "update_user",
		"data": {"chat_id": "5"},
		"old_username": "alice",
		"username": "alicia"
	}`))

	previews := s.Previews()
	assert.Equal(t, []string{"alicia", "carol"}, previews[0].Participants)
	assert.Equal(t, []string{"alicia"}, previews[0].UnreadBy)
}

func TestUserRenamedSkipsOwnRename(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "5", Participants: []string{"carl", "dave"}})

	s.handleFrame(context.Background(), []byte(`{
		"operation": "update_user",
		"data": {"chat_id": "5"},
		"old_username": "carl",
		"username": "carol"
	}`))

	assert.Equal(t, []string{"carl", "dave"}, s.Previews()[0].Participants)
}

func TestInboundEnterChatForcesExitOfCurrentChat(t *testing.T) {
	s, conn, _ := newTestSession("carol")
	s.mu.Lock()
	s.activeChatID = "42"
	s.messages = []model.Message{{ChatID: "42"}}
	s.mu.Unlock()

	s.handleFrame(context.Background(), []byte(`{"operation":"enter_chat","data":{"chat_id":"7"}}`))

	assert.Equal(t, []string{"exit_chat"}, conn.ops())
	assert.Empty(t, s.ActiveChatID())
	assert.Empty(t, s.Messages())
}

func TestInboundEnterChatForSameChatIsNoop(t *testing.T) {
	s, conn, _ := newTestSession("carol")
	s.mu.Lock()
	s.activeChatID = "42"
	s.mu.Unlock()

	s.handleFrame(context.Background(), []byte(`{"operation":"enter_chat","data":{"chat_id":"42"}}`))

	assert.Empty(t, conn.ops())
	assert.Equal(t, "42", s.ActiveChatID())
}

func TestUnknownOperationIsIgnored(t *testing.T) {
	s, conn, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "1"})

	s.handleFrame(context.Background(), []byte(`{"operation":"presence_ping","chat_id":"1"}`))
	s.handleFrame(context.Background(), []byte(`not even json`))

	assert.Len(t, s.Previews(), 1)
	assert.Empty(t, conn.ops())
}

func TestEventForUnknownChatIsSilentNoop(t *testing.T) {
	s, _, _ := newTestSession("carol")
	seedPreviews(s, model.ChatPreview{ChatID: "1"})

	for _, frame := range []string{
		`{"operation":"read_receipt","chat_id":"404","unread_messages_by":["x"]}`,
		`{"operation":"leave_chat","data":{"chat_id":"404"}}`,
		`{"operation":"update_user","data":{"chat_id":"404"},"old_username":"a","username":"b"}`,
		`{"operation":"message","chat_id":"404","message":"hi"}`,
	} {
		s.handleFrame(context.Background(), []byte(frame))
	}

	previews := s.Previews()
	require.Len(t, previews, 1)
	assert.Equal(t, "1", previews[0].ChatID)
	assert.Empty(t, previews[0].LastMessage)
}
