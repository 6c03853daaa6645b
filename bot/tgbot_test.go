package bot

import (
	"Muse/core"
	"Muse/holder"
	"Muse/storage"
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) photos() []tgbotapi.PhotoConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.PhotoConfig
	for _, c := range f.sent {
		if p, ok := c.(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

type fakeChat struct {
	mu           sync.Mutex
	reply        core.ChatReply
	panicMsg     string
	identity     string
	persona      string
	conversation []core.ConversationTurn
}

func (f *fakeChat) HandleTurn(_ context.Context, identity string, conversation []core.ConversationTurn, persona string) core.ChatReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.identity = identity
	f.persona = persona
	f.conversation = conversation
	return f.reply
}

func (f *fakeChat) ClearMemory() (int, int) { return 0, 0 }

func newTestBot(reply core.ChatReply) (*TgBot, *fakeSender, *fakeChat, *holder.ContextManager) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &fakeSender{}
	chat := &fakeChat{reply: reply}
	dialogs := holder.NewContextManager(storage.NewMemoryStorage(), log)
	return newTgBot(sender, chat, dialogs, "You are Rancho.", "muse_bot", log), sender, chat, dialogs
}

func command(chatId int64, text string, length int) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatId, Type: "private"},
		Text:     text,
		Entities: &[]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}
}

func TestSendResponse_TextOnly(t *testing.T) {
	b, sender, chat, dialogs := newTestBot(core.ChatReply{Text: "Hello!"})

	b.SendResponse(42, "hello")

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello!", msgs[0].Text)
	assert.Equal(t, "tg:42", chat.identity)
	assert.Equal(t, "You are Rancho.", chat.persona)
	require.Len(t, chat.conversation, 1)
	assert.Equal(t, core.RoleUser, chat.conversation[0].Role)

	turns, _ := dialogs.Conversation(42)
	require.Len(t, turns, 2)
	assert.Equal(t, "Hello!", turns[1].Content)
}

func TestSendResponse_Photo(t *testing.T) {
	image := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	b, sender, _, _ := newTestBot(core.ChatReply{Text: "Sunset.\nHere's the image you requested!", ImageBase64: image})

	b.SendResponse(7, "draw me a sunset")

	photos := sender.photos()
	require.Len(t, photos, 1)
	assert.Equal(t, "Sunset.\nHere's the image you requested!", photos[0].Caption)
	file, ok := photos[0].File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, []byte("png-bytes"), file.Bytes)
	assert.Empty(t, sender.messages())
}

func TestSendResponse_BadImageFallsBackToText(t *testing.T) {
	b, sender, _, _ := newTestBot(core.ChatReply{Text: "Here you go", ImageBase64: "%%%not-base64"})

	b.SendResponse(7, "draw me a sunset")

	assert.Empty(t, sender.photos())
	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Here you go", msgs[0].Text)
}

func TestSendResponse_PanicSendsApology(t *testing.T) {
	b, sender, chat, _ := newTestBot(core.ChatReply{Text: "unused"})
	chat.panicMsg = "llm exploded"

	assert.NotPanics(t, func() { b.SendResponse(9, "hello") })

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, apologyText, msgs[0].Text)
	assert.Empty(t, sender.photos())
}

func TestHandleMessage_PanicDoesNotEscapeGoroutine(t *testing.T) {
	b, sender, chat, _ := newTestBot(core.ChatReply{Text: "unused"})
	chat.panicMsg = "storage exploded"

	b.HandleMessage(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 9, Type: "private"}, Text: "hello"})
	b.Stop()

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, apologyText, msgs[0].Text)
}

func TestHandleMessage_Commands(t *testing.T) {
	b, sender, chat, dialogs := newTestBot(core.ChatReply{Text: "ok"})

	b.HandleMessage(command(1, "/help", 5))
	b.HandleMessage(command(1, "/topic dragons", 6))

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, helpText, msgs[0].Text)
	assert.Equal(t, "Let's talk about dragons.", msgs[1].Text)
	_, topic := dialogs.Conversation(1)
	assert.Equal(t, "dragons", topic)

	b.SendResponse(1, "draw one")
	assert.Equal(t, "You are Rancho.\nSubject of the conversation: dragons", chat.persona)

	b.HandleMessage(command(1, "/clear", 6))
	turns, topic := dialogs.Conversation(1)
	assert.Empty(t, turns)
	assert.Empty(t, topic)
}

func TestHandleMessage_GroupFiltering(t *testing.T) {
	b, sender, chat, _ := newTestBot(core.ChatReply{Text: "hi"})
	group := &tgbotapi.Chat{ID: -100, Type: "group"}

	b.HandleMessage(&tgbotapi.Message{Chat: group, Text: "just chatting"})
	b.Stop()
	assert.Empty(t, sender.messages())

	b.HandleMessage(&tgbotapi.Message{Chat: group, Text: "@muse_bot show me a cat"})
	b.Stop()
	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tg:-100", chat.identity)
	assert.Equal(t, "show me a cat", chat.conversation[len(chat.conversation)-1].Content)
}
