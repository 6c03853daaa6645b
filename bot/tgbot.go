package bot

import (
	"Muse/core"
	"Muse/holder"
	"Muse/lib/sl"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const helpText = "You can use the following commands:\n" +
	"/help - show this help\n" +
	"/topic - set a subject of conversation\n" +
	"/clear - clear bot memory to begin new topic\n" +
	"Ask me to draw, show or create something and I'll send a picture."

const apologyText = "I apologize, but I encountered an unexpected error."

// telegram rejects longer photo captions
const maxCaptionLen = 1024

// Sender is the part of the Telegram API the bot talks to
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TgBot struct {
	api         *tgbotapi.BotAPI
	sender      Sender
	chat        core.ChatService
	dialogs     *holder.ContextManager
	persona     string
	botUsername string
	log         *slog.Logger
	wg          sync.WaitGroup
}

func NewTgBot(conf *core.Config, chat core.ChatService, dialogs *holder.ContextManager, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.Telegram.ApiKey)
	if err != nil {
		return nil, fmt.Errorf("creating telegram api: %w", err)
	}
	tgBot := newTgBot(api, chat, dialogs, conf.Chat.Persona, conf.Telegram.Username, log)
	tgBot.api = api
	return tgBot, nil
}

func newTgBot(sender Sender, chat core.ChatService, dialogs *holder.ContextManager, persona, username string, log *slog.Logger) *TgBot {
	return &TgBot{
		sender:      sender,
		chat:        chat,
		dialogs:     dialogs,
		persona:     persona,
		botUsername: username,
		log:         log.With(sl.Module("telegram")),
	}
}

// Start blocks reading updates until Stop is called
func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("getting updates: %w", err)
	}

	for update := range updates {
		if update.Message == nil {
			continue
		}
		t.HandleMessage(update.Message)
	}
	return nil
}

func (t *TgBot) Stop() {
	if t.api != nil {
		t.api.StopReceivingUpdates()
	}
	t.wg.Wait()
}

// HandleMessage answers commands inline and chat messages in the background
func (t *TgBot) HandleMessage(incoming *tgbotapi.Message) {
	chat := incoming.Chat
	if chat == nil {
		return
	}
	if !incoming.IsCommand() && !chat.IsPrivate() && !t.isMentioned(incoming.Text) && !t.isReplyToBot(incoming) {
		return
	}

	question := incoming.Text
	if incoming.IsCommand() {
		switch incoming.Command() {
		case "help", "start":
			t.plainResponse(chat.ID, helpText)
			return
		case "clear":
			t.dialogs.Clear(chat.ID)
			t.plainResponse(chat.ID, "Let's talk.")
			return
		case "topic":
			topic := strings.TrimSpace(incoming.CommandArguments())
			t.dialogs.SetTopic(chat.ID, topic)
			t.plainResponse(chat.ID, "Let's talk about "+topic+".")
			return
		case "ask":
			question = incoming.CommandArguments()
		}
	}
	if t.botUsername != "" {
		question = strings.ReplaceAll(question, "@"+t.botUsername, "")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return
	}

	user := ""
	if incoming.From != nil {
		user = incoming.From.UserName
	}
	t.log.With(
		slog.Int64("chat", chat.ID),
		slog.String("user", user),
		sl.Text("text", question),
	).Info("incoming message")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.SendResponse(chat.ID, question)
	}()
}

// SendResponse runs the turn through the chat service, keeping the typing
// indicator alive while waiting
func (t *TgBot) SendResponse(chatId int64, question string) {
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", rec)
			}
			t.log.With(slog.Int64("chat", chatId)).Error("handling message", sl.Err(err))
			t.plainResponse(chatId, apologyText)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go t.keepTyping(ctx, chatId)

	t.dialogs.AddUserMessage(chatId, question)
	conversation, topic := t.dialogs.Conversation(chatId)
	if len(conversation) == 0 {
		conversation = []core.ConversationTurn{{Role: core.RoleUser, Content: question}}
	}

	reply := t.chat.HandleTurn(ctx, IdentityKey(chatId), conversation, t.composePersona(topic))
	t.dialogs.AddAssistantMessage(chatId, reply.Text)
	cancel()

	if reply.ImageBase64 == "" {
		t.plainResponse(chatId, reply.Text)
		return
	}

	caption := reply.Text
	if len([]rune(caption)) > maxCaptionLen {
		caption = ""
	}
	if err := t.photoResponse(chatId, reply.ImageBase64, caption); err != nil {
		t.log.With(slog.Int64("chat", chatId)).Error("sending photo", sl.Err(err))
		caption = ""
	}
	if caption == "" {
		t.plainResponse(chatId, reply.Text)
	}
}

// IdentityKey scopes seed memory to one Telegram chat
func IdentityKey(chatId int64) string {
	return fmt.Sprintf("tg:%d", chatId)
}

func (t *TgBot) composePersona(topic string) string {
	if topic == "" {
		return t.persona
	}
	return t.persona + "\nSubject of the conversation: " + topic
}

func (t *TgBot) keepTyping(ctx context.Context, chatId int64) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	t.sendChatAction(chatId, tgbotapi.ChatTyping)
	for {
		select {
		case <-ticker.C:
			t.sendChatAction(chatId, tgbotapi.ChatTyping)
		case <-ctx.Done():
			return
		}
	}
}

func (t *TgBot) sendChatAction(chatId int64, action string) {
	if _, err := t.sender.Send(tgbotapi.NewChatAction(chatId, action)); err != nil {
		t.log.Warn("sending chat action", sl.Err(err))
	}
}

func (t *TgBot) photoResponse(chatId int64, imageBase64, caption string) error {
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}
	photo := tgbotapi.NewPhotoUpload(chatId, tgbotapi.FileBytes{Name: "image.png", Bytes: data})
	photo.Caption = caption
	if _, err = t.sender.Send(photo); err != nil {
		return err
	}
	return nil
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	msg := tgbotapi.NewMessage(chatId, text)
	if _, err := t.sender.Send(msg); err != nil {
		t.log.Error("sending message", sl.Err(err))
	}
}

// detect if we are mentioned in the message
func (t *TgBot) isMentioned(text string) bool {
	if t.botUsername != "" {
		return strings.Contains(text, "@"+t.botUsername)
	}
	return false
}

// detect if message is a reply to a message from the bot
func (t *TgBot) isReplyToBot(message *tgbotapi.Message) bool {
	if message.ReplyToMessage != nil && message.ReplyToMessage.From != nil {
		return message.ReplyToMessage.From.UserName == t.botUsername
	}
	return false
}
