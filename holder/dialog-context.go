package holder

import (
	"Muse/core"
	"Muse/lib/sl"
	"Muse/storage"
	"log/slog"
)

type ContextManager struct {
	storage storage.ContextStorage
	log     *slog.Logger
}

func NewContextManager(store storage.ContextStorage, log *slog.Logger) *ContextManager {
	return &ContextManager{
		storage: store,
		log:     log.With(sl.Module("dialogs")),
	}
}

// Conversation returns the stored dialog of a chat as conversation turns
// together with its topic
func (cm *ContextManager) Conversation(chatId int64) ([]core.ConversationTurn, string) {
	dialog, err := cm.storage.GetDialog(chatId)
	if err != nil {
		cm.log.With(slog.Int64("chat", chatId)).Error("getting dialog", sl.Err(err))
		return nil, ""
	}
	if dialog == nil {
		return nil, ""
	}
	turns := make([]core.ConversationTurn, 0, len(dialog.Messages))
	for _, message := range dialog.Messages {
		role := core.RoleAssistant
		if message.IsUser {
			role = core.RoleUser
		}
		turns = append(turns, core.ConversationTurn{
			Role:      role,
			Content:   message.Text,
			Timestamp: message.Timestamp.UnixMilli(),
		})
	}
	return turns, dialog.Topic
}

func (cm *ContextManager) AddUserMessage(chatId int64, text string) {
	cm.append(chatId, storage.Message{IsUser: true, Text: text})
}

func (cm *ContextManager) AddAssistantMessage(chatId int64, text string) {
	cm.append(chatId, storage.Message{IsUser: false, Text: text})
}

func (cm *ContextManager) append(chatId int64, message storage.Message) {
	if err := cm.storage.AppendMessage(chatId, message); err != nil {
		cm.log.With(slog.Int64("chat", chatId)).Error("updating dialog", sl.Err(err))
	}
}

func (cm *ContextManager) SetTopic(chatId int64, topic string) {
	if err := cm.storage.SetTopic(chatId, topic); err != nil {
		cm.log.With(slog.Int64("chat", chatId)).Error("setting topic", sl.Err(err))
	}
}

func (cm *ContextManager) Clear(chatId int64) {
	if err := cm.storage.ClearDialog(chatId); err != nil {
		cm.log.With(slog.Int64("chat", chatId)).Error("clearing dialog", sl.Err(err))
	}
}

func (cm *ContextManager) Close() error {
	return cm.storage.Close()
}
