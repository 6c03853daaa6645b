package storage

import (
	"sync"
	"time"
)

const maxTokens = 20000

type MemoryStorage struct {
	dialogs map[int64]*DialogContext
	mutex   sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		dialogs: make(map[int64]*DialogContext),
	}
}

func (m *MemoryStorage) GetDialog(chatId int64) (*DialogContext, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	dialog, ok := m.dialogs[chatId]
	if !ok {
		return nil, nil
	}
	// copy so callers can not race with AppendMessage
	cc := *dialog
	cc.Messages = append([]Message(nil), dialog.Messages...)
	return &cc, nil
}

func (m *MemoryStorage) AppendMessage(chatId int64, message Message) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	message.Tokens = len([]rune(message.Text))
	message.Timestamp = time.Now()

	dialog, ok := m.dialogs[chatId]
	if !ok {
		m.dialogs[chatId] = &DialogContext{
			ChatId:    chatId,
			Messages:  []Message{message},
			Tokens:    message.Tokens,
			UpdatedAt: time.Now(),
		}
		return nil
	}

	dialog.Tokens += message.Tokens
	trimToBudget(dialog, maxTokens)
	dialog.Messages = append(dialog.Messages, message)
	dialog.UpdatedAt = time.Now()
	return nil
}

// trimToBudget drops the oldest messages until the dialog fits into budget tokens
func trimToBudget(dialog *DialogContext, budget int) {
	for dialog.Tokens > budget && len(dialog.Messages) > 0 {
		dialog.Tokens -= dialog.Messages[0].Tokens
		dialog.Messages = dialog.Messages[1:]
	}
}

func (m *MemoryStorage) SetTopic(chatId int64, topic string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if dialog, ok := m.dialogs[chatId]; ok {
		dialog.Topic = topic
		dialog.UpdatedAt = time.Now()
	} else {
		m.dialogs[chatId] = &DialogContext{
			ChatId:    chatId,
			Topic:     topic,
			Messages:  []Message{},
			UpdatedAt: time.Now(),
		}
	}
	return nil
}

func (m *MemoryStorage) ClearDialog(chatId int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.dialogs, chatId)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
