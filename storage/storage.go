package storage

import "time"

// GenerationMemoryEntry is the last successful image generation of an identity
type GenerationMemoryEntry struct {
	PromptInfo string
	Seed       int64
	ImageData  string
	UpdatedAt  time.Time
}

// SeedMemory keeps at most one GenerationMemoryEntry per identity key
type SeedMemory interface {
	Get(key string) (GenerationMemoryEntry, bool)
	// Set overwrites the entry of key and stamps UpdatedAt
	Set(key string, entry GenerationMemoryEntry)
	Clear() int
	// ClearStale removes entries not updated within maxAge
	ClearStale(maxAge time.Duration) int
	Len() int
}

// ImageCache maps an exact prompt string to a base64 image
type ImageCache interface {
	Get(prompt string) (string, bool)
	Set(prompt, image string)
	Clear() int
	Stats() CacheStats
}

type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

type Message struct {
	IsUser    bool      `bson:"is_user"`
	Text      string    `bson:"text"`
	Tokens    int       `bson:"tokens"`
	Timestamp time.Time `bson:"timestamp"`
}

type DialogContext struct {
	ChatId    int64     `bson:"chat_id"`
	Topic     string    `bson:"topic"`
	Messages  []Message `bson:"messages"`
	Tokens    int       `bson:"tokens"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ContextStorage keeps Telegram dialogs so that every turn can be sent with its history
type ContextStorage interface {
	GetDialog(chatId int64) (*DialogContext, error)
	AppendMessage(chatId int64, message Message) error
	SetTopic(chatId int64, topic string) error
	ClearDialog(chatId int64) error
	Close() error
}
