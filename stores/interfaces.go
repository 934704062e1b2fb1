package stores

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Desarso/chatrelay/models"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("not found")

// previewLength caps the first-message preview kept on a conversation.
const previewLength = 100

// Message is one stored turn of a conversation.
type Message struct {
	ID             string      `gorm:"primaryKey;size:36"`
	ConversationID string      `gorm:"uniqueIndex:idx_message_conversation_sequence;size:36;not null"`
	Sequence       int         `gorm:"uniqueIndex:idx_message_conversation_sequence;not null"`
	Role           models.Role `gorm:"size:16;not null"` // "USER", "ASSISTANT"
	Content        string      `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

// BeforeCreate assigns a UUID when the caller did not pick one.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Conversation holds metadata for a chat conversation
type Conversation struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Title        *string `gorm:"type:text"`
	MessageCount int     `gorm:"default:0"`
	Preview      string  `gorm:"type:text"` // first message, truncated
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Messages     []Message `gorm:"foreignKey:ConversationID;references:ID"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ConversationInfo holds basic conversation metadata for listing
type ConversationInfo struct {
	ID           string
	Title        *string
	MessageCount int
	Preview      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ConversationStore abstracts conversation and message persistence.
type ConversationStore interface {
	// Conversation operations
	CreateConversation(ctx context.Context, title *string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error) // messages oldest first
	ListConversations(ctx context.Context, limit, offset int) ([]ConversationInfo, int64, error)
	UpdateConversationTitle(ctx context.Context, id, title string) (*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	PruneEmptyConversations(ctx context.Context, olderThan time.Time) (int64, error)

	// Message operations
	SaveMessage(ctx context.Context, conversationID string, role models.Role, content string) (*Message, error)
	SaveMessageWithID(ctx context.Context, id, conversationID string, role models.Role, content string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	// Connection management
	Connect() error
	Close() error
	DB() *gorm.DB

	// Health check
	Ping() error
}

// StoreConfig holds configuration for database stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // file path or DSN
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
