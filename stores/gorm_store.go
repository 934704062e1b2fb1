package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Desarso/chatrelay/models"
)

// gormStore implements ConversationStore on any gorm dialect. SQLiteStore and
// PostgresStore only differ in how they open the connection.
type gormStore struct {
	db   *gorm.DB
	open func() (gorm.Dialector, error)
}

func gormConfig(config *StoreConfig) *gorm.Config {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if config != nil && config.Options["log_level"] == "silent" {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	return cfg
}

// connect opens the database and migrates the schema.
func (s *gormStore) connect(cfg *gorm.Config) error {
	dialector, err := s.open()
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return err
	}

	s.db = db

	// Auto-migrate the schema
	if err := s.db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// DB exposes the connection for stores sharing it, such as GORMTraceStore.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *gormStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *gormStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// CreateConversation creates a new conversation record
func (s *gormStore) CreateConversation(ctx context.Context, title *string) (*Conversation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	conv := Conversation{Title: title}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation loads a conversation with its messages in sequence order.
func (s *gormStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var conv Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Where("id = ?", id).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns a page of conversations, most recently updated first,
// together with the total number of conversations.
func (s *gormStore) ListConversations(ctx context.Context, limit, offset int) ([]ConversationInfo, int64, error) {
	if s.db == nil {
		return nil, 0, fmt.Errorf("database connection is nil")
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Conversation{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	var convs []Conversation
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Offset(offset).Find(&convs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	result := make([]ConversationInfo, len(convs))
	for i, c := range convs {
		result[i] = ConversationInfo{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: c.MessageCount,
			Preview:      c.Preview,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
		}
	}

	return result, total, nil
}

// UpdateConversationTitle renames a conversation.
func (s *gormStore) UpdateConversationTitle(ctx context.Context, id, title string) (*Conversation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	res := s.db.WithContext(ctx).Model(&Conversation{}).Where("id = ?", id).Update("title", title)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}

	var conv Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, fmt.Errorf("failed to reload conversation: %w", err)
	}
	return &conv, nil
}

// DeleteConversation removes a conversation and all of its messages.
func (s *gormStore) DeleteConversation(ctx context.Context, id string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&Conversation{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// PruneEmptyConversations deletes conversations that never received a message
// and were created before olderThan.
func (s *gormStore) PruneEmptyConversations(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	res := s.db.WithContext(ctx).
		Where("message_count = ? AND created_at < ?", 0, olderThan).
		Delete(&Conversation{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune conversations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SaveMessage appends a message to a conversation.
func (s *gormStore) SaveMessage(ctx context.Context, conversationID string, role models.Role, content string) (*Message, error) {
	return s.SaveMessageWithID(ctx, "", conversationID, role, content)
}

// SaveMessageWithID appends a message under a caller-chosen id. An empty id
// gets a fresh UUID.
func (s *gormStore) SaveMessageWithID(ctx context.Context, id, conversationID string, role models.Role, content string) (*Message, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var msg Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the conversation row so concurrent saves get distinct sequences.
		// SQLite has no row locks; its single connection serializes writers.
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var conv Conversation
		if err := q.Where("id = ?", conversationID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
			}
			return fmt.Errorf("failed to load conversation: %w", err)
		}

		seq := conv.MessageCount + 1
		msg = Message{
			ID:             id,
			ConversationID: conversationID,
			Sequence:       seq,
			Role:           role,
			Content:        content,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("failed to create message record: %w", err)
		}

		updates := map[string]interface{}{
			"message_count": seq,
			"updated_at":    time.Now(),
		}
		if seq == 1 {
			updates["preview"] = truncatePreview(content)
		}
		if err := tx.Model(&Conversation{}).Where("id = ?", conversationID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update conversation message count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages retrieves messages for a conversation in sequence order
func (s *gormStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var msgs []Message
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("sequence ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return msgs, nil
}

func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}
