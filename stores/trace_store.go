package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Turn outcomes recorded on a TurnTrace
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted" // client went away mid-stream
)

// TurnTrace records how a single relayed turn went.
// Indexed by conversation_id for per-conversation retrieval
type TurnTrace struct {
	ID             uint           `gorm:"primarykey" json:"-"`
	CreatedAt      time.Time      `json:"-"`
	ConversationID string         `gorm:"index:idx_turn_conv;not null" json:"conversation_id"`
	MessageID      string         `gorm:"index:idx_turn_msg" json:"message_id,omitempty"`
	Model          string         `json:"model"`
	Transport      string         `json:"transport"` // sse, websocket
	Outcome        string         `gorm:"not null" json:"outcome"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message,omitempty"`
	Chunks         int            `json:"chunks"`
	Characters     int            `json:"characters"`
	DetailsJSON    string         `gorm:"type:text" json:"-"`         // Stored as JSON string
	Details        map[string]any `gorm:"-" json:"details,omitempty"` // Not stored, computed from DetailsJSON
	Timestamp      int64          `gorm:"not null" json:"timestamp"`
	FirstChunkMS   int64          `json:"first_chunk_ms,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
}

// BeforeSave marshals Details to DetailsJSON
func (t *TurnTrace) BeforeSave(tx *gorm.DB) error {
	if t.Details != nil {
		data, err := json.Marshal(t.Details)
		if err != nil {
			return err
		}
		t.DetailsJSON = string(data)
	}
	return nil
}

// AfterFind unmarshals DetailsJSON to Details
func (t *TurnTrace) AfterFind(tx *gorm.DB) error {
	if t.DetailsJSON != "" {
		return json.Unmarshal([]byte(t.DetailsJSON), &t.Details)
	}
	return nil
}

// TraceStore persists per-turn traces
type TraceStore interface {
	// SaveTrace saves a single turn trace
	SaveTrace(ctx context.Context, trace *TurnTrace) error

	// GetTracesByConversation retrieves all traces for a conversation, oldest first
	GetTracesByConversation(ctx context.Context, conversationID string) ([]*TurnTrace, error)

	// DeleteTracesByConversation removes all traces for a conversation
	DeleteTracesByConversation(ctx context.Context, conversationID string) error
}

// GORMTraceStore implements TraceStore for SQLite/PostgreSQL via GORM
type GORMTraceStore struct {
	db *gorm.DB
}

// NewGORMTraceStore creates a trace store from an existing GORM database connection
func NewGORMTraceStore(db *gorm.DB) (*GORMTraceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	// Auto-migrate the trace table
	if err := db.AutoMigrate(&TurnTrace{}); err != nil {
		return nil, fmt.Errorf("failed to migrate turn_traces table: %w", err)
	}

	return &GORMTraceStore{db: db}, nil
}

// SaveTrace saves a single turn trace
func (s *GORMTraceStore) SaveTrace(ctx context.Context, trace *TurnTrace) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if trace.Timestamp == 0 {
		trace.Timestamp = time.Now().UnixMilli()
	}
	return s.db.WithContext(ctx).Create(trace).Error
}

// GetTracesByConversation retrieves all traces for a conversation, ordered by timestamp
func (s *GORMTraceStore) GetTracesByConversation(ctx context.Context, conversationID string) ([]*TurnTrace, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var traces []*TurnTrace
	err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&traces).Error

	return traces, err
}

// DeleteTracesByConversation removes all traces for a conversation
func (s *GORMTraceStore) DeleteTracesByConversation(ctx context.Context, conversationID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&TurnTrace{}).Error
}
