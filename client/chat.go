package client

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Desarso/chatrelay/models"
)

// ErrStreamClosed means the stream ended without a done or error frame and
// without the [DONE] terminator.
var ErrStreamClosed = errors.New("stream closed before completion")

const readChunkSize = 4096

// Message is a message as reconstructed on the client.
type Message struct {
	ID        string
	Role      models.Role
	Content   string
	CreatedAt time.Time
}

// State is what a user interface renders.
type State struct {
	Messages       []Message
	ConversationID *string
	IsLoading      bool
	IsStreaming    bool
	Error          string // empty when there is no error
}

// Streamer opens the event stream for one turn. *API implements it.
type Streamer interface {
	SendMessage(ctx context.Context, req models.SendMessageRequest) (io.ReadCloser, error)
}

// ChatOptions configures NewChat.
type ChatOptions struct {
	ConversationID  *string
	InitialMessages []Message
	Model           string       // sent with every turn when set
	OnChange        func(State) // called with a snapshot after every state change
}

// Chat folds a stream of frames into observable chat state.
//
// Sends must be serialized by the caller; the fold loop of the active send is
// the only writer. Snapshot is safe to call from any goroutine.
type Chat struct {
	api      Streamer
	model    string
	onChange func(State)
	Logger   *log.Logger

	mu    sync.Mutex
	state State
}

// NewChat creates a chat bound to api.
func NewChat(api Streamer, opts ChatOptions) *Chat {
	c := &Chat{
		api:      api,
		model:    opts.Model,
		onChange: opts.OnChange,
		Logger:   log.New(os.Stderr, "[CHAT] ", log.LstdFlags),
	}
	c.state.Messages = append([]Message(nil), opts.InitialMessages...)
	if opts.ConversationID != nil {
		id := *opts.ConversationID
		c.state.ConversationID = &id
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Chat) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ClearError dismisses the error banner.
func (c *Chat) ClearError() {
	c.update(func(s *State) { s.Error = "" })
}

// StartNewConversation resets messages, the conversation handle and the
// error. No request is made.
func (c *Chat) StartNewConversation() {
	c.update(func(s *State) {
		s.Messages = nil
		s.ConversationID = nil
		s.Error = ""
	})
}

// SendUserMessage sends text as a new turn and folds the reply into the state.
//
// Blank text is ignored. On any failure the messages added by this call are
// removed, the conversation handle is restored and the error is recorded; the
// error is also returned.
func (c *Chat) SendUserMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	userMsg := Message{
		ID:        "temp-user-" + uuid.NewString(),
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}

	var prevConversationID *string
	c.update(func(s *State) {
		prevConversationID = s.ConversationID
		s.IsLoading = true
		s.Error = ""
		next := make([]Message, len(s.Messages), len(s.Messages)+2)
		copy(next, s.Messages)
		s.Messages = append(next, userMsg)
		s.IsStreaming = true
	})

	req := models.SendMessageRequest{Message: text, Model: c.model}
	if prevConversationID != nil {
		id := *prevConversationID
		req.ConversationID = &id
	}

	f := &fold{chat: c, assistantID: "temp-" + uuid.NewString()}

	body, err := c.api.SendMessage(ctx, req)
	if err == nil {
		err = f.run(body)
		body.Close()
	}
	if err != nil {
		c.Logger.Printf("Error sending message: %v", err)
		c.rollback(userMsg.ID, f, prevConversationID, errorMessage(err))
		return err
	}

	c.update(func(s *State) {
		s.IsLoading = false
		s.IsStreaming = false
	})
	return nil
}

// rollback removes this call's messages by id and restores the handle.
func (c *Chat) rollback(userMsgID string, f *fold, prevConversationID *string, message string) {
	c.update(func(s *State) {
		kept := make([]Message, 0, len(s.Messages))
		for _, m := range s.Messages {
			if m.ID == userMsgID || (f.inserted && m.ID == f.assistantID) {
				continue
			}
			kept = append(kept, m)
		}
		s.Messages = kept
		s.ConversationID = prevConversationID
		s.Error = message
		s.IsLoading = false
		s.IsStreaming = false
	})
}

func (c *Chat) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snap)
	}
}

func (c *Chat) snapshotLocked() State {
	s := c.state
	s.Messages = append([]Message(nil), c.state.Messages...)
	if c.state.ConversationID != nil {
		id := *c.state.ConversationID
		s.ConversationID = &id
	}
	return s
}

// fold applies the frames of one turn to the chat state.
type fold struct {
	chat        *Chat
	assistantID string // current id of the assistant message
	inserted    bool
}

// run reads body until a terminal frame, the sentinel or the end of the stream.
func (f *fold) run(body io.Reader) error {
	dec := &FrameDecoder{}
	buf := make([]byte, readChunkSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			frames, sentinel, err := dec.Feed(buf[:n])
			if terminal, ferr := f.applyAll(frames); terminal || ferr != nil {
				return ferr
			}
			if err != nil {
				return err
			}
			if sentinel {
				f.finishStreaming()
				return nil
			}
		}

		if errors.Is(readErr, io.EOF) {
			frames, sentinel, err := dec.Finish()
			if terminal, ferr := f.applyAll(frames); terminal || ferr != nil {
				return ferr
			}
			if err != nil {
				return err
			}
			if sentinel {
				f.finishStreaming()
				return nil
			}
			return ErrStreamClosed
		}
		if readErr != nil {
			return readErr
		}
	}
}

// applyAll applies frames in order and stops at the first terminal frame.
func (f *fold) applyAll(frames []models.StreamFrame) (bool, error) {
	for _, frame := range frames {
		if terminal, err := f.apply(frame); terminal {
			return true, err
		}
	}
	return false, nil
}

// apply folds one frame. It reports whether the frame was terminal; an error
// frame is returned as an error.
func (f *fold) apply(frame models.StreamFrame) (bool, error) {
	var terminal bool
	var frameErr error

	f.chat.update(func(s *State) {
		if !f.inserted {
			s.Messages = append(s.Messages, Message{
				ID:        f.assistantID,
				Role:      models.RoleAssistant,
				CreatedAt: time.Now(),
			})
			f.inserted = true
		}

		switch frame.Type {
		case models.FrameConversationID:
			if s.ConversationID == nil && frame.ConversationID != "" {
				id := frame.ConversationID
				s.ConversationID = &id
			}
		case models.FrameContent:
			if last := lastAssistant(s); last != nil {
				last.Content += frame.Content
			}
		case models.FrameMessageID:
			if last := lastAssistant(s); last != nil && frame.MessageID != "" {
				last.ID = frame.MessageID
				f.assistantID = frame.MessageID
			}
		case models.FrameDone:
			s.IsStreaming = false
			terminal = true
		case models.FrameError:
			s.IsStreaming = false
			terminal = true
			msg := frame.Message
			if msg == "" {
				msg = "Streaming error occurred"
			}
			frameErr = errors.New(msg)
		}
	})

	return terminal, frameErr
}

func (f *fold) finishStreaming() {
	f.chat.update(func(s *State) { s.IsStreaming = false })
}

func lastAssistant(s *State) *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	last := &s.Messages[len(s.Messages)-1]
	if last.Role != models.RoleAssistant {
		return nil
	}
	return last
}

// errorMessage is the text put in the error slot.
func errorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return "API Error: " + apiErr.Message
	}
	return err.Error()
}
