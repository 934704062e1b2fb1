package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Desarso/chatrelay/models"
	"github.com/Desarso/chatrelay/stores"
)

// HandleTurn relays a single chat turn.
//
// Everything that can fail before the upstream stream is open (creating the
// conversation, saving the user message, loading history, opening the stream)
// is returned as an error and nothing is written to w. Once the stream is open
// the channel is opened and every outcome is reported in-band; the returned
// error is then nil and the TurnResult describes what happened.
//
// The conversation_id frame for a new conversation is deferred until the
// channel opens, so it is still the first frame the client sees.
func (r *TurnRelay) HandleTurn(ctx context.Context, turn models.Turn, w FrameWriter) (*TurnResult, error) {
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return nil, fmt.Errorf("message text is empty")
	}

	// The upstream producer lives only as long as this call, whatever the
	// caller's context. Persistence below detaches with WithoutCancel.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := &TurnResult{}
	if turn.ConversationID != nil && *turn.ConversationID != "" {
		result.ConversationID = *turn.ConversationID
	} else {
		conv, err := r.Store.CreateConversation(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		result.ConversationID = conv.ID
		result.Created = true
		r.Logger.Printf("Created conversation %s", conv.ID)
	}

	if _, err := r.Store.SaveMessage(ctx, result.ConversationID, models.RoleUser, text); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := r.Store.ListMessages(ctx, result.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	historyIssues := stores.DetectCorruptedHistory(history)
	for _, issue := range historyIssues {
		r.Logger.Printf("History issue in conversation %s: %s", result.ConversationID, issue)
	}
	history = stores.SanitizeHistory(history)

	model := turn.Model
	if model == "" {
		model = r.DefaultModel
	}

	st := &turnState{
		phase:   PhaseNotStarted,
		writer:        w,
		started:       time.Now(),
		historyIssues: historyIssues,
	}

	events, err := r.Upstream.Stream(ctx, models.UpstreamRequest{
		Model:     model,
		MaxTokens: r.MaxTokens,
		Messages:  stores.ToChatMessages(history),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open upstream stream: %w", err)
	}

	if err := st.open(); err != nil {
		// Nothing reached the client; the caller can still answer out-of-band.
		return nil, fmt.Errorf("failed to open response stream: %w", err)
	}
	if result.Created {
		if err := st.write(models.ConversationIDFrame(result.ConversationID)); err != nil {
			r.abort(ctx, st, result, model, err)
			return result, nil
		}
	}

	var buf strings.Builder
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				r.fail(ctx, st, result, model, models.ErrStreamTruncated)
				return result, nil
			}

			switch ev.Kind {
			case models.EventText:
				if ev.Text == "" {
					continue
				}
				if err := st.write(models.ContentFrame(ev.Text)); err != nil {
					r.abort(ctx, st, result, model, err)
					return result, nil
				}
				if st.firstChunkAt.IsZero() {
					st.firstChunkAt = time.Now()
					r.Logger.Printf("Time to first token: %v", st.firstChunkAt.Sub(st.started))
				}
				buf.WriteString(ev.Text)
				result.Chunks++

			case models.EventDone:
				result.Content = buf.String()
				r.complete(ctx, st, result, model)
				return result, nil

			case models.EventError:
				r.fail(ctx, st, result, model, ev.Err)
				return result, nil

			default:
				r.fail(ctx, st, result, model, fmt.Errorf("unknown upstream event kind %s", ev.Kind))
				return result, nil
			}

		case <-ctx.Done():
			r.abort(ctx, st, result, model, ctx.Err())
			return result, nil
		}
	}
}

// complete finishes a successful turn: optional message_id, done, close, then
// persist the assistant message. Persisting runs after the client already has
// its terminal frame, so it uses a context that survives the request.
func (r *TurnRelay) complete(ctx context.Context, st *turnState, result *TurnResult, model string) {
	messageID := uuid.NewString()
	if r.AnnounceMessageID {
		if err := st.write(models.MessageIDFrame(messageID)); err != nil {
			r.abort(ctx, st, result, model, err)
			return
		}
	}
	if err := st.terminate(models.DoneFrame()); err != nil {
		r.Logger.Printf("Error writing done frame: %v", err)
	}
	result.Outcome = stores.OutcomeCompleted

	persistCtx := context.WithoutCancel(ctx)
	if _, err := r.Store.SaveMessageWithID(persistCtx, messageID, result.ConversationID, models.RoleAssistant, result.Content); err != nil {
		r.Logger.Printf("Error saving assistant message: %v", err)
		result.PersistErr = err
	} else {
		result.MessageID = messageID
	}

	r.Logger.Printf("Turn completed: %d chunks, %d chars in %v", result.Chunks, len(result.Content), time.Since(st.started))
	r.saveTrace(persistCtx, st, result, model)
}

// fail reports an upstream failure as the single error frame. No assistant
// message is persisted.
func (r *TurnRelay) fail(ctx context.Context, st *turnState, result *TurnResult, model string, cause error) {
	msg := StreamErrorMessage(cause)
	r.Logger.Printf("Upstream stream failed after %d chunks: %v", result.Chunks, cause)

	if err := st.terminate(models.ErrorFrame(msg)); err != nil {
		r.Logger.Printf("Error writing error frame: %v", err)
	}
	result.Outcome = stores.OutcomeFailed
	result.ErrorMessage = msg

	r.saveTrace(context.WithoutCancel(ctx), st, result, model)
}

// abort ends a turn whose client went away. An error frame is still attempted
// so a half-closed transport sees a terminal frame when it can.
func (r *TurnRelay) abort(ctx context.Context, st *turnState, result *TurnResult, model string, cause error) {
	r.Logger.Printf("Client stream aborted after %d chunks: %v", result.Chunks, cause)

	msg := StreamErrorMessage(cause)
	if err := st.terminate(models.ErrorFrame(msg)); err != nil {
		r.Logger.Printf("Error writing error frame: %v", err)
	}
	result.Outcome = stores.OutcomeAborted
	result.ErrorMessage = msg

	r.saveTrace(context.WithoutCancel(ctx), st, result, model)
}

func (r *TurnRelay) saveTrace(ctx context.Context, st *turnState, result *TurnResult, model string) {
	if r.Traces == nil {
		return
	}

	trace := &stores.TurnTrace{
		ConversationID: result.ConversationID,
		MessageID:      result.MessageID,
		Model:          model,
		Transport:      r.Transport,
		Outcome:        result.Outcome,
		ErrorMessage:   result.ErrorMessage,
		Chunks:         result.Chunks,
		Characters:     len(result.Content),
		DurationMS:     time.Since(st.started).Milliseconds(),
	}
	if !st.firstChunkAt.IsZero() {
		trace.FirstChunkMS = st.firstChunkAt.Sub(st.started).Milliseconds()
	}
	details := map[string]any{}
	if result.Created {
		details["created_conversation"] = true
	}
	if len(st.historyIssues) > 0 {
		details["history_issues"] = st.historyIssues
	}
	if result.PersistErr != nil {
		details["persist_error"] = result.PersistErr.Error()
	}
	if len(details) > 0 {
		trace.Details = details
	}

	if err := r.Traces.SaveTrace(ctx, trace); err != nil {
		r.Logger.Printf("Error saving turn trace: %v", err)
	}
}

// open moves the turn into PhaseStreaming.
func (s *turnState) open() error {
	if s.phase != PhaseNotStarted {
		return fmt.Errorf("response stream already %s", s.phase)
	}
	if err := s.writer.Open(); err != nil {
		return err
	}
	s.phase = PhaseStreaming
	return nil
}

// write sends a non-terminal frame.
func (s *turnState) write(frame models.StreamFrame) error {
	if s.phase != PhaseStreaming {
		return fmt.Errorf("cannot write %s frame: response stream %s", frame.Type, s.phase)
	}
	return s.writer.WriteFrame(frame)
}

// terminate writes the terminal frame and closes the channel. Only the first
// call has any effect.
func (s *turnState) terminate(frame models.StreamFrame) error {
	if s.phase != PhaseStreaming {
		return nil
	}
	s.phase = PhaseClosed

	writeErr := s.writer.WriteFrame(frame)
	closeErr := s.writer.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
