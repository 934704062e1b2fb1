package sessions

import (
	"fmt"
	"log"
	"time"

	"github.com/Desarso/chatrelay/models"
	"github.com/Desarso/chatrelay/stores"
)

// Phase is the protocol state of one turn's outbound channel.
type Phase int

const (
	// PhaseNotStarted: nothing has been written. Failures are reported out-of-band.
	PhaseNotStarted Phase = iota
	// PhaseStreaming: the channel is open. Failures become a single error frame.
	PhaseStreaming
	// PhaseClosed: a terminal frame was written and the channel closed.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseStreaming:
		return "streaming"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// FrameWriter is the outbound channel for one turn.
//
// Open is called once, right before the first frame. Close is called once,
// right after the terminal frame.
type FrameWriter interface {
	Open() error
	WriteFrame(frame models.StreamFrame) error
	Close() error
}

// TurnResult summarizes a relayed turn after the stream has been closed.
type TurnResult struct {
	ConversationID string
	Created        bool   // conversation was created for this turn
	MessageID      string // id of the persisted assistant message, empty on failure
	Content        string
	Outcome        string // stores.OutcomeCompleted, OutcomeFailed or OutcomeAborted
	ErrorMessage   string // message carried by the error frame
	Chunks         int
	PersistErr     error // assistant message could not be saved after done
}

// TurnRelay forwards one chat turn from the upstream model to a FrameWriter
// and persists both sides of the exchange.
type TurnRelay struct {
	Store             stores.ConversationStore
	Upstream          models.Upstream
	Traces            stores.TraceStore // Optional: per-turn traces
	DefaultModel      string
	MaxTokens         int
	AnnounceMessageID bool   // emit a message_id frame before done
	Transport         string // recorded on traces, e.g. "sse"
	Logger            *log.Logger
}

// turnState is the per-call protocol state. It never outlives HandleTurn.
type turnState struct {
	phase        Phase
	writer       FrameWriter
	started      time.Time
	firstChunkAt time.Time

	historyIssues []string // found in stored history before sanitizing
}
