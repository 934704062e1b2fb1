package stores

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs the pruner at the top of every hour.
const DefaultPruneSchedule = "@hourly"

// Pruner periodically deletes conversations that were created but never used.
// POST /api/conversations followed by an abandoned page leaves these behind.
type Pruner struct {
	store    ConversationStore
	schedule string
	maxAge   time.Duration
	cron     *cron.Cron
	logger   *log.Logger
}

// NewPruner creates a pruner that removes empty conversations older than maxAge.
func NewPruner(store ConversationStore, schedule string, maxAge time.Duration) *Pruner {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	return &Pruner{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   log.New(os.Stdout, "[PRUNER] ", log.LstdFlags),
	}
}

// Start registers the job and starts the scheduler in the background.
func (p *Pruner) Start() error {
	if p.cron != nil {
		return fmt.Errorf("pruner already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(p.schedule, func() {
		if _, err := p.RunOnce(context.Background()); err != nil {
			p.logger.Printf("Prune failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.schedule, err)
	}

	p.cron = c
	c.Start()
	p.logger.Printf("Pruning empty conversations older than %s on schedule %q", p.maxAge, p.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running prune to finish.
func (p *Pruner) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.cron = nil
}

// RunOnce prunes immediately and returns the number of conversations removed.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	n, err := p.store.PruneEmptyConversations(ctx, time.Now().Add(-p.maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Printf("Removed %d empty conversations", n)
	}
	return n, nil
}
