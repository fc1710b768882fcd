package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/ameskov/botgate/internal/connector"
)

// Default polling cadence and dialog cap, used when the config leaves
// them unset.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultDialogLimit  = 5
)

// Enqueuer is the poller's view of the dispatcher queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, cmd Command) error
}

// snapshot is the last observed state of one user's conversation.
type snapshot struct {
	lastMessageID int64
	handle        connector.DialogHandle
}

// Poller periodically samples one connector's recent dialogs, diffs them
// against its cached snapshots and emits inbound-message commands for
// conversations with new content. Each poller exclusively owns its
// snapshot map; polls for one bot never overlap.
type Poller struct {
	bot       string
	conn      connector.Connector
	queue     Enqueuer
	interval  time.Duration
	limit     int
	log       *slog.Logger
	snapshots map[string]snapshot
}

// NewPoller creates a poller for one bot. Non-positive interval or limit
// fall back to the defaults.
func NewPoller(bot string, conn connector.Connector, queue Enqueuer, interval time.Duration, limit int, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if limit <= 0 {
		limit = DefaultDialogLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		bot:       bot,
		conn:      conn,
		queue:     queue,
		interval:  interval,
		limit:     limit,
		log:       log.With("component", "poller", "bot", bot),
		snapshots: make(map[string]snapshot),
	}
}

// Run polls until the context is cancelled. A failed iteration is logged
// and retried on the next tick; it never stops the poller and never
// affects other bots.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("poll failed", "error", err)
		}
		timer.Reset(p.interval)
	}
}

// poll runs one sample-diff-emit cycle.
func (p *Poller) poll(ctx context.Context) error {
	dialogs, err := p.conn.RecentDialogs(ctx, p.limit)
	if err != nil {
		return err
	}

	for _, dl := range dialogs {
		prev, seen := p.snapshots[dl.UserID]
		if seen && prev.lastMessageID == dl.LastMessageID {
			continue
		}

		// First-seen dialogs take the same path as changed ones: fetch
		// the content before emitting, so no empty event ever leaves
		// the poller.
		msg, err := p.conn.FetchMessage(ctx, dl.Handle, dl.LastMessageID)
		if err != nil {
			// Snapshot stays stale; the fetch is retried next tick.
			p.log.Error("fetching message failed", "user", dl.UserID, "message_id", dl.LastMessageID, "error", err)
			continue
		}

		p.snapshots[dl.UserID] = snapshot{lastMessageID: dl.LastMessageID, handle: dl.Handle}

		if msg.Text == "" || msg.Outgoing {
			continue
		}

		cmd := InboundMessageCommand{Bot: p.bot, User: dl.UserID, Text: msg.Text}
		if err := p.queue.Enqueue(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}
