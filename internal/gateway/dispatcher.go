package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ameskov/botgate/internal/connector"
	"github.com/ameskov/botgate/internal/webhook"
)

// DefaultQueueSize bounds the command queue when no size is configured.
const DefaultQueueSize = 1024

// verifyTrigger is the fixed platform-level reply that fires the
// verification callback regardless of registered handlers.
const verifyTrigger = "1"

// Recorder persists dispatcher side effects. Implementations must
// tolerate being called once per processed command.
type Recorder interface {
	RecordInbound(ctx context.Context, bot, user, text string) error
	RecordContact(ctx context.Context, bot string, c connector.Contact, platformUserID string) error
}

// Dispatcher is the single consumer of the bounded command queue. It
// serializes every registry mutation and connector invocation: one
// command is processed to completion before the next is taken.
type Dispatcher struct {
	registry *Registry
	handlers *HandlerTable
	webhooks *webhook.Client
	recorder Recorder
	queue    chan Command
	log      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the command queue at n entries.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Command, n)
		}
	}
}

// WithRecorder attaches a persistence recorder.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, handlers *HandlerTable, webhooks *webhook.Client, log *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		registry: registry,
		handlers: handlers,
		webhooks: webhooks,
		queue:    make(chan Command, DefaultQueueSize),
		log:      log.With("component", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue places a command on the queue, blocking while the queue is full
// so back-pressure reaches the producer. Commands are never dropped; the
// only failure is context cancellation.
func (d *Dispatcher) Enqueue(ctx context.Context, cmd Command) error {
	select {
	case d.queue <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the queue until the context is cancelled. Commands are
// taken in strict FIFO order across all producers. A failure processing
// one command is reported and never terminates the loop.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.queue:
			d.process(ctx, cmd)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case SendMessageCommand:
		d.processSend(ctx, c)
	case AddContactCommand:
		d.processAddContact(ctx, c)
	case RegisterHandlerCommand:
		d.handlers.Register(c.Bot, c.User, c.Handlers)
	case InboundMessageCommand:
		d.processInbound(ctx, c)
	default:
		d.log.Warn("unknown command", "kind", fmt.Sprintf("%T", cmd))
	}
}

func (d *Dispatcher) processSend(ctx context.Context, cmd SendMessageCommand) {
	targets := d.registry.ResolveTargets(cmd.Messenger)
	result := make(map[string]Status, len(targets))

	if len(targets) == 0 {
		result[cmd.Messenger] = Status{Code: http.StatusInternalServerError, Details: "unknown messenger"}
		d.log.Warn("send to unknown messenger", "messenger", cmd.Messenger)
		reply(cmd.Result, result)
		return
	}

	for _, t := range targets {
		// Register the expected replies first so an answer arriving
		// right after delivery is already recognized.
		if len(cmd.Handlers) > 0 {
			d.handlers.Register(t.Name, cmd.User.Key(), withCallbackFallback(cmd.Handlers, t.Ctx.CallbackURL))
		}

		err := t.Conn.SendMessage(ctx, connector.SendRequest{
			UserID:     cmd.User.Key(),
			Text:       cmd.Text,
			AccessHint: cmd.AccessHint,
			Buttons:    cmd.Buttons,
		})
		if err != nil {
			d.log.Error("send failed", "bot", t.Name, "user", cmd.User.Key(), "error", err)
			result[t.Name] = Status{Code: http.StatusInternalServerError, Details: err.Error()}
			continue
		}
		result[t.Name] = Status{Code: http.StatusOK}
	}
	reply(cmd.Result, result)
}

func (d *Dispatcher) processAddContact(ctx context.Context, cmd AddContactCommand) {
	targets := d.registry.ResolveTargets(cmd.Messenger)
	result := make(map[string]Status, len(targets))

	if len(targets) == 0 {
		result[cmd.Messenger] = Status{Code: http.StatusInternalServerError, Details: "unknown messenger"}
		d.log.Warn("add contact to unknown messenger", "messenger", cmd.Messenger)
		reply(cmd.Result, result)
		return
	}

	for _, t := range targets {
		userID, err := t.Conn.AddContact(ctx, cmd.Contact)
		if err != nil {
			d.log.Error("add contact failed", "bot", t.Name, "phone", cmd.Contact.Phone, "error", err)
			result[t.Name] = Status{Code: http.StatusInternalServerError, Details: err.Error()}
			continue
		}
		result[t.Name] = Status{Code: http.StatusOK}

		if d.recorder != nil {
			if err := d.recorder.RecordContact(ctx, t.Name, cmd.Contact, userID); err != nil {
				d.log.Error("recording contact failed", "bot", t.Name, "error", err)
			}
		}
		d.notifyContactImported(ctx, t, cmd.Contact, userID)
	}
	reply(cmd.Result, result)
}

// notifyContactImported tells the external system which platform user id
// the imported contact received. Fire-and-forget: a delivery failure is
// logged and never retried.
func (d *Dispatcher) notifyContactImported(ctx context.Context, t Target, c connector.Contact, userID string) {
	if t.Ctx.CallbackURL == "" {
		return
	}
	data, err := json.Marshal(map[string]string{
		"user_id": userID,
		"phone":   c.Phone,
	})
	if err != nil {
		d.log.Error("marshalling contact notification", "bot", t.Name, "error", err)
		return
	}
	action := webhook.Action{
		TargetURL: t.Ctx.CallbackURL,
		Object:    "contact",
		Command:   "imported",
		Data:      data,
	}
	if err := d.webhooks.Send(ctx, action); err != nil {
		d.log.Error("contact notification failed", "bot", t.Name, "error", err)
	}
}

func (d *Dispatcher) processInbound(ctx context.Context, cmd InboundMessageCommand) {
	if d.recorder != nil {
		if err := d.recorder.RecordInbound(ctx, cmd.Bot, cmd.User, cmd.Text); err != nil {
			d.log.Error("recording inbound message failed", "bot", cmd.Bot, "error", err)
		}
	}

	botCtx, _ := d.registry.Context(cmd.Bot)

	if action, ok := d.handlers.Consume(cmd.Bot, cmd.User, cmd.Text); ok {
		if action.TargetURL == "" {
			action.TargetURL = botCtx.CallbackURL
		}
		if err := d.webhooks.Send(ctx, action); err != nil {
			d.log.Error("reply webhook failed", "bot", cmd.Bot, "user", cmd.User, "error", err)
		}
	}

	// Platform-level rule: a literal "1" reply always fires the
	// verification callback, whether or not a handler matched.
	if cmd.Text == verifyTrigger && botCtx.CallbackURL != "" {
		data, err := json.Marshal(map[string]string{
			"bot":  cmd.Bot,
			"user": cmd.User,
		})
		if err != nil {
			d.log.Error("marshalling verify payload", "bot", cmd.Bot, "error", err)
			return
		}
		verify := webhook.Action{
			TargetURL: botCtx.CallbackURL,
			Object:    "user",
			Command:   "verify",
			Data:      data,
		}
		if err := d.webhooks.Send(ctx, verify); err != nil {
			d.log.Error("verify webhook failed", "bot", cmd.Bot, "user", cmd.User, "error", err)
		}
	}
}

// withCallbackFallback fills empty target URLs with the bot's callback
// endpoint so consumption never needs the registry again.
func withCallbackFallback(handlers HandlerMap, callbackURL string) HandlerMap {
	out := make(HandlerMap, len(handlers))
	for text, action := range handlers {
		if action.TargetURL == "" {
			action.TargetURL = callbackURL
		}
		out[text] = action
	}
	return out
}

// reply delivers a result without ever blocking the dispatcher; callers
// must use a buffered channel.
func reply(ch chan<- map[string]Status, result map[string]Status) {
	if ch == nil {
		return
	}
	select {
	case ch <- result:
	default:
	}
}
