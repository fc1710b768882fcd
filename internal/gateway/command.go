// Package gateway routes commands between the HTTP control plane and the
// platform connectors: an immutable connector registry, a single-consumer
// command dispatcher, a one-shot reply-handler table and a per-bot
// snapshot poller.
package gateway

import (
	"github.com/ameskov/botgate/internal/connector"
	"github.com/ameskov/botgate/internal/webhook"
)

// HandlerMap binds expected literal reply texts to webhook actions,
// scoped to one (bot, user) pair.
type HandlerMap map[string]webhook.Action

// UserRef identifies a remote conversation partner the way the control
// plane addresses one.
type UserRef struct {
	Phone       string `json:"phone"`
	MessengerID string `json:"messenger_id"`
}

// Key returns the identifier used for routing and handler scoping: the
// platform id when known, the phone number otherwise.
func (u UserRef) Key() string {
	if u.MessengerID != "" {
		return u.MessengerID
	}
	return u.Phone
}

// Status is the per-target outcome of a command, in the wire shape the
// control plane receives.
type Status struct {
	Code    int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// Command is a unit of work flowing through the dispatcher queue.
type Command interface {
	commandKind() string
}

// SendMessageCommand delivers a message through one bot, or through every
// bot when Messenger is the wildcard token.
type SendMessageCommand struct {
	Messenger  string
	User       UserRef
	Text       string
	AccessHint int64
	Buttons    []connector.Button
	// Handlers, when present, are registered for (bot, user) before the
	// send so an immediate reply is already recognized.
	Handlers HandlerMap
	// Result, when non-nil, receives the per-bot outcome. It must be
	// buffered; the dispatcher never blocks on it.
	Result chan<- map[string]Status
}

func (SendMessageCommand) commandKind() string { return "send_message" }

// AddContactCommand imports a contact through one bot.
type AddContactCommand struct {
	Messenger string
	Contact   connector.Contact
	Result    chan<- map[string]Status
}

func (AddContactCommand) commandKind() string { return "add_contact" }

// RegisterHandlerCommand merges reply handlers for a (bot, user) pair.
type RegisterHandlerCommand struct {
	Bot      string
	User     string
	Handlers HandlerMap
}

func (RegisterHandlerCommand) commandKind() string { return "register_handler" }

// InboundMessageCommand is a message received from a platform, emitted by
// a snapshot poller.
type InboundMessageCommand struct {
	Bot  string
	User string
	Text string
}

func (InboundMessageCommand) commandKind() string { return "inbound_message" }
