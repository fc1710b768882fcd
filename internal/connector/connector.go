// Package connector defines the capability set every messaging platform
// adapter implements, plus the types shared across platforms.
package connector

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned by a connector for a capability its platform
// cannot provide (e.g. contact import over a bot-token API).
var ErrUnsupported = errors.New("operation not supported by this platform")

// AuthError marks a sign-in failure. It is fatal during startup: the
// gateway refuses to run with a half-authenticated bot.
type AuthError struct {
	Bot    string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for bot %q: %s", e.Bot, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// DialogHandle is an opaque platform value needed to fetch message
// content from a dialog later. Connectors produce it; nothing else
// interprets it.
type DialogHandle string

// Dialog is one recent conversation as reported by a connector.
type Dialog struct {
	UserID        string
	LastMessageID int64
	Handle        DialogHandle
}

// Message is the content of one platform message.
type Message struct {
	Text string
	// Outgoing is true when the bot itself authored the message.
	Outgoing bool
}

// Contact identifies a person to import into the platform's address book.
type Contact struct {
	FirstName string
	LastName  string
	Phone     string
}

// Button is one quick-reply option attached to an outgoing message.
type Button struct {
	Title string
	Reply string
}

// SendRequest is a platform-independent outgoing message.
type SendRequest struct {
	UserID string
	Text   string
	// AccessHint is an optional platform credential for addressing the
	// peer (e.g. a Telegram access hash). Zero when unknown.
	AccessHint int64
	Buttons    []Button
}

// Connector is one messaging platform account. Implementations must be
// safe for concurrent use: the dispatcher invokes the send side while
// the poller invokes the receive side on the same instance.
type Connector interface {
	// SignIn authenticates the account. Unrecoverable failures are
	// returned as *AuthError and abort startup.
	SignIn(ctx context.Context) error

	// SendMessage delivers a message to a user.
	SendMessage(ctx context.Context, req SendRequest) error

	// AddContact imports a contact and returns the platform user id
	// assigned to it.
	AddContact(ctx context.Context, c Contact) (string, error)

	// RecentDialogs returns up to limit most recent conversations,
	// newest first.
	RecentDialogs(ctx context.Context, limit int) ([]Dialog, error)

	// FetchMessage retrieves one message from a dialog by id.
	FetchMessage(ctx context.Context, handle DialogHandle, messageID int64) (*Message, error)
}

// SessionStore persists per-bot connector state (auth sessions, update
// offsets) across restarts.
type SessionStore interface {
	LoadSession(ctx context.Context, bot string) ([]byte, error)
	SaveSession(ctx context.Context, bot string, state []byte) error
}
