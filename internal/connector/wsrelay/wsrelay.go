// Package wsrelay implements the connector capability set over a
// websocket connection to a platform relay daemon. The relay owns the
// platform protocol; this connector speaks a small JSON frame protocol
// with request/response correlation by id.
package wsrelay

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ameskov/botgate/internal/connector"
)

// frame is one protocol message in either direction.
type frame struct {
	ID string `json:"id"`
	Op string `json:"op,omitempty"`

	// Request fields.
	Session   string        `json:"session,omitempty"`
	User      string        `json:"user,omitempty"`
	Text      string        `json:"text,omitempty"`
	Buttons   []frameButton `json:"buttons,omitempty"`
	FirstName string        `json:"first_name,omitempty"`
	LastName  string        `json:"last_name,omitempty"`
	Phone     string        `json:"phone,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Handle    string        `json:"handle,omitempty"`
	MessageID int64         `json:"message_id,omitempty"`

	// Response fields.
	OK      bool          `json:"ok,omitempty"`
	Error   string        `json:"error,omitempty"`
	UserID  string        `json:"user_id,omitempty"`
	Dialogs []frameDialog `json:"dialogs,omitempty"`
	Message *frameMessage `json:"message,omitempty"`
}

type frameButton struct {
	Title string `json:"title"`
	Reply string `json:"reply"`
}

type frameDialog struct {
	User          string `json:"user"`
	LastMessageID int64  `json:"last_message_id"`
	Handle        string `json:"handle"`
}

type frameMessage struct {
	Text     string `json:"text"`
	Outgoing bool   `json:"outgoing"`
}

// Connector is one relay-backed messaging account.
type Connector struct {
	bot      string
	url      string
	dialer   *websocket.Dialer
	sessions connector.SessionStore

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan frame
	closed  bool
}

// Option configures a Connector.
type Option func(*Connector)

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Connector) { c.dialer = d }
}

// New creates a relay connector for one account. sessions may be nil;
// the relay session token is then lost across restarts.
func New(bot, url string, sessions connector.SessionStore, opts ...Option) *Connector {
	c := &Connector{
		bot:      bot,
		url:      url,
		dialer:   websocket.DefaultDialer,
		sessions: sessions,
		pending:  make(map[string]chan frame),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignIn dials the relay and authenticates with the persisted session
// token. A rejected session is fatal: the relay requires re-pairing.
func (c *Connector) SignIn(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing relay %s: %w", c.url, err)
	}
	c.conn = conn
	go c.readLoop()

	var session string
	if c.sessions != nil {
		state, err := c.sessions.LoadSession(ctx, c.bot)
		if err != nil {
			return fmt.Errorf("restoring session: %w", err)
		}
		session = string(state)
	}

	resp, err := c.call(ctx, frame{Op: "auth", Session: session})
	if err != nil {
		return fmt.Errorf("authenticating with relay: %w", err)
	}
	if !resp.OK {
		return &connector.AuthError{Bot: c.bot, Reason: resp.Error}
	}

	if resp.Session != "" && c.sessions != nil {
		if err := c.sessions.SaveSession(ctx, c.bot, []byte(resp.Session)); err != nil {
			return fmt.Errorf("persisting session: %w", err)
		}
	}
	return nil
}

// Close tears down the relay connection and fails all pending calls.
func (c *Connector) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SendMessage delivers a message through the relay.
func (c *Connector) SendMessage(ctx context.Context, req connector.SendRequest) error {
	buttons := make([]frameButton, 0, len(req.Buttons))
	for _, b := range req.Buttons {
		buttons = append(buttons, frameButton{Title: b.Title, Reply: b.Reply})
	}
	resp, err := c.call(ctx, frame{Op: "send", User: req.UserID, Text: req.Text, Buttons: buttons})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("relay send failed: %s", resp.Error)
	}
	return nil
}

// AddContact imports a contact through the relay and returns the platform
// user id the relay assigned.
func (c *Connector) AddContact(ctx context.Context, contact connector.Contact) (string, error) {
	resp, err := c.call(ctx, frame{
		Op:        "add_contact",
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
		Phone:     contact.Phone,
	})
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("relay add_contact failed: %s", resp.Error)
	}
	return resp.UserID, nil
}

// RecentDialogs asks the relay for the most recent conversations.
func (c *Connector) RecentDialogs(ctx context.Context, limit int) ([]connector.Dialog, error) {
	resp, err := c.call(ctx, frame{Op: "dialogs", Limit: limit})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("relay dialogs failed: %s", resp.Error)
	}
	dialogs := make([]connector.Dialog, 0, len(resp.Dialogs))
	for _, d := range resp.Dialogs {
		dialogs = append(dialogs, connector.Dialog{
			UserID:        d.User,
			LastMessageID: d.LastMessageID,
			Handle:        connector.DialogHandle(d.Handle),
		})
	}
	return dialogs, nil
}

// FetchMessage retrieves one message's content from the relay.
func (c *Connector) FetchMessage(ctx context.Context, handle connector.DialogHandle, messageID int64) (*connector.Message, error) {
	resp, err := c.call(ctx, frame{Op: "fetch", Handle: string(handle), MessageID: messageID})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("relay fetch failed: %s", resp.Error)
	}
	if resp.Message == nil {
		return &connector.Message{}, nil
	}
	return &connector.Message{Text: resp.Message.Text, Outgoing: resp.Message.Outgoing}, nil
}

// call writes one request frame and waits for its correlated response.
func (c *Connector) call(ctx context.Context, f frame) (frame, error) {
	f.ID = uuid.New().String()
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return frame{}, fmt.Errorf("relay connection closed")
	}
	c.pending[f.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(f)
	c.writeMu.Unlock()
	if err != nil {
		return frame{}, fmt.Errorf("writing %s frame: %w", f.Op, err)
	}

	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return frame{}, fmt.Errorf("relay connection closed")
		}
		return resp, nil
	}
}

// readLoop pumps response frames to their waiting callers. When the
// connection dies every pending call fails.
func (c *Connector) readLoop() {
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			c.closed = true
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}
