// Package telegram implements the connector capability set over the
// Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ameskov/botgate/internal/connector"
)

const defaultBaseURL = "https://api.telegram.org"

// messageCacheSize caps how many messages are retained per chat for
// FetchMessage lookups.
const messageCacheSize = 64

// Connector is one Telegram bot account. The Bot API has no dialog-list
// call, so the connector folds getUpdates traffic into a per-chat cache
// and serves RecentDialogs and FetchMessage from it.
type Connector struct {
	bot      string
	token    string
	baseURL  string
	http     *http.Client
	sessions connector.SessionStore

	mu     sync.Mutex
	offset int64
	selfID int64
	chats  map[int64]*chatState
}

type chatState struct {
	lastMessageID int64
	lastActivity  time.Time
	messages      map[int64]cachedMessage
	order         []int64
}

type cachedMessage struct {
	text   string
	fromID int64
}

// Option configures a Connector.
type Option func(*Connector)

// WithBaseURL overrides the Bot API endpoint (tests point it at a local
// server).
func WithBaseURL(url string) Option {
	return func(c *Connector) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Connector) { c.http = h }
}

// New creates a Telegram connector for one bot account. sessions may be
// nil; the getUpdates offset then lives only in memory.
func New(bot, token string, sessions connector.SessionStore, opts ...Option) *Connector {
	c := &Connector{
		bot:      bot,
		token:    token,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		sessions: sessions,
		chats:    make(map[int64]*chatState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignIn verifies the token against getMe and restores the persisted
// update offset. A rejected token is fatal for startup.
func (c *Connector) SignIn(ctx context.Context) error {
	var me apiUser
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return &connector.AuthError{Bot: c.bot, Reason: "token rejected by getMe", Err: err}
	}

	c.mu.Lock()
	c.selfID = me.ID
	c.mu.Unlock()

	if c.sessions != nil {
		state, err := c.sessions.LoadSession(ctx, c.bot)
		if err != nil {
			return fmt.Errorf("restoring session: %w", err)
		}
		if len(state) > 0 {
			var s sessionState
			if err := json.Unmarshal(state, &s); err == nil {
				c.mu.Lock()
				c.offset = s.Offset
				c.mu.Unlock()
			}
		}
	}
	return nil
}

// SendMessage delivers a text message, attaching a one-time reply
// keyboard when buttons are present.
func (c *Connector) SendMessage(ctx context.Context, req connector.SendRequest) error {
	chatID, err := strconv.ParseInt(req.UserID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram user id %q is not numeric: %w", req.UserID, err)
	}

	payload := sendMessagePayload{ChatID: chatID, Text: req.Text}
	if len(req.Buttons) > 0 {
		rows := make([][]keyboardButton, 0, len(req.Buttons))
		for _, b := range req.Buttons {
			rows = append(rows, []keyboardButton{{Text: b.Title}})
		}
		payload.ReplyMarkup = &replyKeyboard{
			Keyboard:        rows,
			OneTimeKeyboard: true,
			ResizeKeyboard:  true,
		}
	}

	var sent apiMessage
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return fmt.Errorf("sending message to %d: %w", chatID, err)
	}
	return nil
}

// AddContact is not available over the Bot API.
func (c *Connector) AddContact(ctx context.Context, _ connector.Contact) (string, error) {
	return "", connector.ErrUnsupported
}

// RecentDialogs drains pending updates into the chat cache and returns
// the most recently active chats, newest first.
func (c *Connector) RecentDialogs(ctx context.Context, limit int) ([]connector.Dialog, error) {
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	type entry struct {
		id    int64
		state *chatState
	}
	entries := make([]entry, 0, len(c.chats))
	for id, st := range c.chats {
		entries = append(entries, entry{id: id, state: st})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].state.lastActivity.After(entries[j].state.lastActivity)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	dialogs := make([]connector.Dialog, 0, len(entries))
	for _, e := range entries {
		dialogs = append(dialogs, connector.Dialog{
			UserID:        strconv.FormatInt(e.id, 10),
			LastMessageID: e.state.lastMessageID,
			Handle:        connector.DialogHandle(strconv.FormatInt(e.id, 10)),
		})
	}
	return dialogs, nil
}

// FetchMessage serves a message from the chat cache. Ids that were never
// cached (or already evicted) yield an empty message rather than an
// error, so the poller can advance past them.
func (c *Connector) FetchMessage(_ context.Context, handle connector.DialogHandle, messageID int64) (*connector.Message, error) {
	chatID, err := strconv.ParseInt(string(handle), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid dialog handle %q: %w", handle, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.chats[chatID]
	if !ok {
		return &connector.Message{}, nil
	}
	cached, ok := st.messages[messageID]
	if !ok {
		return &connector.Message{}, nil
	}
	return &connector.Message{
		Text:     cached.text,
		Outgoing: cached.fromID != 0 && cached.fromID == c.selfID,
	}, nil
}

// refresh pulls pending updates, folds them into the chat cache and
// persists the advanced offset.
func (c *Connector) refresh(ctx context.Context) error {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()

	var updates []apiUpdate
	payload := getUpdatesPayload{Offset: offset, Limit: 100}
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return fmt.Errorf("getting updates: %w", err)
	}
	if len(updates) == 0 {
		return nil
	}

	c.mu.Lock()
	for _, u := range updates {
		if u.UpdateID >= c.offset {
			c.offset = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.Chat.ID == 0 {
			continue
		}
		c.ingestLocked(u.Message)
	}
	offset = c.offset
	c.mu.Unlock()

	if c.sessions != nil {
		state, err := json.Marshal(sessionState{Offset: offset})
		if err != nil {
			return fmt.Errorf("marshalling session state: %w", err)
		}
		if err := c.sessions.SaveSession(ctx, c.bot, state); err != nil {
			return fmt.Errorf("persisting session: %w", err)
		}
	}
	return nil
}

func (c *Connector) ingestLocked(m *apiMessage) {
	st, ok := c.chats[m.Chat.ID]
	if !ok {
		st = &chatState{messages: make(map[int64]cachedMessage)}
		c.chats[m.Chat.ID] = st
	}

	var fromID int64
	if m.From != nil {
		fromID = m.From.ID
	}
	st.messages[m.MessageID] = cachedMessage{text: m.Text, fromID: fromID}
	st.order = append(st.order, m.MessageID)
	for len(st.order) > messageCacheSize {
		delete(st.messages, st.order[0])
		st.order = st.order[1:]
	}

	if m.MessageID > st.lastMessageID {
		st.lastMessageID = m.MessageID
	}
	st.lastActivity = time.Now()
}

// call invokes one Bot API method and decodes its result.
func (c *Connector) call(ctx context.Context, method string, payload, result any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("encoding %s payload: %w", method, err)
		}
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("%s failed: %s", method, api.Description)
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}
