package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ameskov/botgate/internal/connector"
)

// fakeBotAPI serves a scripted subset of the Bot API.
type fakeBotAPI struct {
	mu       sync.Mutex
	selfID   int64
	rejected bool
	updates  []apiUpdate
	sent     []sendMessagePayload
	offsets  []int64
}

func (f *fakeBotAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		switch method {
		case "getMe":
			if f.rejected {
				fmt.Fprint(w, `{"ok":false,"description":"Unauthorized"}`)
				return
			}
			fmt.Fprintf(w, `{"ok":true,"result":{"id":%d,"first_name":"bot"}}`, f.selfID)
		case "getUpdates":
			var req getUpdatesPayload
			json.NewDecoder(r.Body).Decode(&req)
			f.offsets = append(f.offsets, req.Offset)
			pending := make([]apiUpdate, 0, len(f.updates))
			for _, u := range f.updates {
				if u.UpdateID >= req.Offset {
					pending = append(pending, u)
				}
			}
			result, _ := json.Marshal(pending)
			fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
		case "sendMessage":
			var req sendMessagePayload
			json.NewDecoder(r.Body).Decode(&req)
			f.sent = append(f.sent, req)
			fmt.Fprintf(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":%d}}}`, req.ChatID)
		default:
			fmt.Fprintf(w, `{"ok":false,"description":"unknown method %s"}`, method)
		}
	}
}

func (f *fakeBotAPI) sentCalls() []sendMessagePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendMessagePayload(nil), f.sent...)
}

func (f *fakeBotAPI) offsetCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.offsets...)
}

type memorySessions struct {
	mu    sync.Mutex
	state map[string][]byte
}

func newMemorySessions() *memorySessions {
	return &memorySessions{state: make(map[string][]byte)}
}

func (m *memorySessions) SaveSession(_ context.Context, bot string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[bot] = state
	return nil
}

func (m *memorySessions) LoadSession(_ context.Context, bot string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[bot], nil
}

func update(updateID, chatID, messageID, fromID int64, text string) apiUpdate {
	return apiUpdate{
		UpdateID: updateID,
		Message: &apiMessage{
			MessageID: messageID,
			From:      &apiUser{ID: fromID},
			Chat:      apiChat{ID: chatID},
			Text:      text,
		},
	}
}

func newTestConnector(t *testing.T, api *fakeBotAPI, sessions connector.SessionStore) *Connector {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return New("alpha", "tok-1", sessions, WithBaseURL(srv.URL))
}

func TestSignIn(t *testing.T) {
	api := &fakeBotAPI{selfID: 99}
	sessions := newMemorySessions()
	sessions.SaveSession(context.Background(), "alpha", []byte(`{"offset":41}`))

	c := newTestConnector(t, api, sessions)
	if err := c.SignIn(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.offset != 41 {
		t.Errorf("offset not restored from session: %d", c.offset)
	}
	if c.selfID != 99 {
		t.Errorf("self id not captured: %d", c.selfID)
	}
}

func TestSignInRejectedToken(t *testing.T) {
	api := &fakeBotAPI{rejected: true}
	c := newTestConnector(t, api, nil)

	err := c.SignIn(context.Background())
	if err == nil {
		t.Fatal("expected sign-in to fail")
	}
	var authErr *connector.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if authErr.Bot != "alpha" {
		t.Errorf("wrong bot in auth error: %q", authErr.Bot)
	}
}

func TestSendMessage(t *testing.T) {
	api := &fakeBotAPI{selfID: 99}
	c := newTestConnector(t, api, nil)

	err := c.SendMessage(context.Background(), connector.SendRequest{UserID: "1001", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	sent := api.sentCalls()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sendMessage call, got %d", len(sent))
	}
	got := sent[0]
	if got.ChatID != 1001 || got.Text != "hello" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.ReplyMarkup != nil {
		t.Error("no keyboard expected without buttons")
	}
}

func TestSendMessageWithButtons(t *testing.T) {
	api := &fakeBotAPI{selfID: 99}
	c := newTestConnector(t, api, nil)

	err := c.SendMessage(context.Background(), connector.SendRequest{
		UserID:  "1001",
		Text:    "pick one",
		Buttons: []connector.Button{{Title: "yes"}, {Title: "no"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	markup := api.sentCalls()[0].ReplyMarkup
	if markup == nil {
		t.Fatal("expected a reply keyboard")
	}
	if !markup.OneTimeKeyboard {
		t.Error("keyboard must be one-time")
	}
	if len(markup.Keyboard) != 2 || markup.Keyboard[0][0].Text != "yes" || markup.Keyboard[1][0].Text != "no" {
		t.Errorf("unexpected keyboard layout: %+v", markup.Keyboard)
	}
}

func TestSendMessageNonNumericUser(t *testing.T) {
	c := newTestConnector(t, &fakeBotAPI{}, nil)
	err := c.SendMessage(context.Background(), connector.SendRequest{UserID: "bob", Text: "hi"})
	if err == nil {
		t.Fatal("expected error for non-numeric user id")
	}
}

func TestAddContactUnsupported(t *testing.T) {
	c := newTestConnector(t, &fakeBotAPI{}, nil)
	_, err := c.AddContact(context.Background(), connector.Contact{Phone: "+100"})
	if !errors.Is(err, connector.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestRecentDialogs(t *testing.T) {
	api := &fakeBotAPI{
		selfID: 99,
		updates: []apiUpdate{
			update(1, 1001, 10, 500, "first"),
			update(2, 2002, 20, 600, "second"),
			update(3, 1001, 11, 500, "third"),
		},
	}
	sessions := newMemorySessions()
	c := newTestConnector(t, api, sessions)

	dialogs, err := c.RecentDialogs(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(dialogs) != 2 {
		t.Fatalf("expected 2 dialogs, got %d", len(dialogs))
	}
	byUser := make(map[string]connector.Dialog, len(dialogs))
	for _, d := range dialogs {
		byUser[d.UserID] = d
	}
	if byUser["1001"].LastMessageID != 11 {
		t.Errorf("chat 1001 last message id = %d, want 11", byUser["1001"].LastMessageID)
	}
	if byUser["2002"].LastMessageID != 20 {
		t.Errorf("chat 2002 last message id = %d, want 20", byUser["2002"].LastMessageID)
	}

	// The advanced offset is persisted, so a restart resumes past the
	// consumed updates.
	state, _ := sessions.LoadSession(context.Background(), "alpha")
	var s sessionState
	if err := json.Unmarshal(state, &s); err != nil {
		t.Fatal(err)
	}
	if s.Offset != 4 {
		t.Errorf("persisted offset = %d, want 4", s.Offset)
	}

	// A second refresh asks from the new offset and sees nothing new.
	if _, err := c.RecentDialogs(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	offsets := api.offsetCalls()
	if got := offsets[len(offsets)-1]; got != 4 {
		t.Errorf("second getUpdates offset = %d, want 4", got)
	}
}

func TestRecentDialogsLimit(t *testing.T) {
	api := &fakeBotAPI{
		updates: []apiUpdate{
			update(1, 1001, 10, 500, "a"),
			update(2, 2002, 20, 600, "b"),
			update(3, 3003, 30, 700, "c"),
		},
	}
	c := newTestConnector(t, api, nil)

	dialogs, err := c.RecentDialogs(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(dialogs) != 2 {
		t.Errorf("limit not applied: got %d dialogs", len(dialogs))
	}
}

func TestFetchMessage(t *testing.T) {
	api := &fakeBotAPI{
		selfID: 99,
		updates: []apiUpdate{
			update(1, 1001, 10, 500, "from the user"),
			update(2, 1001, 11, 99, "from the bot"),
		},
	}
	c := newTestConnector(t, api, nil)
	if err := c.SignIn(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RecentDialogs(context.Background(), 5); err != nil {
		t.Fatal(err)
	}

	msg, err := c.FetchMessage(context.Background(), connector.DialogHandle("1001"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "from the user" || msg.Outgoing {
		t.Errorf("unexpected message: %+v", msg)
	}

	msg, err = c.FetchMessage(context.Background(), connector.DialogHandle("1001"), 11)
	if err != nil {
		t.Fatal(err)
	}
	if !msg.Outgoing {
		t.Error("message from the bot itself must be flagged outgoing")
	}

	// Uncached ids yield an empty message, not an error.
	msg, err = c.FetchMessage(context.Background(), connector.DialogHandle("1001"), 404)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "" {
		t.Errorf("expected empty message for unknown id, got %q", msg.Text)
	}
}
