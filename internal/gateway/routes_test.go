package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestAPI(t *testing.T, reg *Registry) (*httptest.Server, *Dispatcher) {
	t.Helper()
	d, _ := dispatcherWith(reg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	r := chi.NewRouter()
	RegisterRoutes(r, d)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, d
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestSendMessageEndpointSingleTarget(t *testing.T) {
	reg, conns := newTestRegistry("alpha")
	srv, _ := newTestAPI(t, reg)

	resp := postJSON(t, srv.URL+"/send_message", map[string]any{
		"messenger": "alpha",
		"user":      map[string]string{"messenger_id": "100"},
		"message":   "hello",
	})
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Code != http.StatusOK {
		t.Errorf("expected status 200, got %+v", status)
	}
	if len(conns["alpha"].sentRequests()) != 1 {
		t.Errorf("connector not invoked")
	}
}

func TestSendMessageEndpointWildcard(t *testing.T) {
	reg, conns := newTestRegistry("a", "b")
	srv, _ := newTestAPI(t, reg)

	resp := postJSON(t, srv.URL+"/send_message", map[string]any{
		"messenger": "*",
		"user":      map[string]string{"messenger_id": "100"},
		"message":   "broadcast",
	})
	defer resp.Body.Close()

	var statuses map[string]Status
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected per-bot statuses, got %+v", statuses)
	}
	for name, st := range statuses {
		if st.Code != http.StatusOK {
			t.Errorf("bot %s: expected 200, got %+v", name, st)
		}
		if len(conns[name].sentRequests()) != 1 {
			t.Errorf("bot %s: connector not invoked exactly once", name)
		}
	}
}

func TestSendMessageEndpointUnknownMessenger(t *testing.T) {
	reg, _ := newTestRegistry("alpha")
	srv, _ := newTestAPI(t, reg)

	resp := postJSON(t, srv.URL+"/send_message", map[string]any{
		"messenger": "ghost",
		"user":      map[string]string{"messenger_id": "100"},
		"message":   "hello",
	})
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Code != http.StatusInternalServerError || status.Details == "" {
		t.Errorf("unknown messenger must yield an explicit failure, got %+v", status)
	}
}

func TestSendMessageEndpointRejectsBadJSON(t *testing.T) {
	reg, _ := newTestRegistry("alpha")
	srv, _ := newTestAPI(t, reg)

	resp, err := http.Post(srv.URL+"/send_message", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestSendMessageEndpointRegistersHandlers(t *testing.T) {
	reg, _ := newTestRegistry("alpha")
	srv, d := newTestAPI(t, reg)

	resp := postJSON(t, srv.URL+"/send_message", map[string]any{
		"messenger": "alpha",
		"user":      map[string]string{"messenger_id": "100"},
		"message":   "deal?",
		"handlers": map[string]any{
			"yes": map[string]any{
				"api_url": "http://cb.local/hook",
				"object":  "deal",
				"command": "accept",
				"data":    map[string]string{"deal_id": "d1"},
			},
		},
	})
	resp.Body.Close()

	if d.handlers.Pending("alpha", "100") != 1 {
		t.Error("handlers from the request must end up registered")
	}
	got, ok := d.handlers.Consume("alpha", "100", "yes")
	if !ok {
		t.Fatal("expected registered handler")
	}
	if got.TargetURL != "http://cb.local/hook" || got.Object != "deal" {
		t.Errorf("handler fields lost: %+v", got)
	}
}

func TestAddContactEndpoint(t *testing.T) {
	reg, conns := newTestRegistry("alpha")
	srv, _ := newTestAPI(t, reg)

	resp := postJSON(t, srv.URL+"/add_contact", map[string]any{
		"messenger":  "alpha",
		"first_name": "Ada",
		"last_name":  "L",
		"phone":      "+100",
	})
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Code != http.StatusOK {
		t.Errorf("expected 200, got %+v", status)
	}

	mc := conns["alpha"]
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if len(mc.added) != 1 || mc.added[0].Phone != "+100" {
		t.Errorf("contact not forwarded to connector: %+v", mc.added)
	}
}

func TestRegisterHandlerEndpoint(t *testing.T) {
	reg, _ := newTestRegistry("alpha")
	srv, d := newTestAPI(t, reg)

	resp := postJSON(t, srv.URL+"/register_handler", map[string]any{
		"messenger": "alpha",
		"user":      map[string]string{"phone": "+100"},
		"handlers": map[string]any{
			"ok": map[string]any{"object": "task", "command": "done"},
		},
	})
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Code != http.StatusOK {
		t.Errorf("expected 200, got %+v", status)
	}

	// User key falls back to phone when no messenger id is known.
	waitFor(t, func() bool { return d.handlers.Pending("alpha", "+100") == 1 })
}
