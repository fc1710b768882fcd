package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ameskov/botgate/internal/connector"
	"github.com/ameskov/botgate/internal/webhook"
)

// RegisterRoutes mounts the control-plane endpoints on the given router.
func RegisterRoutes(r chi.Router, d *Dispatcher) {
	r.Post("/send_message", handleSendMessage(d))
	r.Post("/add_contact", handleAddContact(d))
	r.Post("/register_handler", handleRegisterHandler(d))
}

// apiAction is the wire form of a webhook binding. The callback URL is
// accepted on input but never serialized back out.
type apiAction struct {
	APIURL  string          `json:"api_url"`
	Object  string          `json:"object"`
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

type apiButton struct {
	Title string `json:"title"`
	Reply string `json:"reply"`
}

type sendMessageRequest struct {
	Messenger  string               `json:"messenger"`
	User       UserRef              `json:"user"`
	Message    string               `json:"message"`
	AccessHash int64                `json:"access_hash"`
	Buttons    []apiButton          `json:"buttons"`
	Handlers   map[string]apiAction `json:"handlers"`
}

type addContactRequest struct {
	Messenger string `json:"messenger"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type registerHandlerRequest struct {
	Messenger string               `json:"messenger"`
	User      UserRef              `json:"user"`
	Handlers  map[string]apiAction `json:"handlers"`
}

func handleSendMessage(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}

		buttons := make([]connector.Button, 0, len(req.Buttons))
		for _, b := range req.Buttons {
			buttons = append(buttons, connector.Button{Title: b.Title, Reply: b.Reply})
		}

		result := make(chan map[string]Status, 1)
		cmd := SendMessageCommand{
			Messenger:  req.Messenger,
			User:       req.User,
			Text:       req.Message,
			AccessHint: req.AccessHash,
			Buttons:    buttons,
			Handlers:   toHandlerMap(req.Handlers),
			Result:     result,
		}

		respondWithOutcome(w, r, d, cmd, req.Messenger, result)
	}
}

func handleAddContact(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addContactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}

		result := make(chan map[string]Status, 1)
		cmd := AddContactCommand{
			Messenger: req.Messenger,
			Contact: connector.Contact{
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Phone:     req.Phone,
			},
			Result: result,
		}

		respondWithOutcome(w, r, d, cmd, req.Messenger, result)
	}
}

func handleRegisterHandler(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerHandlerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}

		cmd := RegisterHandlerCommand{
			Bot:      req.Messenger,
			User:     req.User.Key(),
			Handlers: toHandlerMap(req.Handlers),
		}
		if err := d.Enqueue(r.Context(), cmd); err != nil {
			writeJSON(w, http.StatusOK, Status{Code: http.StatusInternalServerError, Details: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, Status{Code: http.StatusOK})
	}
}

// respondWithOutcome enqueues the command, waits for the dispatcher's
// per-target outcome and writes it in the control-plane wire shape: a
// single status for a named bot, a bot-keyed map for the wildcard.
func respondWithOutcome(w http.ResponseWriter, r *http.Request, d *Dispatcher, cmd Command, messenger string, result <-chan map[string]Status) {
	if err := d.Enqueue(r.Context(), cmd); err != nil {
		writeJSON(w, http.StatusOK, Status{Code: http.StatusInternalServerError, Details: err.Error()})
		return
	}

	select {
	case <-r.Context().Done():
		writeJSON(w, http.StatusOK, Status{Code: http.StatusInternalServerError, Details: "request cancelled"})
	case statuses := <-result:
		if messenger == Wildcard {
			writeJSON(w, http.StatusOK, statuses)
			return
		}
		status, ok := statuses[messenger]
		if !ok {
			status = Status{Code: http.StatusInternalServerError, Details: "unknown messenger"}
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func toHandlerMap(in map[string]apiAction) HandlerMap {
	if len(in) == 0 {
		return nil
	}
	out := make(HandlerMap, len(in))
	for text, a := range in {
		out[text] = webhook.Action{
			TargetURL: a.APIURL,
			Object:    a.Object,
			Command:   a.Command,
			Data:      a.Data,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
