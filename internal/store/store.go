package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ameskov/botgate/internal/connector"
)

// Store provides persistence for sessions, contacts and inbound messages.
// It satisfies the dispatcher's Recorder and the connectors' SessionStore.
type Store struct {
	db *DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *DB) *Store {
	return &Store{db: database}
}

// SaveSession upserts the opaque connector state for a bot.
func (s *Store) SaveSession(ctx context.Context, bot string, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (bot, state, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(bot) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		bot, state,
	)
	if err != nil {
		return fmt.Errorf("saving session for %s: %w", bot, err)
	}
	return nil
}

// LoadSession returns the stored connector state for a bot, or nil when
// none has been saved yet.
func (s *Store) LoadSession(ctx context.Context, bot string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE bot = ?`, bot).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session for %s: %w", bot, err)
	}
	return state, nil
}

// Contact is one imported contact record.
type Contact struct {
	ID             string
	Bot            string
	Phone          string
	FirstName      string
	LastName       string
	PlatformUserID string
	CreatedAt      time.Time
}

// RecordContact upserts an imported contact and the platform user id the
// import returned.
func (s *Store) RecordContact(ctx context.Context, bot string, c connector.Contact, platformUserID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, bot, phone, first_name, last_name, platform_user_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bot, phone) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			platform_user_id = excluded.platform_user_id`,
		uuid.New().String(), bot, c.Phone, c.FirstName, c.LastName, platformUserID,
	)
	if err != nil {
		return fmt.Errorf("recording contact %s for %s: %w", c.Phone, bot, err)
	}
	return nil
}

// ContactsFor lists the contacts imported through one bot.
func (s *Store) ContactsFor(ctx context.Context, bot string) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot, phone, first_name, last_name, platform_user_id, created_at
		FROM contacts WHERE bot = ? ORDER BY created_at, rowid`, bot)
	if err != nil {
		return nil, fmt.Errorf("listing contacts for %s: %w", bot, err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Bot, &c.Phone, &c.FirstName, &c.LastName, &c.PlatformUserID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// InboundMessage is one logged inbound message.
type InboundMessage struct {
	ID         string
	Bot        string
	User       string
	Text       string
	ReceivedAt time.Time
}

// RecordInbound appends an inbound message to the log.
func (s *Store) RecordInbound(ctx context.Context, bot, user, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_log (id, bot, user, text) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), bot, user, text,
	)
	if err != nil {
		return fmt.Errorf("recording inbound message for %s: %w", bot, err)
	}
	return nil
}

// MessagesFor lists logged messages for one (bot, user) conversation,
// oldest first.
func (s *Store) MessagesFor(ctx context.Context, bot, user string) ([]InboundMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot, user, text, received_at
		FROM message_log WHERE bot = ? AND user = ? ORDER BY received_at, rowid`, bot, user)
	if err != nil {
		return nil, fmt.Errorf("listing messages for %s/%s: %w", bot, user, err)
	}
	defer rows.Close()

	var messages []InboundMessage
	for rows.Next() {
		var m InboundMessage
		if err := rows.Scan(&m.ID, &m.Bot, &m.User, &m.Text, &m.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
