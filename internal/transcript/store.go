package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs. Declared here so
// tests can substitute a fake without a running database.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations in the chats table.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// NewStore creates a conversation store backed by db.
func NewStore(db Querier, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Save writes the conversation, replacing any existing transcript with the
// same ID. The full message list is overwritten, not appended; concurrent
// saves to the same conversation are last-writer-wins.
func (s *Store) Save(ctx context.Context, conv *Conversation) error {
	payload, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}

	const q = `
		INSERT INTO chats (id, user_id, messages)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET messages = EXCLUDED.messages, updated_at = now()`

	if _, err := s.db.Exec(ctx, q, conv.ID, conv.OwnerID, payload); err != nil {
		return fmt.Errorf("saving conversation %s: %w", conv.ID, err)
	}

	s.logger.Debug("conversation saved", "conversation_id", conv.ID, "messages", len(conv.Messages))
	return nil
}

// Get loads a conversation by ID. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	const q = `
		SELECT id, user_id, messages, created_at, updated_at
		FROM chats
		WHERE id = $1`

	var (
		conv    Conversation
		payload []byte
	)
	err := s.db.QueryRow(ctx, q, id).Scan(
		&conv.ID, &conv.OwnerID, &payload, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}

	if err := json.Unmarshal(payload, &conv.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages for %s: %w", id, err)
	}
	return &conv, nil
}

// Delete removes a conversation. Returns ErrNotFound if no row matched.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// ListByOwner returns the owner's conversations, newest first. Message bodies
// are included; the list view is expected to show only a handful per user.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*Conversation, error) {
	const q = `
		SELECT id, user_id, messages, created_at, updated_at
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var (
			conv    Conversation
			payload []byte
		)
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &payload, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		if err := json.Unmarshal(payload, &conv.Messages); err != nil {
			return nil, fmt.Errorf("decoding messages for %s: %w", conv.ID, err)
		}
		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}
