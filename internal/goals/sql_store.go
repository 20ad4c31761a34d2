package goals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore persists active goals in a `goals` table:
//
//	CREATE TABLE goals (
//	  conversation_id TEXT PRIMARY KEY,
//	  goal_id TEXT NOT NULL,
//	  goal_type TEXT NOT NULL,
//	  tenant_id TEXT NOT NULL,
//	  extracted_data JSONB NOT NULL,
//	  status TEXT NOT NULL,
//	  confirmation_message TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL,
//	  expires_at TIMESTAMPTZ NOT NULL
//	);
//
// Modeled on the donor's internal/tasks/store.go Store interface and
// internal/artifacts/sql_repository.go's prepared-statement style.
type SQLStore struct {
	db *sql.DB

	stmtUpsert *sql.Stmt
	stmtGet    *sql.Stmt
	stmtClear  *sql.Stmt
}

// NewSQLStore prepares statements against db.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	var err error
	if s.stmtUpsert, err = db.Prepare(`
		INSERT INTO goals (conversation_id, goal_id, goal_type, tenant_id, extracted_data, status, confirmation_message, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (conversation_id) DO UPDATE SET
			goal_id = EXCLUDED.goal_id,
			goal_type = EXCLUDED.goal_type,
			tenant_id = EXCLUDED.tenant_id,
			extracted_data = EXCLUDED.extracted_data,
			status = EXCLUDED.status,
			confirmation_message = EXCLUDED.confirmation_message,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`); err != nil {
		return nil, fmt.Errorf("prepare goal upsert: %w", err)
	}
	if s.stmtGet, err = db.Prepare(`
		SELECT goal_id, goal_type, tenant_id, extracted_data, status, confirmation_message, created_at, updated_at, expires_at
		FROM goals WHERE conversation_id = $1
	`); err != nil {
		return nil, fmt.Errorf("prepare goal get: %w", err)
	}
	if s.stmtClear, err = db.Prepare(`DELETE FROM goals WHERE conversation_id = $1`); err != nil {
		return nil, fmt.Errorf("prepare goal clear: %w", err)
	}
	return s, nil
}

// Close releases the prepared statements.
func (s *SQLStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.stmtUpsert, s.stmtGet, s.stmtClear} {
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetActiveGoal implements Store.
func (s *SQLStore) SetActiveGoal(ctx context.Context, conversationID string, goal *Goal) error {
	data, err := json.Marshal(goal.ExtractedData)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}
	_, err = s.stmtUpsert.ExecContext(ctx,
		conversationID, goal.GoalID, string(goal.GoalType), goal.TenantID, data,
		string(goal.Status), goal.ConfirmationMessage, goal.CreatedAt, goal.UpdatedAt, goal.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert goal: %w", err)
	}
	return nil
}

// GetActiveGoal implements Store, returning (nil, nil) past expiry or on
// absence. Deletion of the stale row happens lazily on the next clear or
// upsert for that conversation; an outage reduces to "no active goal" for
// the caller, matching the in-memory store's degrade semantics.
func (s *SQLStore) GetActiveGoal(ctx context.Context, conversationID string) (*Goal, error) {
	var (
		g        Goal
		data     []byte
		goalType string
		status   string
	)
	row := s.stmtGet.QueryRowContext(ctx, conversationID)
	err := row.Scan(&g.GoalID, &goalType, &g.TenantID, &data, &status, &g.ConfirmationMessage, &g.CreatedAt, &g.UpdatedAt, &g.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	g.ConversationID = conversationID
	g.GoalType = Type(goalType)
	g.Status = Status(status)
	if err := json.Unmarshal(data, &g.ExtractedData); err != nil {
		return nil, fmt.Errorf("unmarshal extracted data: %w", err)
	}
	if g.Expired(time.Now()) {
		return nil, nil
	}
	return &g, nil
}

// ClearActiveGoal implements Store.
func (s *SQLStore) ClearActiveGoal(ctx context.Context, conversationID string) error {
	_, err := s.stmtClear.ExecContext(ctx, conversationID)
	return err
}
