package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"swap-orchestrator/core/models"
)

// PostgresStore persists session records in Postgres so they survive a
// process restart. It implements the same Store contract as MemoryStore;
// Update atomicity comes from a row lock instead of a process mutex.
type PostgresStore struct {
	db *sql.DB
}

// NewDB opens a Postgres connection pool and verifies connectivity
func NewDB(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewPostgresStore creates a Postgres-backed session store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new session row
func (p *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	artifactsJSON, errorJSON, err := marshalSessionJSON(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO swap_sessions (
			id, status, add_person_prompt, composite_prompt, swap_prompt,
			artifacts_json, error_json, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = p.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.Prompts.AddPerson,
		session.Prompts.Composite,
		session.Prompts.Swap,
		artifactsJSON,
		errorJSON,
		session.CreatedAt,
		session.UpdatedAt,
	)
	return err
}

// Get retrieves a session row by id
func (p *PostgresStore) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, status, add_person_prompt, composite_prompt, swap_prompt,
			artifacts_json, error_json, created_at, updated_at
		FROM swap_sessions
		WHERE id = $1
	`
	session, err := scanSession(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// Update applies the mutator inside a transaction holding the row lock, so
// concurrent updates to the same session id serialize instead of racing
func (p *PostgresStore) Update(ctx context.Context, id string, mutate func(*models.Session) error) (*models.Session, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		SELECT id, status, add_person_prompt, composite_prompt, swap_prompt,
			artifacts_json, error_json, created_at, updated_at
		FROM swap_sessions
		WHERE id = $1
		FOR UPDATE
	`
	session, err := scanSession(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(session); err != nil {
		return nil, err
	}

	artifactsJSON, errorJSON, err := marshalSessionJSON(session)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE swap_sessions
		SET status         = $1,
		    artifacts_json = $2,
		    error_json     = $3,
		    updated_at     = $4
		WHERE id = $5
	`, session.Status, artifactsJSON, errorJSON, session.UpdatedAt, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

// Delete removes the session row and its event rows
func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM swap_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}
	_, err = p.db.ExecContext(ctx, `DELETE FROM swap_session_events WHERE session_id = $1`, id)
	return err
}

// AppendEvent inserts a transition event row
func (p *PostgresStore) AppendEvent(ctx context.Context, event models.SessionEvent) error {
	var fromStatus *string
	if event.FromStatus != nil {
		s := string(*event.FromStatus)
		fromStatus = &s
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO swap_session_events (session_id, at, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, event.SessionID, event.At, fromStatus, event.ToStatus, event.Reason)
	return err
}

// ListEvents retrieves a session's transition events, oldest first
func (p *PostgresStore) ListEvents(ctx context.Context, sessionID string) ([]models.SessionEvent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, at, from_status, to_status, reason
		FROM swap_session_events
		WHERE session_id = $1
		ORDER BY at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.SessionEvent
	for rows.Next() {
		var event models.SessionEvent
		var fromStatus sql.NullString
		if err := rows.Scan(&event.SessionID, &event.At, &fromStatus, &event.ToStatus, &event.Reason); err != nil {
			return nil, err
		}
		if fromStatus.Valid {
			status := models.SessionStatus(fromStatus.String)
			event.FromStatus = &status
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var artifactsJSON string
	var errorJSON sql.NullString

	err := row.Scan(
		&session.ID,
		&session.Status,
		&session.Prompts.AddPerson,
		&session.Prompts.Composite,
		&session.Prompts.Swap,
		&artifactsJSON,
		&errorJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Artifacts = make(map[models.ArtifactKind]models.Artifact)
	if artifactsJSON != "" {
		if err := json.Unmarshal([]byte(artifactsJSON), &session.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to parse artifacts JSON: %w", err)
		}
	}
	if errorJSON.Valid && errorJSON.String != "" {
		session.Error = &models.FailureInfo{}
		if err := json.Unmarshal([]byte(errorJSON.String), session.Error); err != nil {
			return nil, fmt.Errorf("failed to parse error JSON: %w", err)
		}
	}
	return session, nil
}

func marshalSessionJSON(session *models.Session) (artifactsJSON string, errorJSON *string, err error) {
	artifacts, err := json.Marshal(session.Artifacts)
	if err != nil {
		return "", nil, err
	}
	if session.Error != nil {
		data, err := json.Marshal(session.Error)
		if err != nil {
			return "", nil, err
		}
		s := string(data)
		errorJSON = &s
	}
	return string(artifacts), errorJSON, nil
}
