package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Policy represents a row in the policies table. Document is the safeguard
// policy as submitted, stored verbatim as JSONB.
type Policy struct {
	ID        string
	ProjectID string
	Document  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetPolicy returns the policy for a project, or nil if not found.
func (s *Store) GetPolicy(ctx context.Context, projectID string) (*Policy, error) {
	var p Policy
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, document, created_at, updated_at
		FROM policies WHERE project_id = $1`, projectID,
	).Scan(&p.ID, &p.ProjectID, &p.Document, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPolicy: %w", err)
	}
	return &p, nil
}

// ReplacePolicy fully replaces a project's policy document. The caller is
// responsible for validating the document first.
func (s *Store) ReplacePolicy(ctx context.Context, projectID string, document json.RawMessage) (*Policy, error) {
	if document == nil {
		document = json.RawMessage(`{}`)
	}

	var p Policy
	err := s.db.QueryRowContext(ctx, `
		UPDATE policies SET
			document   = $2,
			updated_at = now()
		WHERE project_id = $1
		RETURNING id, project_id, document, created_at, updated_at`,
		projectID, document,
	).Scan(&p.ID, &p.ProjectID, &p.Document, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReplacePolicy: %w", err)
	}
	return &p, nil
}
