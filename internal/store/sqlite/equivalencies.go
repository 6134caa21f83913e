package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/id"
)

// UpsertEquivalency inserts or updates the directed equivalence edge
// (source, input, output). On conflict the strength is replaced and the
// vote count incremented, so repeated corroborating reports accumulate.
func (s *Store) UpsertEquivalency(ctx context.Context, source domain.DataSource, inputID, outputID string, strength float64) (*domain.Equivalency, error) {
	now := time.Now()

	eqID, err := id.Generate("eqv")
	if err != nil {
		return nil, fmt.Errorf("generate equivalency ID: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO equivalencies (id, created_at, updated_at, source, input_id, output_id, strength, votes)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (source, input_id, output_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			strength = excluded.strength,
			votes = votes + 1`,
		eqID,
		formatTime(now),
		formatTime(now),
		source,
		inputID,
		outputID,
		strength,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert equivalency: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, source, input_id, output_id, strength, votes
		FROM equivalencies
		WHERE source = ? AND input_id = ? AND output_id = ?`,
		source, inputID, outputID)

	var e domain.Equivalency
	var createdAt, updatedAt string
	if err := row.Scan(&e.ID, &createdAt, &updatedAt, &e.Source, &e.InputID, &e.OutputID, &e.Strength, &e.Votes); err != nil {
		return nil, err
	}
	e.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	e.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EquivalenciesTouching returns every equivalence edge whose input or output
// is one of the given identifier IDs. Used by the identity graph to expand
// one BFS frontier.
func (s *Store) EquivalenciesTouching(ctx context.Context, identifierIDs []string) ([]*domain.Equivalency, error) {
	if len(identifierIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identifierIDs)), ",")
	args := make([]any, 0, len(identifierIDs)*2)
	for _, identifierID := range identifierIDs {
		args = append(args, identifierID)
	}
	for _, identifierID := range identifierIDs {
		args = append(args, identifierID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, source, input_id, output_id, strength, votes
		FROM equivalencies
		WHERE input_id IN (`+placeholders+`) OR output_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query equivalencies: %w", err)
	}
	defer rows.Close()

	var edges []*domain.Equivalency
	for rows.Next() {
		var e domain.Equivalency
		var createdAt, updatedAt string
		if err := rows.Scan(&e.ID, &createdAt, &updatedAt, &e.Source, &e.InputID, &e.OutputID, &e.Strength, &e.Votes); err != nil {
			return nil, err
		}
		e.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		e.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}
