package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/store"
)

// resourceColumns is the ordered list of columns selected in resource
// queries. Must match the scan order in scanResource.
const resourceColumns = `id, created_at, updated_at, identifier_id, source, rel, url,
	media_type, rights_status, content, thumbnail_id, width, height, blur_hash,
	estimated_quality, vote_count, vote_sum, quality`

// scanResource scans a sql.Row (or sql.Rows via its Scan method) into a
// domain.Resource.
func scanResource(scanner interface{ Scan(dest ...any) error }) (*domain.Resource, error) {
	var r domain.Resource

	var (
		createdAt    string
		updatedAt    string
		url          sql.NullString
		mediaType    sql.NullString
		rightsStatus sql.NullString
		content      sql.NullString
		thumbnailID  sql.NullString
		blurHash     sql.NullString
	)

	err := scanner.Scan(
		&r.ID,
		&createdAt,
		&updatedAt,
		&r.IdentifierID,
		&r.Source,
		&r.Rel,
		&url,
		&mediaType,
		&rightsStatus,
		&content,
		&thumbnailID,
		&r.Width,
		&r.Height,
		&blurHash,
		&r.EstimatedQuality,
		&r.VoteCount,
		&r.VoteSum,
		&r.Quality,
	)
	if err != nil {
		return nil, err
	}

	r.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	r.URL = url.String
	r.MediaType = mediaType.String
	r.RightsStatus = domain.RightsStatus(rightsStatus.String)
	r.Content = content.String
	r.ThumbnailID = thumbnailID.String
	r.BlurHash = blurHash.String

	return &r, nil
}

// CreateResource inserts a new resource.
func (s *Store) CreateResource(ctx context.Context, r *domain.Resource) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (
			id, created_at, updated_at, identifier_id, source, rel, url,
			media_type, rights_status, content, thumbnail_id, width, height, blur_hash,
			estimated_quality, vote_count, vote_sum, quality
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
		r.IdentifierID,
		r.Source,
		r.Rel,
		nullString(r.URL),
		nullString(r.MediaType),
		nullString(string(r.RightsStatus)),
		nullString(r.Content),
		nullString(r.ThumbnailID),
		r.Width,
		r.Height,
		nullString(r.BlurHash),
		r.EstimatedQuality,
		r.VoteCount,
		r.VoteSum,
		r.Quality,
	)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

// GetResource retrieves a resource by ID.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetResource(ctx context.Context, resourceID string) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ?`, resourceID)

	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateResource performs a full row update on an existing resource.
// Returns store.ErrNotFound if the resource does not exist.
func (s *Store) UpdateResource(ctx context.Context, r *domain.Resource) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resources SET
			updated_at = ?,
			rel = ?,
			url = ?,
			media_type = ?,
			rights_status = ?,
			content = ?,
			thumbnail_id = ?,
			width = ?,
			height = ?,
			blur_hash = ?,
			estimated_quality = ?,
			vote_count = ?,
			vote_sum = ?,
			quality = ?
		WHERE id = ?`,
		formatTime(r.UpdatedAt),
		r.Rel,
		nullString(r.URL),
		nullString(r.MediaType),
		nullString(string(r.RightsStatus)),
		nullString(r.Content),
		nullString(r.ThumbnailID),
		r.Width,
		r.Height,
		nullString(r.BlurHash),
		r.EstimatedQuality,
		r.VoteCount,
		r.VoteSum,
		r.Quality,
		r.ID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetResourceBySourceRelURL retrieves a resource by its natural key, so
// re-imports update rather than duplicate.
func (s *Store) GetResourceBySourceRelURL(ctx context.Context, identifierID string, source domain.DataSource, rel domain.Rel, url string) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources
		WHERE identifier_id = ? AND source = ? AND rel = ? AND COALESCE(url, '') = ?`,
		identifierID, source, rel, url)

	r, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ResourcesForIdentifiers returns every resource with the given rel attached
// to any identifier in the set. This is the candidate pool for champion
// selection across an identity cluster.
func (s *Store) ResourcesForIdentifiers(ctx context.Context, identifierIDs []string, rel domain.Rel) ([]*domain.Resource, error) {
	if len(identifierIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identifierIDs)), ",")
	args := make([]any, 0, len(identifierIDs)+1)
	for _, identifierID := range identifierIDs {
		args = append(args, identifierID)
	}
	args = append(args, rel)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources
		WHERE identifier_id IN (`+placeholders+`) AND rel = ?
		ORDER BY id ASC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var resources []*domain.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}
