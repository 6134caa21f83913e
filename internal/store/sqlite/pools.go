package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/openshelf/openshelf-server/internal/domain"
	"github.com/openshelf/openshelf-server/internal/store"
)

// poolColumns is the ordered list of columns selected in license pool
// queries. Must match the scan order in scanPool.
const poolColumns = `id, created_at, updated_at, source, identifier_id, rights_status,
	work_id, presentation_edition_id, open_access, superceded, suppressed,
	licenses_owned, licenses_available`

// scanPool scans a sql.Row (or sql.Rows via its Scan method) into a
// domain.LicensePool.
func scanPool(scanner interface{ Scan(dest ...any) error }) (*domain.LicensePool, error) {
	var p domain.LicensePool

	var (
		createdAt  string
		updatedAt  string
		workID     sql.NullString
		editionID  sql.NullString
		openAccess int
		superceded int
		suppressed int
	)

	err := scanner.Scan(
		&p.ID,
		&createdAt,
		&updatedAt,
		&p.Source,
		&p.IdentifierID,
		&p.RightsStatus,
		&workID,
		&editionID,
		&openAccess,
		&superceded,
		&suppressed,
		&p.LicensesOwned,
		&p.LicensesAvailable,
	)
	if err != nil {
		return nil, err
	}

	p.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	p.WorkID = workID.String
	p.PresentationEditionID = editionID.String
	p.OpenAccess = openAccess != 0
	p.Superceded = superceded != 0
	p.Suppressed = suppressed != 0

	return &p, nil
}

// CreatePool inserts a new license pool.
// Returns store.ErrAlreadyExists if a pool already exists for the identifier.
func (s *Store) CreatePool(ctx context.Context, p *domain.LicensePool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO license_pools (
			id, created_at, updated_at, source, identifier_id, rights_status,
			work_id, presentation_edition_id, open_access, superceded, suppressed,
			licenses_owned, licenses_available
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
		p.Source,
		p.IdentifierID,
		p.RightsStatus,
		nullString(p.WorkID),
		nullString(p.PresentationEditionID),
		boolToInt(p.OpenAccess),
		boolToInt(p.Superceded),
		boolToInt(p.Suppressed),
		p.LicensesOwned,
		p.LicensesAvailable,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetPool retrieves a license pool by ID.
// Returns store.ErrNotFound if it does not exist.
func (s *Store) GetPool(ctx context.Context, poolID string) (*domain.LicensePool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+poolColumns+` FROM license_pools WHERE id = ?`, poolID)

	p, err := scanPool(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPoolByIdentifier retrieves the license pool for an identifier.
// Returns store.ErrNotFound if no pool exists for it.
func (s *Store) GetPoolByIdentifier(ctx context.Context, identifierID string) (*domain.LicensePool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+poolColumns+` FROM license_pools WHERE identifier_id = ?`, identifierID)

	p, err := scanPool(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePool performs a full row update on an existing pool.
// Returns store.ErrNotFound if the pool does not exist.
func (s *Store) UpdatePool(ctx context.Context, p *domain.LicensePool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE license_pools SET
			updated_at = ?,
			rights_status = ?,
			work_id = ?,
			presentation_edition_id = ?,
			open_access = ?,
			superceded = ?,
			suppressed = ?,
			licenses_owned = ?,
			licenses_available = ?
		WHERE id = ?`,
		formatTime(p.UpdatedAt),
		p.RightsStatus,
		nullString(p.WorkID),
		nullString(p.PresentationEditionID),
		boolToInt(p.OpenAccess),
		boolToInt(p.Superceded),
		boolToInt(p.Suppressed),
		p.LicensesOwned,
		p.LicensesAvailable,
		p.ID,
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

// SetPoolWork moves a pool from one work to another with an optimistic
// concurrency check: the update only applies if the pool's work is still
// fromWorkID (empty meaning unclustered). Returns store.ErrConflict when
// another worker moved the pool first, so the caller can re-run the whole
// clustering operation for this pool.
func (s *Store) SetPoolWork(ctx context.Context, poolID, fromWorkID, toWorkID string) error {
	var result sql.Result
	var err error

	if fromWorkID == "" {
		result, err = s.db.ExecContext(ctx, `
			UPDATE license_pools SET work_id = ?, updated_at = ?
			WHERE id = ? AND work_id IS NULL`,
			nullString(toWorkID), formatTime(time.Now()), poolID)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE license_pools SET work_id = ?, updated_at = ?
			WHERE id = ? AND work_id = ?`,
			nullString(toWorkID), formatTime(time.Now()), poolID, fromWorkID)
	}
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the pool is gone or another worker moved it.
		if _, getErr := s.GetPool(ctx, poolID); getErr != nil {
			return getErr
		}
		return store.ErrConflict
	}
	return nil
}

// PoolsForWork returns every pool currently in a work.
func (s *Store) PoolsForWork(ctx context.Context, workID string) ([]*domain.LicensePool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+poolColumns+` FROM license_pools WHERE work_id = ? ORDER BY id ASC`, workID)
	if err != nil {
		return nil, fmt.Errorf("query pools for work: %w", err)
	}
	defer rows.Close()

	return collectPools(rows)
}

// OpenAccessPoolsByPWIDMedium returns every open-access pool whose
// presentation edition carries the given permanent work ID and medium.
// This is the candidate set for the canonical work of (pwid, medium).
func (s *Store) OpenAccessPoolsByPWIDMedium(ctx context.Context, pwid string, medium domain.Medium) ([]*domain.LicensePool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixColumns("p", poolColumns)+`
		FROM license_pools p
		JOIN editions e ON e.id = p.presentation_edition_id
		WHERE p.open_access = 1 AND e.permanent_work_id = ? AND e.medium = ?
		ORDER BY p.id ASC`,
		pwid, medium)
	if err != nil {
		return nil, fmt.Errorf("query open-access pools: %w", err)
	}
	defer rows.Close()

	return collectPools(rows)
}

// PoolsWithNoWork returns pools that could not be clustered, for the
// operator dashboard and for batch reclustering jobs. afterID is a keyset
// cursor; pass "" for the first page and the last returned ID thereafter.
func (s *Store) PoolsWithNoWork(ctx context.Context, afterID string, limit int) ([]*domain.LicensePool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+poolColumns+` FROM license_pools WHERE work_id IS NULL AND id > ? ORDER BY id ASC LIMIT ?`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query pools with no work: %w", err)
	}
	defer rows.Close()

	return collectPools(rows)
}

// CountPoolsWithNoWork returns how many pools are currently unclustered.
func (s *Store) CountPoolsWithNoWork(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM license_pools WHERE work_id IS NULL`).Scan(&n)
	return n, err
}

func collectPools(rows *sql.Rows) ([]*domain.LicensePool, error) {
	var pools []*domain.LicensePool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}
