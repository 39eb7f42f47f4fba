package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/crestvale/identity/internal/identity/domain"
)

type mfaFactorsRepo struct {
	db querier
}

const factorColumns = `id, user_id, backing_id, type, friendly_name, active,
	enrolled_at, last_used_at`

func scanFactor(row interface{ Scan(dest ...any) error }) (domain.MFAFactor, error) {
	var (
		f          domain.MFAFactor
		lastUsedAt sql.NullTime
	)

	err := row.Scan(
		&f.ID, &f.UserID, &f.BackingID, &f.Type, &f.FriendlyName,
		&f.Active, &f.EnrolledAt, &lastUsedAt,
	)
	if err != nil {
		return domain.MFAFactor{}, err
	}

	f.LastUsedAt = mapNullTimePtr(lastUsedAt)
	return f, nil
}

func (r *mfaFactorsRepo) GetByID(ctx context.Context, id string) (domain.MFAFactor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE id = ?`, id)

	f, err := scanFactor(row)
	if err != nil {
		return domain.MFAFactor{}, mapNotFound(err)
	}
	return f, nil
}

func (r *mfaFactorsRepo) GetByBackingID(ctx context.Context, backingID string) (domain.MFAFactor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE backing_id = ?`, backingID)

	f, err := scanFactor(row)
	if err != nil {
		return domain.MFAFactor{}, mapNotFound(err)
	}
	return f, nil
}

func (r *mfaFactorsRepo) FindActiveByUser(ctx context.Context, userID string) (domain.MFAFactor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE user_id = ? AND active = 1`, userID)

	f, err := scanFactor(row)
	if err != nil {
		return domain.MFAFactor{}, mapNotFound(err)
	}
	return f, nil
}

func (r *mfaFactorsRepo) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]domain.MFAFactor, error) {
	query := `SELECT ` + factorColumns + ` FROM mfa_factors WHERE user_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY enrolled_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []domain.MFAFactor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

func (r *mfaFactorsRepo) Upsert(ctx context.Context, f domain.MFAFactor) error {
	enrolledAt := f.EnrolledAt
	if enrolledAt.IsZero() {
		enrolledAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mfa_factors (
			id, user_id, backing_id, type, friendly_name, active,
			enrolled_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (backing_id) DO UPDATE SET
			friendly_name = excluded.friendly_name,
			active = excluded.active`,
		f.ID, f.UserID, f.BackingID, f.Type, f.FriendlyName, f.Active,
		enrolledAt, mapOptionalTime(f.LastUsedAt),
	)
	return mapConstraint(err)
}

func (r *mfaFactorsRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mfa_factors WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

func (r *mfaFactorsRepo) TouchLastUsed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE mfa_factors SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
