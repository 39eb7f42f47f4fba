package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/crestvale/identity/internal/identity/domain"
)

type usersRepo struct {
	db querier
}

const userColumns = `id, email, display_name, role, active, federated_subject,
	backing_account_id, mfa_factor_id, wallet_address, terms_accepted_at,
	last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var (
		u                domain.User
		federatedSubject sql.NullString
		backingAccountID sql.NullString
		mfaFactorID      sql.NullString
		walletAddress    sql.NullString
		termsAcceptedAt  sql.NullTime
		lastLoginAt      sql.NullTime
	)

	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Active,
		&federatedSubject, &backingAccountID, &mfaFactorID, &walletAddress,
		&termsAcceptedAt, &lastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.FederatedSubject = mapNullStringPtr(federatedSubject)
	u.BackingAccountID = mapNullStringPtr(backingAccountID)
	u.MFAFactorID = mapNullStringPtr(mfaFactorID)
	u.WalletAddress = mapNullStringPtr(walletAddress)
	u.TermsAcceptedAt = mapNullTimePtr(termsAcceptedAt)
	u.LastLoginAt = mapNullTimePtr(lastLoginAt)
	return u, nil
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	// email column is COLLATE NOCASE, so equality is case-insensitive.
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetByFederatedSubject(ctx context.Context, subject string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE federated_subject = ?`, subject)

	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, display_name, role, active, federated_subject,
			backing_account_id, mfa_factor_id, wallet_address,
			terms_accepted_at, last_login_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.Role, u.Active,
		mapOptionalString(u.FederatedSubject),
		mapOptionalString(u.BackingAccountID),
		mapOptionalString(u.MFAFactorID),
		mapOptionalString(u.WalletAddress),
		mapOptionalTime(u.TermsAcceptedAt),
		mapOptionalTime(u.LastLoginAt),
		now, now,
	)
	return mapConstraint(err)
}

func (r *usersRepo) SetMFAFactorID(ctx context.Context, userID string, factorID *string) error {
	return r.exec(ctx,
		`UPDATE users SET mfa_factor_id = ?, updated_at = ? WHERE id = ?`,
		mapOptionalString(factorID), time.Now().UTC(), userID)
}

func (r *usersRepo) SetWalletAddress(ctx context.Context, userID string, address string) error {
	return r.exec(ctx,
		`UPDATE users SET wallet_address = ?, updated_at = ? WHERE id = ?`,
		address, time.Now().UTC(), userID)
}

func (r *usersRepo) SetBackingAccountID(ctx context.Context, userID string, accountID string) error {
	return r.exec(ctx,
		`UPDATE users SET backing_account_id = ?, updated_at = ? WHERE id = ?`,
		accountID, time.Now().UTC(), userID)
}

func (r *usersRepo) TouchLastLogin(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	return r.exec(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		now, now, userID)
}

// exec runs an update that must match exactly one row.
func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapConstraint(err)
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
