package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// Store handles account persistence. It also implements
// rbac.AccountDirectory, which is how the snapshot resolver maps external
// identities to accounts.
type Store struct {
	db *sql.DB
}

// NewStore creates a new account store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that open transactions
// spanning this store and the rbac store.
func (s *Store) DB() *sql.DB {
	return s.db
}

const accountColumns = "id, external_id, email, first_name, last_name, phone, avatar_key, status, last_login_at, created_at, updated_at"

func scanAccount(scanner interface{ Scan(dest ...interface{}) error }) (*Account, error) {
	var a Account
	var phone, avatarKey sql.NullString
	var lastLogin sql.NullTime
	err := scanner.Scan(&a.ID, &a.ExternalID, &a.Email, &a.FirstName, &a.LastName,
		&phone, &avatarKey, &a.Status, &lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Phone = phone.String
	a.AvatarKey = avatarKey.String
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	return &a, nil
}

// CreateParams are the fields for a new account row.
type CreateParams struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Phone      string
	Status     Status
}

// CreateAccount inserts an account. It runs against any Querier so the
// invitation flow can create the account and its first role assignment in
// one transaction.
func CreateAccount(ctx context.Context, q rbac.Querier, params CreateParams) (*Account, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO accounts (external_id, email, first_name, last_name, phone, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, params.ExternalID, params.Email, params.FirstName, params.LastName,
		nullable(params.Phone), string(params.Status)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return getAccount(ctx, q, "id", id)
}

func getAccount(ctx context.Context, q rbac.Querier, column string, value interface{}) (*Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+column+` = $1`, value)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account by %s: %w", column, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByID retrieves an account by id.
func (s *Store) GetByID(ctx context.Context, id int64) (*Account, error) {
	return getAccount(ctx, s.db, "id", id)
}

// GetByEmail retrieves an account by its normalized email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return getAccount(ctx, s.db, "email", email)
}

// GetByExternalID retrieves the account linked to an external identity.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*Account, error) {
	return getAccount(ctx, s.db, "external_id", externalID)
}

// AccountIDByExternalID implements rbac.AccountDirectory: it returns 0,
// not an error, when no account is linked to the identity.
func (s *Store) AccountIDByExternalID(ctx context.Context, externalID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM accounts WHERE external_id = $1`, externalID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up account: %w", err)
	}
	return id, nil
}

// List returns accounts ordered by id with limit/offset paging.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// ListByStatus returns accounts in the given lifecycle status.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE status = $1 ORDER BY id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by status: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// UpdateStatus writes the lifecycle status. Transition legality is checked
// by the caller; the store only persists.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account %d: %w", id, rbac.ErrNotFound)
	}
	return nil
}

// ActivateIfInvited moves an account from invitation_sent to active.
// Returns false when the account was in any other state, which the caller
// treats as "nothing to do", not an error.
func (s *Store) ActivateIfInvited(ctx context.Context, externalID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE external_id = $2 AND status = $3
	`, string(StatusActive), externalID, string(StatusInvitationSent))
	if err != nil {
		return false, fmt.Errorf("failed to activate account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return affected > 0, nil
}

// TouchLastLogin stamps the last successful sign-in time.
func (s *Store) TouchLastLogin(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET last_login_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE external_id = $1
	`, externalID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// SetAvatarKey records the blob store key of the account's avatar.
func (s *Store) SetAvatarKey(ctx context.Context, id int64, key string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET avatar_key = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, nullable(key), id)
	if err != nil {
		return fmt.Errorf("failed to set avatar key: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
