package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/database"
	"github.com/medora/medora/pkg/tenancy"
)

const accountColumns = "id, email, phone, name, kind, is_verified, is_provider_verified, account_provider_id, role_id, profile_id, created_at, updated_at"

// memberColumn scopes member queries to one provider
const memberColumn = "account_provider_id"

// Store handles account persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new account store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner, extra ...interface{}) (*Account, error) {
	var a Account
	var phone sql.NullString
	var provider, role, profile uuid.NullUUID
	dest := []interface{}{
		&a.ID,
		&a.Email,
		&phone,
		&a.Name,
		&a.Kind,
		&a.Verified,
		&a.ProviderVerified,
		&provider,
		&role,
		&profile,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if phone.Valid {
		a.Phone = &phone.String
	}
	if provider.Valid {
		a.AccountProviderID = &provider.UUID
	}
	if role.Valid {
		a.RoleID = &role.UUID
	}
	if profile.Valid {
		a.ProfileID = &profile.UUID
	}
	return &a, nil
}

// CreateProvider inserts a root account together with the profile row of
// its kind. The account's profile_id points at the new profile.
func (s *Store) CreateProvider(ctx context.Context, acct NewAccount, displayName string) (*Account, error) {
	table, err := acct.Kind.ProfileTable()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}

	accountID := uuid.New()
	profileID := uuid.New()

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := insertAccount(ctx, tx, accountID, acct); err != nil {
			return err
		}
		// table comes from a fixed switch on Kind
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (id, account_id, display_name) VALUES ($1, $2, $3)",
			profileID, accountID, displayName,
		); err != nil {
			return fmt.Errorf("failed to create %s profile: %w", acct.Kind, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE accounts SET profile_id = $1 WHERE id = $2", profileID, accountID,
		); err != nil {
			return fmt.Errorf("failed to link profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(err)
	}

	return s.Get(ctx, accountID)
}

// CreateMember inserts an account under acct.ProviderID
func (s *Store) CreateMember(ctx context.Context, acct NewAccount) (*Account, error) {
	if acct.ProviderID == nil {
		return nil, errors.New("member account requires a provider")
	}

	accountID := uuid.New()
	if err := insertAccount(ctx, s.db, accountID, acct); err != nil {
		return nil, database.Classify(err)
	}
	return s.GetScoped(ctx, *acct.ProviderID, accountID)
}

func insertAccount(ctx context.Context, q database.Querier, id uuid.UUID, acct NewAccount) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (id, email, phone, name, password_hash, kind, is_provider_verified, account_provider_id, role_id, profile_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		id,
		acct.Email,
		acct.Phone,
		acct.Name,
		acct.PasswordHash,
		acct.Kind,
		acct.ProviderVerified,
		nullUUID(acct.ProviderID),
		nullUUID(acct.RoleID),
		nullUUID(acct.ProfileID),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Get returns an account by id regardless of tenant. It serves the
// caller's own record and must not back tenant-facing lookups.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenancy.NotFound("account", id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// Credentials returns the account with email and its password hash. The
// hash is empty for accounts that cannot log in with a password.
func (s *Store) Credentials(ctx context.Context, email string) (*Account, string, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+", password_hash FROM accounts WHERE lower(email) = lower($1)", email)

	var hash sql.NullString
	acct, err := scanAccount(row, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", tenancy.NotFound("account", email)
		}
		return nil, "", fmt.Errorf("failed to get account: %w", err)
	}
	return acct, hash.String, nil
}

// IdentityByID loads the token identity of an account
func (s *Store) IdentityByID(ctx context.Context, id uuid.UUID) (auth.Identity, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return auth.Identity{}, err
	}
	return acct.Identity(), nil
}

// GetScoped returns a member account of providerID
func (s *Store) GetScoped(ctx context.Context, providerID, id uuid.UUID) (*Account, error) {
	f := tenancy.NewFilterOn(memberColumn, providerID).Eq("id", id)
	row := s.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts "+f.Where(), f.Args()...)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenancy.NotFound("account", id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// ListByProvider returns one page of the member accounts of providerID
// and the total member count
func (s *Store) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Account, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE "+memberColumn+" = $1", providerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count accounts: %w", err)
	}

	f := tenancy.NewFilterOn(memberColumn, providerID)
	query := "SELECT " + accountColumns + " FROM accounts " + f.Where() + " ORDER BY created_at DESC, id " + f.Page(limit, offset)

	rows, err := s.db.QueryContext(ctx, query, f.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read accounts: %w", err)
	}
	return accounts, total, nil
}

// DeleteScoped removes a member account of providerID
func (s *Store) DeleteScoped(ctx context.Context, providerID, id uuid.UUID) error {
	f := tenancy.NewFilterOn(memberColumn, providerID).Eq("id", id)
	res, err := s.db.ExecContext(ctx, "DELETE FROM accounts "+f.Where(), f.Args()...)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return tenancy.ExpectAffected(res, "account", id)
}

// AssignRoleByEmail sets the role of the account with email. It is an
// operator path with no tenant scope and never reaches an HTTP route.
func (s *Store) AssignRoleByEmail(ctx context.Context, email string, roleID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET role_id = $1, updated_at = NOW() WHERE lower(email) = lower($2)",
		roleID, email)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return tenancy.ExpectAffected(res, "account", email)
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
