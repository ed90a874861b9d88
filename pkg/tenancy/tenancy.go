package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
)

// ProviderColumn is the owning-provider column of provider-owned tables
const ProviderColumn = "provider_id"

// Scope is the tenant binding of the current caller
type Scope struct {
	ProviderID uuid.UUID
	AccountID  uuid.UUID
}

// FromContext returns the caller's scope. Anonymous callers have none.
func FromContext(ctx context.Context) (Scope, error) {
	authCtx, ok := auth.FromContext(ctx)
	if !ok {
		return Scope{}, apierr.ErrUnauthenticated
	}
	return Scope{ProviderID: authCtx.ProviderID, AccountID: authCtx.AccountID}, nil
}

// Filter builds a WHERE clause that always starts with the provider
// equality. Column names are trusted identifiers from code; values are
// always bound as placeholders.
type Filter struct {
	clauses []string
	args    []interface{}
}

// NewFilter starts a filter on provider_id
func NewFilter(providerID uuid.UUID) *Filter {
	return NewFilterOn(ProviderColumn, providerID)
}

// NewFilterOn starts a filter on a qualified provider column such as
// "a.provider_id"
func NewFilterOn(column string, providerID uuid.UUID) *Filter {
	f := &Filter{}
	return f.Eq(column, providerID)
}

// Eq adds "column = value"
func (f *Filter) Eq(column string, value interface{}) *Filter {
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, fmt.Sprintf("%s = $%d", column, len(f.args)))
	return f
}

// Where renders the clause including the WHERE keyword
func (f *Filter) Where() string {
	return "WHERE " + strings.Join(f.clauses, " AND ")
}

// Page appends LIMIT and OFFSET placeholders and returns them rendered
func (f *Filter) Page(limit, offset int) string {
	f.args = append(f.args, limit, offset)
	n := len(f.args)
	return fmt.Sprintf("LIMIT $%d OFFSET $%d", n-1, n)
}

// Args returns the bound values in placeholder order
func (f *Filter) Args() []interface{} {
	return f.args
}

// Next returns the next free placeholder number
func (f *Filter) Next() int {
	return len(f.args) + 1
}

// ExpectAffected turns a zero-row update or delete into ErrNotFound
func ExpectAffected(res sql.Result, resource string, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return NotFound(resource, id)
	}
	return nil
}

// NotFoundIfNoRows maps sql.ErrNoRows to ErrNotFound and passes other
// errors through
func NotFoundIfNoRows(err error, resource string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(resource, id)
	}
	return err
}

// NotFound builds the error returned for absent and foreign rows alike
func NotFound(resource string, id interface{}) error {
	return fmt.Errorf("%w: %s %v", apierr.ErrNotFound, resource, id)
}
