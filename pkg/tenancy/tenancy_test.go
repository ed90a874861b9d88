package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
)

func TestFromContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, apierr.ErrUnauthenticated)

	id := auth.Identity{AccountID: uuid.New(), ProviderID: uuid.New(), Kind: auth.KindCompany}
	ctx := auth.WithContext(context.Background(), auth.NewContext(id, nil))

	scope, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.ProviderID, scope.ProviderID)
	assert.Equal(t, id.AccountID, scope.AccountID)
}

func TestFilter(t *testing.T) {
	provider := uuid.New()
	row := uuid.New()

	f := NewFilter(provider).Eq("id", row)
	assert.Equal(t, "WHERE provider_id = $1 AND id = $2", f.Where())
	assert.Equal(t, []interface{}{provider, row}, f.Args())
	assert.Equal(t, 3, f.Next())

	page := f.Page(20, 40)
	assert.Equal(t, "LIMIT $3 OFFSET $4", page)
	assert.Equal(t, []interface{}{provider, row, 20, 40}, f.Args())
}

func TestNewFilterOn(t *testing.T) {
	provider := uuid.New()
	f := NewFilterOn("a.provider_id", provider)
	assert.Equal(t, "WHERE a.provider_id = $1", f.Where())
}

func TestExpectAffected(t *testing.T) {
	id := uuid.New()

	assert.NoError(t, ExpectAffected(sqlmock.NewResult(0, 1), "product", id))

	err := ExpectAffected(sqlmock.NewResult(0, 0), "product", id)
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, apierr.Status(err))
	assert.Contains(t, err.Error(), id.String())

	err = ExpectAffected(sqlmock.NewErrorResult(errors.New("driver")), "product", id)
	assert.Equal(t, http.StatusInternalServerError, apierr.Status(err))
}

func TestNotFoundIfNoRows(t *testing.T) {
	err := NotFoundIfNoRows(sql.ErrNoRows, "role", "r1")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
	assert.Equal(t, "not found: role r1", err.Error())

	other := errors.New("connection reset")
	assert.Same(t, other, NotFoundIfNoRows(other, "role", "r1"))
	assert.Nil(t, NotFoundIfNoRows(nil, "role", "r1"))
}
