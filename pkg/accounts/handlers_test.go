package accounts

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/middleware"
	"github.com/medora/medora/pkg/rbac"
)

type stubRoles struct {
	owner      uuid.UUID
	assignable map[uuid.UUID]bool
	requested  []string
}

func (s *stubRoles) SystemRoleID(ctx context.Context, key string) (uuid.UUID, error) {
	s.requested = append(s.requested, key)
	return s.owner, nil
}

func (s *stubRoles) RoleAssignable(ctx context.Context, providerID, roleID uuid.UUID) error {
	if !s.assignable[roleID] {
		return fmt.Errorf("%w: role %s is not available", apierr.ErrBadRequest, roleID)
	}
	return nil
}

type fixture struct {
	router *mux.Router
	mock   sqlmock.Sqlmock
	roles  *stubRoles
	tokens *auth.TokenManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, mock := newMockStore(t)
	tokens, err := auth.NewTokenManager("test-secret", "medora", time.Hour)
	require.NoError(t, err)

	roles := &stubRoles{owner: uuid.New(), assignable: map[uuid.UUID]bool{}}
	router := mux.NewRouter()
	NewHandlers(store, roles, tokens, nil).RegisterRoutes(router, middleware.NewGate(nil, nil))
	return &fixture{router: router, mock: mock, roles: roles, tokens: tokens}
}

func (f *fixture) do(method, target string, body interface{}, caller *auth.Context) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if caller != nil {
		req = req.WithContext(auth.WithContext(req.Context(), caller))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Message
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	id := uuid.New()
	profile := uuid.New()

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO accounts").
		WithArgs(sqlmock.AnyArg(), "owner@clinic.test", nil, "Dr Who", sqlmock.AnyArg(), auth.KindDoctor, true, nil, f.roles.owner, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO doctors").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("UPDATE accounts SET profile_id").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.mock.ExpectQuery("FROM accounts WHERE id = \\$1").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountRow(Account{
			ID: id, Email: "owner@clinic.test", Name: "Dr Who", Kind: auth.KindDoctor,
			ProviderVerified: true, RoleID: &f.roles.owner, ProfileID: &profile, CreatedAt: now, UpdatedAt: now,
		})...))

	w := f.do(http.MethodPost, "/auth/register", RegisterRequest{
		Email:    "owner@clinic.test",
		Password: "long-enough",
		Name:     "Dr Who",
		Kind:     auth.KindDoctor,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")
	assert.Equal(t, []string{rbac.RoleOwner}, f.roles.requested)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/auth/register", map[string]interface{}{
		"email": "not-an-email", "password": "long-enough", "kind": 2,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(http.MethodPost, "/auth/register", map[string]interface{}{
		"email": "a@b.c", "password": "long-enough", "kind": 7,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	hash, err := HashPassword("long-enough")
	require.NoError(t, err)

	now := time.Now()
	provider := uuid.New()
	role := uuid.New()
	id := uuid.New()
	cols := append(append([]string{}, accountCols...), "password_hash")
	row := append(accountRow(Account{
		ID: id, Email: "staff@p.test", Kind: auth.KindPharmacy,
		AccountProviderID: &provider, RoleID: &role, CreatedAt: now, UpdatedAt: now,
	}), hash)

	t.Run("issues a token", func(t *testing.T) {
		f.mock.ExpectQuery("FROM accounts WHERE lower").
			WithArgs("staff@p.test").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(row...))

		w := f.do(http.MethodPost, "/auth/login", LoginRequest{Email: "staff@p.test", Password: "long-enough"}, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body struct {
			Data LoginResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		ident, err := f.tokens.Parse(body.Data.Token)
		require.NoError(t, err)
		assert.Equal(t, id, ident.AccountID)
		assert.Equal(t, provider, ident.ProviderID)
		assert.Equal(t, role, *ident.RoleID)
	})

	t.Run("uniform failure message", func(t *testing.T) {
		f.mock.ExpectQuery("FROM accounts WHERE lower").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(row...))
		wrong := f.do(http.MethodPost, "/auth/login", LoginRequest{Email: "staff@p.test", Password: "nope"}, nil)

		f.mock.ExpectQuery("FROM accounts WHERE lower").WillReturnError(sql.ErrNoRows)
		unknown := f.do(http.MethodPost, "/auth/login", LoginRequest{Email: "ghost@p.test", Password: "nope"}, nil)

		assert.Equal(t, http.StatusUnauthorized, wrong.Code)
		assert.Equal(t, http.StatusUnauthorized, unknown.Code)
		assert.Equal(t, messageOf(t, wrong), messageOf(t, unknown))
	})

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	caller := auth.NewContext(auth.Identity{AccountID: uuid.New(), ProviderID: uuid.New(), Kind: auth.KindCompany},
		[]string{auth.PermProductRead, auth.PermArticleRead})
	w = f.do(http.MethodGet, "/auth/me", nil, caller)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			ID          uuid.UUID `json:"id"`
			Permissions []string  `json:"permissions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, caller.AccountID, body.Data.ID)
	assert.Equal(t, []string{auth.PermArticleRead, auth.PermProductRead}, body.Data.Permissions)
}

func TestCreateAccount(t *testing.T) {
	provider := uuid.New()
	profile := uuid.New()
	caller := auth.NewContext(auth.Identity{
		AccountID: provider, ProviderID: provider, Kind: auth.KindPharmacy, ProfileID: &profile,
	}, []string{auth.PermAccountCreate})

	t.Run("foreign role is rejected", func(t *testing.T) {
		f := newFixture(t)
		w := f.do(http.MethodPost, "/accounts", CreateMemberRequest{
			Email: "m@p.test", Password: "long-enough", RoleID: uuid.New(),
		}, caller)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("member joins the caller's provider", func(t *testing.T) {
		f := newFixture(t)
		role := uuid.New()
		f.roles.assignable[role] = true
		now := time.Now()

		f.mock.ExpectExec("INSERT INTO accounts").
			WithArgs(sqlmock.AnyArg(), "m@p.test", nil, "", sqlmock.AnyArg(), auth.KindPharmacy, true, provider, role, profile).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.mock.ExpectQuery("FROM accounts WHERE account_provider_id = \\$1 AND id = \\$2").
			WithArgs(provider, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountRow(Account{
				ID: uuid.New(), Email: "m@p.test", Kind: auth.KindPharmacy, ProviderVerified: true,
				AccountProviderID: &provider, RoleID: &role, ProfileID: &profile, CreatedAt: now, UpdatedAt: now,
			})...))

		// provider fields in the body are ignored
		w := f.do(http.MethodPost, "/accounts", map[string]interface{}{
			"email": "m@p.test", "password": "long-enough", "role_id": role.String(),
			"account_provider_id": uuid.NewString(),
		}, caller)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("missing permission", func(t *testing.T) {
		f := newFixture(t)
		reader := auth.NewContext(caller.Identity, []string{auth.PermAccountRead})
		w := f.do(http.MethodPost, "/accounts", CreateMemberRequest{Email: "m@p.test", Password: "long-enough", RoleID: uuid.New()}, reader)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestGetAccount_ForeignTenant(t *testing.T) {
	f := newFixture(t)
	caller := auth.NewContext(auth.Identity{AccountID: uuid.New(), ProviderID: uuid.New()}, []string{auth.PermAccountRead})
	id := uuid.New()

	f.mock.ExpectQuery("FROM accounts WHERE account_provider_id = \\$1 AND id = \\$2").
		WithArgs(caller.ProviderID, id).
		WillReturnError(sql.ErrNoRows)

	w := f.do(http.MethodGet, "/accounts/"+id.String(), nil, caller)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListAccounts_Pagination(t *testing.T) {
	f := newFixture(t)
	caller := auth.NewContext(auth.Identity{AccountID: uuid.New(), ProviderID: uuid.New()}, []string{auth.PermAccountRead})

	f.mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(45))
	f.mock.ExpectQuery("LIMIT \\$2 OFFSET \\$3").
		WithArgs(caller.ProviderID, 20, 40).
		WillReturnRows(sqlmock.NewRows(accountCols))

	w := f.do(http.MethodGet, "/accounts?page=3", nil, caller)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data       []Account `json:"data"`
		Pagination struct {
			CurrentPage int `json:"currentPage"`
			TotalPages  int `json:"totalPages"`
			ResultCount int `json:"resultCount"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Pagination.CurrentPage)
	assert.Equal(t, 3, body.Pagination.TotalPages)
	assert.Equal(t, 45, body.Pagination.ResultCount)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	caller := auth.NewContext(auth.Identity{AccountID: uuid.New(), ProviderID: uuid.New()}, []string{auth.PermAccountDelete})
	id := uuid.New()

	f.mock.ExpectExec("DELETE FROM accounts").
		WithArgs(caller.ProviderID, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.do(http.MethodDelete, "/accounts/"+id.String(), nil, caller)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
