//go:build integration

package database_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medora/medora/pkg/apierr"
	"github.com/medora/medora/pkg/database"
	"github.com/medora/medora/pkg/database/dbtest"
)

func TestIntegration_AccountEmailUniqueIgnoresCase(t *testing.T) {
	db := dbtest.SetupPostgres(t)

	insert := "INSERT INTO accounts (id, email, kind) VALUES ($1, $2, 1)"
	_, err := db.Exec(insert, uuid.New(), "clinic@example.com")
	require.NoError(t, err)

	_, err = db.Exec(insert, uuid.New(), "Clinic@Example.COM")
	require.Error(t, err)
	assert.ErrorIs(t, database.Classify(err), apierr.ErrConflict)

	_, err = db.Exec(insert, uuid.New(), "other@example.com")
	assert.NoError(t, err)
}
