package users

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests use sqlmock to exercise the driver-failure paths the sqlite
// fixtures cannot reach.

func TestListPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM accounts ORDER BY id").
		WillReturnError(errors.New("connection reset"))

	_, err = NewStore(db).List(context.Background(), 50, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list accounts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusPropagatesExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE accounts SET status").
		WillReturnError(errors.New("read-only transaction"))

	err = NewStore(db).UpdateStatus(context.Background(), 1, StatusBlocked)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update status")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountIDByExternalIDPropagatesError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM accounts WHERE external_id").
		WillReturnError(errors.New("too many connections"))

	_, err = NewStore(db).AccountIDByExternalID(context.Background(), "ext-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to look up account")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateIfInvitedPropagatesRowsAffectedError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE accounts SET status").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver quirk")))

	_, err = NewStore(db).ActivateIfInvited(context.Background(), "ext-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read update result")
	assert.NoError(t, mock.ExpectationsWereMet())
}
