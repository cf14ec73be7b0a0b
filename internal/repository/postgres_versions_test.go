package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/domain"
	"github.com/hla-matching-engine/internal/repository"
)

func setupVersionStore(t *testing.T) (*repository.PostgresVersionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := repository.NewPostgresVersionStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresVersionStore_NilDB(t *testing.T) {
	_, err := repository.NewPostgresVersionStore(nil)
	assert.Error(t, err)
}

func TestPostgresVersionStore_MarkReady(t *testing.T) {
	store, mock := setupVersionStore(t)

	mock.ExpectExec("INSERT INTO nomenclature_versions (.+) ON CONFLICT").
		WithArgs("3330", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkReady(context.Background(), "3330"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVersionStore_IsReady(t *testing.T) {
	tests := []struct {
		name     string
		rows     *sqlmock.Rows
		queryErr error
		want     bool
		wantErr  bool
	}{
		{
			name: "ready version",
			rows: sqlmock.NewRows([]string{"ready"}).AddRow(true),
			want: true,
		},
		{
			name: "unknown version",
			rows: sqlmock.NewRows([]string{"ready"}),
			want: false,
		},
		{
			name:     "query failure",
			queryErr: errors.New("connection reset"),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := setupVersionStore(t)
			q := mock.ExpectQuery("SELECT ready FROM nomenclature_versions WHERE version = ").WithArgs("3330")
			if tt.queryErr != nil {
				q.WillReturnError(tt.queryErr)
			} else {
				q.WillReturnRows(tt.rows)
			}

			got, err := store.IsReady(context.Background(), "3330")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresVersionStore_Activate(t *testing.T) {
	t.Run("ready version is swapped in", func(t *testing.T) {
		store, mock := setupVersionStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT ready FROM nomenclature_versions WHERE version = (.+) FOR UPDATE").
			WithArgs("3340").
			WillReturnRows(sqlmock.NewRows([]string{"ready"}).AddRow(true))
		mock.ExpectExec("UPDATE nomenclature_versions SET active = FALSE").
			WithArgs("3340").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE nomenclature_versions SET active = TRUE").
			WithArgs("3340", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.Activate(context.Background(), "3340"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version that was never generated", func(t *testing.T) {
		store, mock := setupVersionStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT ready FROM nomenclature_versions").
			WithArgs("3340").
			WillReturnRows(sqlmock.NewRows([]string{"ready"}))
		mock.ExpectRollback()

		err := store.Activate(context.Background(), "3340")
		assert.True(t, errors.Is(err, domain.ErrVersionNotReady))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version still generating", func(t *testing.T) {
		store, mock := setupVersionStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT ready FROM nomenclature_versions").
			WithArgs("3340").
			WillReturnRows(sqlmock.NewRows([]string{"ready"}).AddRow(false))
		mock.ExpectRollback()

		err := store.Activate(context.Background(), "3340")
		assert.True(t, errors.Is(err, domain.ErrVersionNotReady))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresVersionStore_ActiveVersion(t *testing.T) {
	store, mock := setupVersionStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT version FROM nomenclature_versions WHERE active").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	_, err := store.ActiveVersion(ctx)
	assert.True(t, errors.Is(err, domain.ErrNoActiveVersion))

	mock.ExpectQuery("SELECT version FROM nomenclature_versions WHERE active").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("3330"))
	active, err := store.ActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3330", active)

	mock.ExpectQuery("SELECT version FROM nomenclature_versions WHERE active").
		WillReturnError(sql.ErrConnDone)
	_, err = store.ActiveVersion(ctx)
	assert.True(t, errors.Is(err, sql.ErrConnDone))

	assert.NoError(t, mock.ExpectationsWereMet())
}
