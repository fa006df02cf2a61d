package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresBackendFromDB(db), mock
}

func TestPostgresBackendGetDocument(t *testing.T) {
	pg, mock := newMockPostgres(t)
	rows := sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"keys":[]}`))
	mock.ExpectQuery(`SELECT data FROM documents WHERE doc_key = \$1`).
		WithArgs("api_keys").
		WillReturnRows(rows)

	got, err := pg.GetDocument(context.Background(), "api_keys")
	require.NoError(t, err)
	require.JSONEq(t, `{"keys":[]}`, string(got))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendGetDocumentNotFound(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT data FROM documents`).
		WithArgs("gf_session").
		WillReturnError(sql.ErrNoRows)

	_, err := pg.GetDocument(context.Background(), "gf_session")
	require.True(t, IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendPutDocumentUpserts(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO documents .* ON CONFLICT \(doc_key\)`).
		WithArgs("api_keys", `{"keys":[]}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pg.PutDocument(context.Background(), "api_keys", []byte(`{"keys":[]}`)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendDeleteDocument(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectExec(`DELETE FROM documents WHERE doc_key = \$1`).
		WithArgs("api_keys").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pg.DeleteDocument(context.Background(), "api_keys"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendInitializeSkipsMigrationsForInjectedDB(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing()

	pg := NewPostgresBackendFromDB(db)
	require.NoError(t, pg.Initialize(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
