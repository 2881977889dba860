package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/hedgemesh/internal/persistence"
)

func newMockJobRepo(t *testing.T) (*jobRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	return &jobRepo{db: sqlxDB, timeout: time.Second}, mock
}

func TestJobRepo_Insert_ReturnsGeneratedID(t *testing.T) {
	repo, mock := newMockJobRepo(t)

	rows := sqlmock.NewRows([]string{"id"}).AddRow(int64(7))
	mock.ExpectQuery(`INSERT INTO job_records`).WillReturnRows(rows)

	record := persistence.JobRecord{
		JobID: "job-1", Strategy: "wash", Symbol: "BTC-PERP",
		Venues: []string{"alpha", "beta"}, Notional: 1000,
		FinalState: "completed", SubmittedAt: time.Now(), FinishedAt: time.Now(),
	}
	err := repo.Insert(context.Background(), record)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_Insert_WrapsDuplicateError(t *testing.T) {
	repo, mock := newMockJobRepo(t)

	mock.ExpectQuery(`INSERT INTO job_records`).WillReturnError(&pq.Error{Code: "23505"})

	record := persistence.JobRecord{JobID: "job-1", Symbol: "BTC-PERP"}
	err := repo.Insert(context.Background(), record)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate job record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_InsertBatch_EmptyIsNoOp(t *testing.T) {
	repo, mock := newMockJobRepo(t)
	err := repo.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_InsertBatch_CommitsOnSuccess(t *testing.T) {
	repo, mock := newMockJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO job_records`)
	mock.ExpectExec(`INSERT INTO job_records`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO job_records`).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	records := []persistence.JobRecord{
		{JobID: "job-1", Symbol: "BTC-PERP"},
		{JobID: "job-2", Symbol: "ETH-PERP"},
	}
	err := repo.InsertBatch(context.Background(), records)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_InsertBatch_RollsBackOnExecError(t *testing.T) {
	repo, mock := newMockJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO job_records`)
	mock.ExpectExec(`INSERT INTO job_records`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	records := []persistence.JobRecord{{JobID: "job-1", Symbol: "BTC-PERP"}}
	err := repo.InsertBatch(context.Background(), records)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepo_RecentForSymbol_ScansVenuesFromJSON(t *testing.T) {
	repo, mock := newMockJobRepo(t)

	rows := sqlmock.NewRows([]string{
		"id", "job_id", "strategy", "symbol", "venues", "notional",
		"final_state", "reason", "pnl", "submitted_at", "finished_at", "attributes",
	}).AddRow(
		int64(1), "job-1", "wash", "BTC-PERP", []byte(`["alpha","beta"]`), 1000.0,
		"completed", "", 12.5, time.Now(), time.Now(), []byte(`{}`),
	)
	mock.ExpectQuery(`SELECT (.+) FROM job_records WHERE symbol`).WillReturnRows(rows)

	out, err := repo.RecentForSymbol(context.Background(), "BTC-PERP", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"alpha", "beta"}, out[0].Venues)
	assert.NoError(t, mock.ExpectationsWereMet())
}
