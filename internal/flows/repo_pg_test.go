package flows

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPGRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func sampleFlow() Flow {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFlow("flow-1", now, 30*time.Minute)
	return f
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newPGRepo(t)
	flow := sampleFlow()

	mock.ExpectExec("INSERT INTO flows").
		WithArgs(flow.ID, int64(1), "capture", sqlmock.AnyArg(), flow.ExpiresAt, flow.CreatedAt, flow.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), flow); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetDecodesJSONB(t *testing.T) {
	repo, mock := newPGRepo(t)
	flow := sampleFlow()
	flow.Stage = StageConfirm
	data, err := json.Marshal(flow)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	mock.ExpectQuery("SELECT version, data FROM flows").
		WithArgs(flow.ID).
		WillReturnRows(sqlmock.NewRows([]string{"version", "data"}).AddRow(int64(4), data))

	got, err := repo.Get(context.Background(), flow.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 4 {
		t.Fatalf("expected version from column, got %d", got.Version)
	}
	if got.Stage != StageConfirm {
		t.Fatalf("expected confirm stage, got %s", got.Stage)
	}
}

func TestPGRepoGetNotFound(t *testing.T) {
	repo, mock := newPGRepo(t)
	mock.ExpectQuery("SELECT version, data FROM flows").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"version", "data"}))

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoSaveBumpsVersion(t *testing.T) {
	repo, mock := newPGRepo(t)
	flow := sampleFlow()
	flow.Version = 2

	mock.ExpectExec("UPDATE flows").
		WithArgs(flow.ID, int64(2), "capture", sqlmock.AnyArg(), flow.ExpiresAt, flow.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved, err := repo.Save(context.Background(), flow)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Version != 3 {
		t.Fatalf("expected version 3, got %d", saved.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSaveConflict(t *testing.T) {
	repo, mock := newPGRepo(t)
	flow := sampleFlow()
	flow.Version = 2
	data, _ := json.Marshal(flow)

	mock.ExpectExec("UPDATE flows").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, data FROM flows").
		WithArgs(flow.ID).
		WillReturnRows(sqlmock.NewRows([]string{"version", "data"}).AddRow(int64(3), data))

	if _, err := repo.Save(context.Background(), flow); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPGRepoDeleteNotFound(t *testing.T) {
	repo, mock := newPGRepo(t)
	mock.ExpectExec("DELETE FROM flows").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoDeleteExpiredReturnsRows(t *testing.T) {
	repo, mock := newPGRepo(t)
	now := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	a := sampleFlow()
	b := sampleFlow()
	b.ID = "flow-2"
	da, _ := json.Marshal(a)
	db, _ := json.Marshal(b)

	mock.ExpectQuery("DELETE FROM flows WHERE expires_at").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"version", "data"}).
			AddRow(int64(1), da).
			AddRow(int64(5), db))

	got, err := repo.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if len(got) != 2 || got[1].ID != "flow-2" || got[1].Version != 5 {
		t.Fatalf("unexpected expired flows: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
