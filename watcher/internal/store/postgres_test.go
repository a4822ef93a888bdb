package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS statuswatch_observed_state")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	p, err := newPostgres(context.Background(), db)
	if err != nil {
		t.Fatalf("newPostgres() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return p, mock
}

func TestPostgres_LoadEmpty(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta(postgresLoad)).
		WithArgs(stateRowID).
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	got, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Uptime) != 0 || got.Timeline == nil {
		t.Errorf("Load() = %+v, want empty state", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestPostgres_SaveThenLoad(t *testing.T) {
	p, mock := newMockPostgres(t)
	body := mustEncode(t, sampleState())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO statuswatch_observed_state")).
		WithArgs(stateRowID, string(body), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(postgresLoad)).
		WithArgs(stateRowID).
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))

	ctx := context.Background()
	if err := p.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(mustEncode(t, got)) != string(body) {
		t.Errorf("Load() = %s, want %s", mustEncode(t, got), body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestPostgres_Errors(t *testing.T) {
	tests := []struct {
		name   string
		op     string
		expect func(sqlmock.Sqlmock)
		call   func(*Postgres) error
	}{
		{
			name: "save fails",
			op:   "save",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec("INSERT INTO").WillReturnError(errors.New("connection reset"))
			},
			call: func(p *Postgres) error { return p.Save(context.Background(), sampleState()) },
		},
		{
			name: "load fails",
			op:   "load",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT body").WillReturnError(errors.New("connection reset"))
			},
			call: func(p *Postgres) error { _, err := p.Load(context.Background()); return err },
		},
		{
			name: "load corrupt body",
			op:   "load",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT body").
					WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte("{")))
			},
			call: func(p *Postgres) error { _, err := p.Load(context.Background()); return err },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, mock := newMockPostgres(t)
			tc.expect(mock)

			err := tc.call(p)
			var ioe *IOError
			if !errors.As(err, &ioe) {
				t.Fatalf("error = %v, want *IOError", err)
			}
			if ioe.Backend != "postgres" || ioe.Op != tc.op {
				t.Errorf("IOError = %+v, want postgres %s", ioe, tc.op)
			}
		})
	}
}

func TestPostgres_MigrateFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	if _, err := newPostgres(context.Background(), db); err == nil {
		t.Fatal("newPostgres() should fail when the schema cannot be created")
	}
}

func TestPostgres_Close(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectClose()
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
