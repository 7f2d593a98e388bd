package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/groupkeeper/groupkeeper/internal/db/repositories"
	"github.com/groupkeeper/groupkeeper/internal/graph"
)

func newGraphForJob(t *testing.T) (*graph.Graph, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := repositories.NewGraphRepository(sqlxDB)
	return graph.New(repo, testLogger()), mock
}

func TestNewGraphRefreshJob_DefaultInterval(t *testing.T) {
	j := NewGraphRefreshJob(nil, 0, testLogger())
	if j.interval != 10*time.Second {
		t.Errorf("interval = %v, want 10s", j.interval)
	}
}

func TestNewGraphRefreshJob_CustomInterval(t *testing.T) {
	j := NewGraphRefreshJob(nil, time.Minute, testLogger())
	if j.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", j.interval)
	}
}

func TestGraphRefreshJob_StopExitsLoop(t *testing.T) {
	g, _ := newGraphForJob(t)
	j := NewGraphRefreshJob(g, time.Hour, testLogger())

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	j.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Start did not return after Stop")
	}
}

func TestGraphRefreshJob_ContextCancelExitsLoop(t *testing.T) {
	g, _ := newGraphForJob(t)
	j := NewGraphRefreshJob(g, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Start did not return after context cancellation")
	}
}

func TestGraphRefreshJob_TickerTriggersRefresh(t *testing.T) {
	g, mock := newGraphForJob(t)

	// The checkpoint read fails; the loop must log and keep running rather
	// than exit.
	mock.ExpectQuery("SELECT count, last_modified FROM counters").
		WillReturnError(errors.New("db error"))

	j := NewGraphRefreshJob(g, 20*time.Millisecond, testLogger())

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	time.Sleep(80 * time.Millisecond)
	j.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected at least one checkpoint query: %v", err)
	}
}
