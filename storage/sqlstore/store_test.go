package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Tsukikage7/questline/database"
	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/saga"
)

type StoreTestSuite struct {
	suite.Suite
	db    *database.Database
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	db, err := database.NewDatabase(&database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(s.T().TempDir(), "saga.db"),
	}, logger.NewNop())
	s.Require().NoError(err)
	s.db = db

	s.store, err = New(db)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TearDownTest() {
	s.NoError(s.db.Close())
}

func record(id string, status saga.Status, startedAt time.Time) *saga.Record {
	return &saga.Record{
		ID:        id,
		Type:      "MISSION_COMPLETION",
		Status:    status,
		StartedAt: startedAt,
		UpdatedAt: startedAt,
		Steps: []saga.StepRecord{
			{Name: "mark-mission-completed", Success: true},
			{Name: "grant-reward", Success: false, Message: "余额服务不可用", Error: "timeout"},
		},
		Log: []saga.LogRecord{
			{Kind: saga.StepStarted, Step: "grant-reward", Attempt: 1, Timestamp: startedAt},
		},
	}
}

func (s *StoreTestSuite) TestNew_NilDatabase() {
	_, err := New(nil)
	s.ErrorIs(err, ErrNilDatabase)
}

func (s *StoreTestSuite) TestSaveGet() {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Save(s.ctx, record("s1", saga.StatusProcessing, started)))

	got, err := s.store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(saga.StatusProcessing, got.Status)
	s.True(started.Equal(got.StartedAt))
	s.Nil(got.CompletedAt)
	s.Require().Len(got.Steps, 2)
	s.Equal("余额服务不可用", got.Steps[1].Message)
	s.Require().Len(got.Log, 1)
	s.Equal(saga.StepStarted, got.Log[0].Kind)

	_, err = s.store.Get(s.ctx, "missing")
	s.ErrorIs(err, saga.ErrSagaNotFound)
}

func (s *StoreTestSuite) TestSaveOverwrites() {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := record("s1", saga.StatusProcessing, started)
	s.Require().NoError(s.store.Save(s.ctx, rec))

	done := started.Add(time.Second)
	rec.Status = saga.StatusCompensated
	rec.FailureReason = "余额服务不可用"
	rec.CompletedAt = &done
	s.Require().NoError(s.store.Save(s.ctx, rec))

	got, err := s.store.Get(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(saga.StatusCompensated, got.Status)
	s.Equal("余额服务不可用", got.FailureReason)
	s.Require().NotNil(got.CompletedAt)
	s.True(done.Equal(*got.CompletedAt))
}

func (s *StoreTestSuite) TestListAndDelete() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Save(s.ctx, record(id, saga.StatusFailed, base.Add(time.Duration(i)*time.Minute))))
	}
	s.Require().NoError(s.store.Save(s.ctx, record("other", saga.StatusCompleted, base)))

	failed, err := s.store.List(s.ctx, saga.StatusFailed, 0)
	s.Require().NoError(err)
	s.Require().Len(failed, 3)
	s.Equal("c", failed[0].ID)
	s.Equal("a", failed[2].ID)

	limited, err := s.store.List(s.ctx, saga.StatusFailed, 1)
	s.Require().NoError(err)
	s.Require().Len(limited, 1)
	s.Equal("c", limited[0].ID)

	s.Require().NoError(s.store.Delete(s.ctx, "c"))
	failed, err = s.store.List(s.ctx, saga.StatusFailed, 0)
	s.Require().NoError(err)
	s.Len(failed, 2)
}

func (s *StoreTestSuite) TestPurge() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old := record("old", saga.StatusCompleted, base)
	oldDone := base.Add(time.Second)
	old.CompletedAt = &oldDone

	recent := record("recent", saga.StatusCompensated, base)
	recentDone := base.Add(48 * time.Hour)
	recent.CompletedAt = &recentDone

	running := record("running", saga.StatusProcessing, base)

	for _, rec := range []*saga.Record{old, recent, running} {
		s.Require().NoError(s.store.Save(s.ctx, rec))
	}

	n, err := s.store.Purge(s.ctx, base.Add(24*time.Hour))
	s.Require().NoError(err)
	s.EqualValues(1, n)

	_, err = s.store.Get(s.ctx, "old")
	s.ErrorIs(err, saga.ErrSagaNotFound)
	_, err = s.store.Get(s.ctx, "recent")
	s.NoError(err)
	_, err = s.store.Get(s.ctx, "running")
	s.NoError(err)
}
