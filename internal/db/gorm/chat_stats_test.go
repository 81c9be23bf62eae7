package gorm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm/logger"

	"github.com/thebtf/wallroll/internal/dialog"
	"github.com/thebtf/wallroll/internal/session"
	"github.com/thebtf/wallroll/pkg/models"
)

// ChatStatStoreSuite is a test suite for ChatStatStore operations.
type ChatStatStoreSuite struct {
	suite.Suite
	tmpDir string
	store  *Store
	stats  *ChatStatStore
	ctx    context.Context
}

func (s *ChatStatStoreSuite) SetupTest() {
	tmpDir, err := os.MkdirTemp("", "chat_stats_test_*")
	s.Require().NoError(err)
	s.tmpDir = tmpDir

	store, err := NewStore(Config{
		Path:     filepath.Join(tmpDir, "stats.db"),
		LogLevel: logger.Silent,
	})
	s.Require().NoError(err)
	s.store = store
	s.stats = NewChatStatStore(store)
	s.ctx = context.Background()
}

func (s *ChatStatStoreSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
	os.RemoveAll(s.tmpDir)
}

func TestChatStatStoreSuite(t *testing.T) {
	suite.Run(t, new(ChatStatStoreSuite))
}

// TestGetChatMissing tests that unknown chats return nil.
func (s *ChatStatStoreSuite) TestGetChatMissing() {
	row, err := s.stats.GetChat(s.ctx, "nobody")
	s.NoError(err)
	s.Nil(row)
}

// TestRecordAccumulates tests that repeated records add up in one row.
func (s *ChatStatStoreSuite) TestRecordAccumulates() {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s.NoError(s.stats.Record(s.ctx, "chat-1", Delta{Messages: 1, SessionsStarted: 1}, t0))
	s.NoError(s.stats.Record(s.ctx, "chat-1", Delta{Messages: 1, InputRejections: 1}, t0.Add(time.Minute)))
	s.NoError(s.stats.Record(s.ctx, "chat-1", Delta{Messages: 1, CalculationsCompleted: 1, RollsRecommended: 11}, t0.Add(2*time.Minute)))

	row, err := s.stats.GetChat(s.ctx, "chat-1")
	s.NoError(err)
	s.Require().NotNil(row)
	s.Equal(int64(3), row.Messages)
	s.Equal(int64(1), row.SessionsStarted)
	s.Equal(int64(1), row.InputRejections)
	s.Equal(int64(1), row.CalculationsCompleted)
	s.Equal(int64(11), row.RollsRecommended)
	s.Equal(t0.UnixMilli(), row.FirstSeenEpoch)
	s.Equal(t0.Add(2*time.Minute).UnixMilli(), row.LastSeenEpoch)

	var count int64
	s.NoError(s.store.DB.Model(&ChatStat{}).Count(&count).Error)
	s.Equal(int64(1), count)
}

// TestObserve tests recording through the session observer hook.
func (s *ChatStatStoreSuite) TestObserve() {
	at := time.Now()
	s.stats.Observe(s.ctx, session.Event{Chat: "a", Outcome: dialog.OutcomeStarted, At: at})
	s.stats.Observe(s.ctx, session.Event{Chat: "a", Outcome: dialog.OutcomeGeometry, At: at})
	s.stats.Observe(s.ctx, session.Event{Chat: "b", Outcome: dialog.OutcomeFailed})

	a, err := s.stats.GetChat(s.ctx, "a")
	s.NoError(err)
	s.Require().NotNil(a)
	s.Equal(int64(2), a.Messages)
	s.Equal(int64(1), a.GeometryFailures)

	b, err := s.stats.GetChat(s.ctx, "b")
	s.NoError(err)
	s.Require().NotNil(b)
	s.Equal(int64(1), b.Failures)
}

// TestTotalsAndRecent tests aggregation and ordering.
func (s *ChatStatStoreSuite) TestTotalsAndRecent() {
	empty, err := s.stats.Totals(s.ctx)
	s.NoError(err)
	s.Zero(empty.Chats)
	s.Zero(empty.Messages)

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.NoError(s.stats.Record(s.ctx, "old", Delta{Messages: 2, RollsRecommended: 4}, t0))
	s.NoError(s.stats.Record(s.ctx, "new", Delta{Messages: 3, RollsRecommended: 7}, t0.Add(time.Hour)))

	totals, err := s.stats.Totals(s.ctx)
	s.NoError(err)
	s.Equal(int64(2), totals.Chats)
	s.Equal(int64(5), totals.Messages)
	s.Equal(int64(11), totals.RollsRecommended)

	recent, err := s.stats.Recent(s.ctx, 1)
	s.NoError(err)
	s.Require().Len(recent, 1)
	s.Equal("new", recent[0].ChatKey)
}

func TestDeltaFor(t *testing.T) {
	res := &models.CalculationResult{RollsNeeded: 11}
	tests := []struct {
		name string
		ev   session.Event
		want Delta
	}{
		{"started", session.Event{Outcome: dialog.OutcomeStarted}, Delta{Messages: 1, SessionsStarted: 1}},
		{"answered", session.Event{Outcome: dialog.OutcomeAnswered}, Delta{Messages: 1}},
		{"rejected", session.Event{Outcome: dialog.OutcomeRejected}, Delta{Messages: 1, InputRejections: 1}},
		{"completed", session.Event{Outcome: dialog.OutcomeCompleted, Result: res}, Delta{Messages: 1, CalculationsCompleted: 1, RollsRecommended: 11}},
		{"geometry", session.Event{Outcome: dialog.OutcomeGeometry}, Delta{Messages: 1, GeometryFailures: 1}},
		{"failed", session.Event{Outcome: dialog.OutcomeFailed}, Delta{Messages: 1, Failures: 1}},
		{"ignored", session.Event{Outcome: dialog.OutcomeIgnored}, Delta{Messages: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeltaFor(tt.ev); got != tt.want {
				t.Errorf("DeltaFor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
