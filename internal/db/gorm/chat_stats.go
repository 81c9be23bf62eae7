// Package gorm provides GORM-based storage for per-chat usage statistics.
package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/wallroll/internal/dialog"
	"github.com/thebtf/wallroll/internal/session"
)

// Delta is a set of counter increments for one chat.
type Delta struct {
	Messages              int64
	SessionsStarted       int64
	CalculationsCompleted int64
	GeometryFailures      int64
	Failures              int64
	InputRejections       int64
	RollsRecommended      int64
}

// DeltaFor maps a handled message to counter increments.
func DeltaFor(ev session.Event) Delta {
	d := Delta{Messages: 1}
	switch ev.Outcome {
	case dialog.OutcomeStarted:
		d.SessionsStarted = 1
	case dialog.OutcomeCompleted:
		d.CalculationsCompleted = 1
		if ev.Result != nil {
			d.RollsRecommended = int64(ev.Result.RollsNeeded)
		}
	case dialog.OutcomeGeometry:
		d.GeometryFailures = 1
	case dialog.OutcomeFailed:
		d.Failures = 1
	case dialog.OutcomeRejected:
		d.InputRejections = 1
	}
	return d
}

// ChatStatStore provides counter operations using GORM.
type ChatStatStore struct {
	db *gorm.DB
}

// NewChatStatStore creates a new chat stat store.
func NewChatStatStore(store *Store) *ChatStatStore {
	return &ChatStatStore{db: store.DB}
}

// Record adds d to the counters for chat, creating the row on first sight.
func (s *ChatStatStore) Record(ctx context.Context, chat string, d Delta, at time.Time) error {
	epoch := at.UnixMilli()
	row := &ChatStat{
		ChatKey:               chat,
		FirstSeenEpoch:        epoch,
		LastSeenEpoch:         epoch,
		Messages:              d.Messages,
		SessionsStarted:       d.SessionsStarted,
		CalculationsCompleted: d.CalculationsCompleted,
		GeometryFailures:      d.GeometryFailures,
		Failures:              d.Failures,
		InputRejections:       d.InputRejections,
		RollsRecommended:      d.RollsRecommended,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen_epoch":        epoch,
			"messages":               gorm.Expr("chat_stats.messages + ?", d.Messages),
			"sessions_started":       gorm.Expr("chat_stats.sessions_started + ?", d.SessionsStarted),
			"calculations_completed": gorm.Expr("chat_stats.calculations_completed + ?", d.CalculationsCompleted),
			"geometry_failures":      gorm.Expr("chat_stats.geometry_failures + ?", d.GeometryFailures),
			"failures":               gorm.Expr("chat_stats.failures + ?", d.Failures),
			"input_rejections":       gorm.Expr("chat_stats.input_rejections + ?", d.InputRejections),
			"rolls_recommended":      gorm.Expr("chat_stats.rolls_recommended + ?", d.RollsRecommended),
		}),
	}).Create(row).Error
}

// Observe records ev. Failures are logged, never surfaced to the conversation.
func (s *ChatStatStore) Observe(ctx context.Context, ev session.Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	if err := s.Record(ctx, ev.Chat, DeltaFor(ev), at); err != nil {
		log.Warn().Err(err).Str("chat", ev.Chat).Msg("Failed to record chat stats")
	}
}

// GetChat returns the counters for chat, or nil if it has never been seen.
func (s *ChatStatStore) GetChat(ctx context.Context, chat string) (*ChatStat, error) {
	var row ChatStat
	err := s.db.WithContext(ctx).Where("chat_key = ?", chat).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Recent returns the most recently active chats, newest first.
func (s *ChatStatStore) Recent(ctx context.Context, limit int) ([]ChatStat, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []ChatStat
	err := s.db.WithContext(ctx).
		Order("last_seen_epoch DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Totals sums the counters over all chats.
func (s *ChatStatStore) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.WithContext(ctx).
		Model(&ChatStat{}).
		Select(`COUNT(*) AS chats,
			COALESCE(SUM(messages), 0) AS messages,
			COALESCE(SUM(sessions_started), 0) AS sessions_started,
			COALESCE(SUM(calculations_completed), 0) AS calculations_completed,
			COALESCE(SUM(geometry_failures), 0) AS geometry_failures,
			COALESCE(SUM(failures), 0) AS failures,
			COALESCE(SUM(input_rejections), 0) AS input_rejections,
			COALESCE(SUM(rolls_recommended), 0) AS rolls_recommended`).
		Scan(&t).Error
	return t, err
}

var _ session.Observer = (*ChatStatStore)(nil)
