// Package gorm provides GORM-based storage for per-chat usage statistics.
package gorm

import (
	"time"

	"gorm.io/gorm"
)

// ChatStat holds running counters for one conversation.
// Answers and results are never stored, only how often things happened.
type ChatStat struct {
	ID                    int64  `gorm:"primaryKey;autoIncrement"`
	ChatKey               string `gorm:"uniqueIndex;not null;size:255"`
	FirstSeenEpoch        int64  `gorm:"not null"`
	LastSeenEpoch         int64  `gorm:"index:idx_chat_stats_last_seen,sort:desc;not null"`
	Messages              int64  `gorm:"default:0;not null"`
	SessionsStarted       int64  `gorm:"default:0;not null"`
	CalculationsCompleted int64  `gorm:"default:0;not null"`
	GeometryFailures      int64  `gorm:"default:0;not null"`
	Failures              int64  `gorm:"default:0;not null"`
	InputRejections       int64  `gorm:"default:0;not null"`
	RollsRecommended      int64  `gorm:"default:0;not null"`
}

func (ChatStat) TableName() string { return "chat_stats" }

// BeforeCreate hook to ensure timestamps are set.
func (c *ChatStat) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UnixMilli()
	if c.FirstSeenEpoch == 0 {
		c.FirstSeenEpoch = now
	}
	if c.LastSeenEpoch == 0 {
		c.LastSeenEpoch = now
	}
	return nil
}

// Totals aggregates ChatStat over all conversations.
type Totals struct {
	Chats                 int64 `json:"chats"`
	Messages              int64 `json:"messages"`
	SessionsStarted       int64 `json:"sessions_started"`
	CalculationsCompleted int64 `json:"calculations_completed"`
	GeometryFailures      int64 `json:"geometry_failures"`
	Failures              int64 `json:"failures"`
	InputRejections       int64 `json:"input_rejections"`
	RollsRecommended      int64 `json:"rolls_recommended"`
}
