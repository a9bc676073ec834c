package model

import "time"

// TaskSource はタスクの作成元を表す。
type TaskSource string

const (
	// TaskSourceManual はAPIから手動で作成されたタスク。
	TaskSourceManual TaskSource = "manual"
	// TaskSourceCanvas はCanvasフィードから同期されたタスク。
	TaskSourceCanvas TaskSource = "canvas"
	// TaskSourceDefault は自然言語アシスタントが作成したタスク。
	TaskSourceDefault TaskSource = "default"
)

// Valid は既知のソースかどうかを返す。
func (s TaskSource) Valid() bool {
	switch s {
	case TaskSourceManual, TaskSourceCanvas, TaskSourceDefault:
		return true
	}
	return false
}

// Priority値
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// ValidPriority は優先度が空または既知の値かを返す。
func ValidPriority(p string) bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task はユーザーのカレンダー上の予定を表す。
type Task struct {
	ID            int64
	UserID        int64
	Name          string
	Description   string
	StartTime     time.Time
	EndTime       time.Time
	Priority      string
	Color         string
	Source        TaskSource
	CanvasEventID string
	GoogleEventID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Duration はタスクの所要時間を返す。
func (t *Task) Duration() time.Duration {
	return t.EndTime.Sub(t.StartTime)
}
