package schedule

import (
	"time"

	"github.com/hitoshi/calplanner/internal/model"
)

// Overlaps は候補区間[start, end)が既存区間[existingStart, existingEnd)と重なるかを判定する。
// 端点が接するだけの区間は重複とみなさない。
func Overlaps(start, end, existingStart, existingEnd time.Time) bool {
	startsInside := !start.Before(existingStart) && start.Before(existingEnd)
	endsInside := end.After(existingStart) && !end.After(existingEnd)
	covers := !start.After(existingStart) && !end.Before(existingEnd)
	return startsInside || endsInside || covers
}

// FindConflicts は候補区間と重なる既存タスクを入力順で返す。
func FindConflicts(start, end time.Time, existing []*model.Task) []*model.Task {
	var conflicts []*model.Task
	for _, t := range existing {
		if Overlaps(start, end, t.StartTime, t.EndTime) {
			conflicts = append(conflicts, t)
		}
	}
	return conflicts
}
