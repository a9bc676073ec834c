// Package schedule はタスク履歴からの傾向分析と時間帯の重複判定を提供する。
// 外部I/Oを持たない純粋な計算のみを扱う。
package schedule

import (
	"math"
	"time"

	"github.com/hitoshi/calplanner/internal/model"
)

const (
	// DefaultAverageDuration は履歴がない場合の平均所要時間（分）。
	DefaultAverageDuration = 60
	// DefaultCommonStartHour は履歴がない場合の開始時刻（時）。
	DefaultCommonStartHour = 9
)

// Patterns はユーザーのタスク履歴から得られる傾向。
type Patterns struct {
	AverageDuration int // 分
	CommonStartHour int // 0-23
}

// AnalyzePatterns は直近のタスク履歴から平均所要時間と最頻開始時刻を算出する。
// 最頻値が複数ある場合は入力順で最初に現れた時刻を採用する。
// 開始時刻の「時」はlocのタイムゾーンで評価する。
func AnalyzePatterns(tasks []*model.Task, loc *time.Location) Patterns {
	if len(tasks) == 0 {
		return Patterns{
			AverageDuration: DefaultAverageDuration,
			CommonStartHour: DefaultCommonStartHour,
		}
	}
	if loc == nil {
		loc = time.Local
	}

	var totalMinutes float64
	counts := make(map[int]int, 24)
	order := make([]int, 0, 24)
	for _, t := range tasks {
		totalMinutes += t.EndTime.Sub(t.StartTime).Minutes()

		h := t.StartTime.In(loc).Hour()
		if counts[h] == 0 {
			order = append(order, h)
		}
		counts[h]++
	}

	common := order[0]
	for _, h := range order[1:] {
		if counts[h] > counts[common] {
			common = h
		}
	}

	return Patterns{
		AverageDuration: int(math.Round(totalMinutes / float64(len(tasks)))),
		CommonStartHour: common,
	}
}
