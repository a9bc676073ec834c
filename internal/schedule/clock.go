package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock は時刻文字列が解釈できないことを表す。
var ErrInvalidClock = errors.New("invalid clock value")

// maxClockHour は日付繰り越し済みの終了時刻（例: "25:30"）を許容する上限。
const maxClockHour = 47

// ParseClock は"HH:mm"形式の時刻を0時からの経過分に変換する。
// 時は1桁も許容する。分を省略した場合は0分とみなす。
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidClock
	}

	hourPart, minutePart, hasMinutes := strings.Cut(s, ":")
	hours, err := strconv.Atoi(hourPart)
	if err != nil || hours < 0 || hours > maxClockHour {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	minutes := 0
	if hasMinutes {
		minutes, err = strconv.Atoi(minutePart)
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}

	return hours*60 + minutes, nil
}

// FormatClock は0時からの経過分を"HH:mm"に整形する。
// 24時以降は日付を繰り越さずそのまま表記する（例: 1530分 → "25:30"）。
func FormatClock(totalMinutes int) string {
	return fmt.Sprintf("%02d:%02d", totalMinutes/60, totalMinutes%60)
}

// AddMinutes は"HH:mm"形式の時刻にminutes分を加算した時刻を返す。
func AddMinutes(clock string, minutes int) (string, error) {
	start, err := ParseClock(clock)
	if err != nil {
		return "", err
	}
	return FormatClock(start + minutes), nil
}

// CombineDateTime は"YYYY-MM-DD"の日付と"HH:mm"の時刻をloc上の時刻に結合する。
// 24時以降の時刻は翌日に繰り越す。
func CombineDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, minutes, 0, 0, loc), nil
}
