package canvas

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// untitledSummary はSUMMARYを持たないイベントの表示名。
const untitledSummary = "Untitled Canvas Event"

// defaultEventLength はDTENDもDURATIONも持たないイベントの長さ。
const defaultEventLength = time.Hour

// Event はICSフィードから取り出したVEVENTを表す。
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// TextSanitizer は説明文からHTMLを取り除く。
type TextSanitizer interface {
	PlainText(raw string) string
}

// Parser はICS本文をEventのリストに変換する。
type Parser struct {
	sanitizer TextSanitizer
	logger    *slog.Logger
}

// NewParser はParserを生成する。sanitizerがnilの場合は説明文をそのまま使う。
func NewParser(sanitizer TextSanitizer, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{sanitizer: sanitizer, logger: logger}
}

// Parse はVEVENTのみを取り出す。
// DTSTARTを解釈できないイベントは警告を出して読み飛ばす。
func (p *Parser) Parse(data []byte) ([]Event, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ICSの解析に失敗しました: %w", err)
	}

	vevents := cal.Events()
	events := make([]Event, 0, len(vevents))
	for _, ve := range vevents {
		start, err := ve.GetStartAt()
		if err != nil {
			p.logger.Warn("開始日時のないイベントを読み飛ばします",
				slog.String("uid", ve.Id()),
				slog.String("error", err.Error()),
			)
			continue
		}

		end, err := ve.GetEndAt()
		if err != nil || end.IsZero() {
			end = start.Add(eventLength(ve))
		}

		summary := propertyText(ve, ics.ComponentPropertySummary)
		if summary == "" {
			summary = untitledSummary
		}

		description := propertyText(ve, ics.ComponentPropertyDescription)
		if p.sanitizer != nil {
			description = p.sanitizer.PlainText(description)
		}

		uid := strings.TrimSpace(ve.Id())
		if uid == "" {
			uid = fallbackUID(summary, start)
		}

		events = append(events, Event{
			UID:         uid,
			Summary:     summary,
			Description: description,
			Location:    propertyText(ve, ics.ComponentPropertyLocation),
			Start:       start,
			End:         end,
		})
	}
	return events, nil
}

// fallbackUID はUIDを持たないイベントの識別子を作る。
// 同じフィードを再取得しても同じ値になる。
func fallbackUID(summary string, start time.Time) string {
	return summary + "@" + start.UTC().Format("20060102T150405Z")
}

// propertyText はTEXTプロパティの値を返す。エスケープはgolang-icalが解析時に戻している。
func propertyText(ve *ics.VEvent, prop ics.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// eventLength はDURATIONがあればその長さを、なければdefaultEventLengthを返す。
func eventLength(ve *ics.VEvent) time.Duration {
	p := ve.GetProperty(ics.ComponentProperty(ics.PropertyDuration))
	if p == nil {
		return defaultEventLength
	}
	d, err := parseICSDuration(p.Value)
	if err != nil || d <= 0 {
		return defaultEventLength
	}
	return d
}

// parseICSDuration はRFC 5545のDURATION値(例: PT30M, P1DT2H, P2W)を解釈する。
func parseICSDuration(raw string) (time.Duration, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("DURATIONの形式が不正です: %q", raw)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := -1
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			if num < 0 {
				num = 0
			}
			num = num*10 + int(c-'0')
			continue
		case c == 'T' && !inTime && num < 0:
			inTime = true
			continue
		}
		if num < 0 {
			return 0, fmt.Errorf("DURATIONの形式が不正です: %q", raw)
		}
		var unit time.Duration
		switch {
		case c == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case c == 'D' && !inTime:
			unit = 24 * time.Hour
		case c == 'H' && inTime:
			unit = time.Hour
		case c == 'M' && inTime:
			unit = time.Minute
		case c == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("DURATIONの形式が不正です: %q", raw)
		}
		total += time.Duration(num) * unit
		num = -1
	}
	if num >= 0 {
		return 0, fmt.Errorf("DURATIONの形式が不正です: %q", raw)
	}
	return sign * total, nil
}
