package assistant

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Candidate はモデルの応答から取り出したタスク候補。
// 全フィールドは文字列として保持し、検証はServiceで行う。
type Candidate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Priority    string `json:"priority,omitempty"`
}

var (
	fencePattern       = regexp.MustCompile("```(?:json)?\\n?")
	tasksObjectPattern = regexp.MustCompile(`(?s)\{.*"tasks".*\}`)
	arrayPattern       = regexp.MustCompile(`(?s)\[.*\]`)
)

// replyParser は応答本文からタスク候補の生配列を取り出す。
// 取り出せない場合はokにfalseを返し、次のパーサに委ねる。
type replyParser func(content string) (items []any, ok bool)

// replyParsers は上から順に試す修復手順。
var replyParsers = []replyParser{
	parseWholeObject,
	parseEmbeddedObject,
	parseEmbeddedArray,
}

// ParseReply はモデルの応答を段階的に解釈し、タスク候補を返す。
// どの手順でも解釈できない場合は空のスライスを返す。
func ParseReply(content string) []Candidate {
	content = strings.TrimSpace(fencePattern.ReplaceAllString(content, ""))
	if content == "" {
		return []Candidate{}
	}

	for _, parse := range replyParsers {
		if items, ok := parse(content); ok {
			return toCandidates(items)
		}
	}
	return []Candidate{}
}

func parseWholeObject(content string) ([]any, bool) {
	return tasksFromObject(content)
}

func parseEmbeddedObject(content string) ([]any, bool) {
	match := tasksObjectPattern.FindString(content)
	if match == "" {
		return nil, false
	}
	return tasksFromObject(match)
}

func parseEmbeddedArray(content string) ([]any, bool) {
	match := arrayPattern.FindString(content)
	if match == "" {
		return nil, false
	}
	var items []any
	if err := json.Unmarshal([]byte(match), &items); err != nil {
		return nil, false
	}
	return items, true
}

// tasksFromObject はJSONオブジェクトのtasksフィールドを配列として返す。
// tasksが単一オブジェクトの場合は1要素の配列に包む。
func tasksFromObject(s string) ([]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}

	switch v := obj["tasks"].(type) {
	case []any:
		return v, true
	case map[string]any:
		return []any{v}, true
	default:
		return []any{}, true
	}
}

func toCandidates(items []any) []Candidate {
	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Name:        stringField(m, "name"),
			Description: stringField(m, "description"),
			Date:        stringField(m, "date"),
			StartTime:   stringField(m, "startTime"),
			EndTime:     stringField(m, "endTime"),
			Priority:    stringField(m, "priority"),
		})
	}
	return candidates
}

// stringField はフィールド値を文字列に変換する。数値や真偽値も文字列化する。
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
