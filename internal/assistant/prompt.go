package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/calplanner/internal/schedule"
)

// BuildSystemPrompt は現在日時とユーザーの傾向を埋め込んだシステムプロンプトを生成する。
func BuildSystemPrompt(now time.Time, patterns schedule.Patterns) string {
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")

	var b strings.Builder
	b.WriteString("You are a smart scheduling assistant. Extract task/event details from natural language.\n\n")

	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Current date: %s (%s)\n", today, now.Weekday())
	fmt.Fprintf(&b, "- Current time: %s\n", now.Format("15:04"))
	fmt.Fprintf(&b, "- User's average task duration: %d minutes\n", patterns.AverageDuration)
	fmt.Fprintf(&b, "- User's preferred start time: %d:00\n\n", patterns.CommonStartHour)

	b.WriteString("Extract and return a JSON object with a \"tasks\" array. Each task must have these fields:\n")
	b.WriteString("- name: string (required)\n")
	b.WriteString("- description: string (optional)\n")
	b.WriteString("- date: string (YYYY-MM-DD format, required)\n")
	b.WriteString("- startTime: string (HH:mm format, required)\n")
	b.WriteString("- endTime: string (HH:mm format, required)\n")
	b.WriteString("- priority: 'low' | 'medium' | 'high' (default: medium)\n\n")

	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "1. If no date is mentioned, use today (%s)\n", today)
	fmt.Fprintf(&b, "2. \"tomorrow\" = %s\n", tomorrow)
	b.WriteString("3. \"in X days\" = calculate from today\n")
	fmt.Fprintf(&b, "4. If no duration given, use user's average (%d min) or estimate based on task type\n", patterns.AverageDuration)
	b.WriteString("5. If only start time given, calculate end time using estimated duration\n")
	b.WriteString("6. If \"from X to Y\" or \"X - Y\", extract both times\n")
	b.WriteString("7. Handle 12/24 hour formats and am/pm\n")
	b.WriteString("8. Extract priority from words like \"urgent\", \"important\", \"later\"\n")
	b.WriteString("9. Multiple tasks can be created from one input (e.g., \"meeting at 2pm and workout at 6pm\")\n\n")

	b.WriteString("CRITICAL: Your response must be ONLY valid JSON in this exact format:\n")
	b.WriteString(`{"tasks": [{"name": "...", "date": "...", "startTime": "...", "endTime": "...", "priority": "medium"}]}`)
	b.WriteString("\n\nDo not include any markdown formatting, code blocks, or explanatory text. Return ONLY the raw JSON object.")

	return b.String()
}
