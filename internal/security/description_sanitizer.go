package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はCanvasイベント説明文のHTMLを除去するインターフェースを定義する。
// Google Calendarへ登録する前とタスク保存前に使用される。
type TextSanitizer interface {
	// PlainText はタグを取り除いたプレーンテキストを返す。
	// script/styleの中身は捨てられ、br・段落終端は改行として残る。
	PlainText(raw string) string
}

// lineBreaks は改行相当のタグを改行文字に置き換える。
var lineBreaks = strings.NewReplacer(
	"<br>", "\n",
	"<br/>", "\n",
	"<br />", "\n",
	"<BR>", "\n",
	"</p>", "\n",
	"</P>", "\n",
)

// descriptionSanitizer はTextSanitizerの実装。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewDescriptionSanitizer() *descriptionSanitizer {
	return &descriptionSanitizer{policy: bluemonday.StrictPolicy()}
}

// PlainText はHTMLを含む説明文をプレーンテキストに変換する。
// タグを含まない入力は前後の空白を除いてそのまま返す。
func (s *descriptionSanitizer) PlainText(raw string) string {
	if !strings.Contains(raw, "<") {
		return strings.TrimSpace(raw)
	}
	stripped := s.policy.Sanitize(lineBreaks.Replace(raw))
	// StrictPolicyは&や引用符をエスケープするため、テキストとして戻す
	return strings.TrimSpace(html.UnescapeString(stripped))
}
