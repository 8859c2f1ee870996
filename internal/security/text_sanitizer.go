// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
// 外部の検索APIから取得した掲載のタイトルや説明文は信頼できない入力であり、
// 通知メールへの埋め込み前に必ずここを通す。
type TextSanitizerService interface {
	// SanitizeText は入力からすべてのHTMLマークアップを除去し、
	// プレーンテキストを返す。同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(input string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText は入力からすべてのHTMLマークアップを除去する。
// StrictPolicyはテキストをHTMLエスケープして返すため、
// プレーンテキストとして扱えるようエスケープを戻した上で空白を整える。
func (s *textSanitizer) SanitizeText(input string) string {
	if input == "" {
		return ""
	}
	stripped := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
