// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はフォームから送信されたテキスト項目からHTMLを除去し、
// 保存・再表示時のXSSリスクを防ぐ。
// LinkValidator は組織のWebページやSNSリンクが公開http(s) URLであることを検証する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト項目のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はタグをすべて除去し、前後の空白を取り除いたテキストを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyは並行利用に対して安全。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyは&や'をエスケープするため、保存前に元の文字へ戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// SanitizePtr はnilを保ったままSanitizeを適用する。
// サニタイズ後に空文字列になった場合もそのまま空文字列を返す。
func SanitizePtr(s TextSanitizer, raw *string) *string {
	if raw == nil {
		return nil
	}
	v := s.Sanitize(*raw)
	return &v
}
