// Package security はユーザー入力の無害化を提供する。
//
// CRMのメモや物件説明は簡易なリッチテキストとして保存し、
// プロフィールの表示名などはタグを一切含まないプレーンテキストとして保存する。
// いずれもbluemondayの許可リストポリシーで処理する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー入力のサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// Sanitize はリッチテキスト（メモ、物件説明）をサニタイズする。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, strong, em）のみを通過させ、
	// script, iframe, style, imgタグおよびon*イベント属性を除去する。
	// aタグのhrefはhttps, mailto, telスキームのみ許可される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string

	// PlainText は全てのタグを除去し、前後の空白を取り除いたテキストを返す。
	// エンティティはデコードした状態で返す。
	PlainText(s string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em",
	)

	// リンクは絶対URLのみ。物件ページや連絡先への導線を想定する。
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "mailto", "tel")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		rich:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize はリッチテキストをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.rich.Sanitize(rawHTML))
}

// PlainText は全てのタグを除去したテキストを返す。
func (s *contentSanitizer) PlainText(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(text)))
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
