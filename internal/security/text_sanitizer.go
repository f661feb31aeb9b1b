// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力した名前やプロフィール文からHTMLを除去する。
// bluemondayの許可リストベースのポリシーを使用する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力のサニタイズ機能のインターフェースを定義する。
// 登録時の表示名とプロフィール更新時に使用される。
type TextSanitizer interface {
	// PlainText は全てのタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// 引用符とアンパサンドのみデコードする。&lt; と &gt; はエスケープされたまま残る。
	PlainText(raw string) string

	// Bio はプロフィール文用に p, br, strong, em のみを残す。
	Bio(raw string) string
}

// plainTextUnescaper はタグを生成し得ないエンティティだけを戻す。
var plainTextUnescaper = strings.NewReplacer(
	"&#39;", "'",
	"&#34;", `"`,
	"&amp;", "&",
)

type textSanitizer struct {
	strict *bluemonday.Policy
	bio    *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	bio := bluemonday.NewPolicy()
	bio.AllowElements("p", "br", "strong", "em")

	return &textSanitizer{
		strict: bluemonday.StrictPolicy(),
		bio:    bio,
	}
}

// PlainText はタグを除去したプレーンテキストを返す。
func (s *textSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(plainTextUnescaper.Replace(s.strict.Sanitize(raw)))
}

// Bio はプロフィール文をサニタイズする。
func (s *textSanitizer) Bio(raw string) string {
	return strings.TrimSpace(s.bio.Sanitize(raw))
}
