// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は確認メールに埋め込むHTMLをサニタイズする。
// 氏名などの利用者入力はタグを全て除去してエスケープし、
// 組み立て後の本文は許可リストベースのポリシーで安全なタグのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はメール本文のHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, strong, em, ul, li）のみを通過させ、
	// リンク、画像、script、styleおよびon*イベント属性を除去する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string

	// StripTags は利用者入力のテキストから全てのタグを除去し、
	// HTMLに埋め込めるようエスケープした文字列を返す。
	StripTags(text string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフで、複数ゴルーチンから共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// メール本文は書式のみ。リンクと画像は追跡やフィッシングに使われるため許可しない。
	p.AllowElements("p", "br", "strong", "em", "ul", "li")

	return &contentSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメール本文のHTMLをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// StripTags は全てのタグを除去する。
func (s *contentSanitizer) StripTags(text string) string {
	return s.strict.Sanitize(text)
}
