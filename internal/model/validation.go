package model

import (
	"net/mail"
	"strings"
)

// MinNameLength は表示名の最小文字数。
const MinNameLength = 2

// ValidEmail はメールアドレスとして解析できるかを返す。
// 表示名付きの形式（"Jane <jane@example.com>"）は受け付けない。
func ValidEmail(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}

// ValidName は表示名が最小文字数を満たすかを返す。文字数はルーン単位で数える。
func ValidName(s string) bool {
	return len([]rune(strings.TrimSpace(s))) >= MinNameLength
}
