// Package model はドメインモデルを定義する。
package model

import "fmt"

// Role はユーザーの役割を表す。閉じた列挙で、以下の3値のみを取る。
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleResearcher Role = "researcher"
	RoleFarmer     Role = "farmer"
)

// ParseRole は文字列をRoleに変換する。未知の値はエラーを返す。
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleResearcher, RoleFarmer:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// Valid はRoleが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// User はログイン中のアイデンティティを表す。
// 永続化されるセッションはこの構造体のJSON表現そのもので、シークレットは含まない。
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl"`
}

// Complete は永続化されたレコードとして必要なフィールドがすべて揃っているかを返す。
func (u *User) Complete() bool {
	return u != nil && u.ID != "" && u.Name != "" && u.Email != "" && u.Role.Valid()
}

// Credential はクレデンシャルディレクトリの1エントリを表す。
// SecretHash はargon2idのエンコード済みハッシュ。
type Credential struct {
	User       User
	SecretHash string
}

// SeedCredential はディレクトリ初期化用の平文エントリ。
type SeedCredential struct {
	User   User
	Secret string
}

// DefaultSeedCredentials はデモ用の初期ユーザーを返す。順序は固定。
func DefaultSeedCredentials() []SeedCredential {
	return []SeedCredential{
		{
			User:   User{ID: "1", Name: "Admin User", Email: "admin@example.com", Role: RoleAdmin},
			Secret: "admin123",
		},
		{
			User:   User{ID: "2", Name: "Researcher", Email: "researcher@example.com", Role: RoleResearcher},
			Secret: "research123",
		},
		{
			User:   User{ID: "3", Name: "Farmer", Email: "farmer@example.com", Role: RoleFarmer},
			Secret: "farm123",
		},
	}
}
