package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// HasherConfig はargon2idのパラメータ。
type HasherConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHasherConfig はOWASP推奨の最小構成を返す。
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// SecretHasher はシークレットをargon2idでハッシュ化・検証する。
// エンコード形式は $argon2id$v=19$m=<memory>,t=<time>,p=<parallelism>$<salt>$<hash>。
type SecretHasher struct {
	config HasherConfig
}

// NewSecretHasher はSecretHasherを生成する。
func NewSecretHasher(config HasherConfig) (*SecretHasher, error) {
	if config.Memory == 0 || config.Time == 0 || config.Parallelism == 0 {
		return nil, errors.New("argon2 memory, time and parallelism must be positive")
	}
	if config.SaltLength < 8 || config.KeyLength < 16 {
		return nil, errors.New("argon2 salt must be >= 8 bytes and key >= 16 bytes")
	}
	return &SecretHasher{config: config}, nil
}

// Hash はシークレットのハッシュを生成する。
func (h *SecretHasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.config.Memory, h.config.Time, h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify はシークレットがハッシュと一致するかを返す。
// 比較は定数時間で行い、大文字小文字や空白の正規化はしない。
func (h *SecretHasher) Verify(secret, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, time uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &parallelism); err != nil {
		return false
	}
	// argon2.IDKey はパラメータが0だとpanicする
	if memory == 0 || time == 0 || parallelism == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}

	got := argon2.IDKey([]byte(secret), salt, time, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
