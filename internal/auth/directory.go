package auth

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/hitoshi/yieldvision/internal/model"
)

// Directory はクレデンシャルディレクトリ。
// 起動時にシードされ、以後は登録による追加のみ行われる。メモリ上のみで永続化しない。
type Directory struct {
	hasher *SecretHasher
	verify func(secret, encoded string) bool

	// missHash は未登録メールアドレスの照合に使う。応答時間から登録有無を推測させない。
	missHash string

	mu      sync.RWMutex
	entries []model.Credential
	nextID  uint64
}

// NewDirectory はシードからDirectoryを生成する。
// IDの採番はシード中の最大の数値IDの次から始まる単調増加カウンタで行う。
func NewDirectory(hasher *SecretHasher, seeds []model.SeedCredential) (*Directory, error) {
	missHash, err := hasher.Hash("unregistered")
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder secret: %w", err)
	}

	d := &Directory{
		hasher:   hasher,
		verify:   hasher.Verify,
		missHash: missHash,
		entries:  make([]model.Credential, 0, len(seeds)),
		nextID:   1,
	}

	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		if !s.User.Complete() {
			return nil, fmt.Errorf("seed credential is incomplete: %q", s.User.Email)
		}
		if seen[s.User.Email] {
			return nil, fmt.Errorf("duplicate seed email: %q", s.User.Email)
		}
		seen[s.User.Email] = true

		hash, err := hasher.Hash(s.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to hash seed secret: %w", err)
		}
		d.entries = append(d.entries, model.Credential{User: s.User, SecretHash: hash})

		if n, err := strconv.ParseUint(s.User.ID, 10, 64); err == nil && n >= d.nextID {
			d.nextID = n + 1
		}
	}

	return d, nil
}

// Find はメールアドレスとシークレットの両方が完全一致するエントリを線形探索する。
// 返されるUserはコピーで、シークレットを含まない。
// メールアドレスが未登録でもハッシュ照合を1回行う。
func (d *Directory) Find(email, secret string) (*model.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, c := range d.entries {
		if c.User.Email != email {
			continue
		}
		if !d.verify(secret, c.SecretHash) {
			return nil, false
		}
		u := c.User
		return &u, true
	}

	d.verify(secret, d.missHash)
	return nil, false
}

// Exists は指定メールアドレスのエントリが存在するかを返す。
func (d *Directory) Exists(email string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.existsLocked(email)
}

func (d *Directory) existsLocked(email string) bool {
	for _, c := range d.entries {
		if c.User.Email == email {
			return true
		}
	}
	return false
}

// Add は新しいエントリを末尾に追加し、採番済みのUserを返す。
// 同じメールアドレスが存在する場合はErrDuplicateAccountを返す。
func (d *Directory) Add(name, email, secret string, role model.Role) (*model.User, error) {
	hash, err := d.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.existsLocked(email) {
		return nil, ErrDuplicateAccount
	}

	u := model.User{
		ID:    strconv.FormatUint(d.nextID, 10),
		Name:  name,
		Email: email,
		Role:  role,
	}
	d.nextID++
	d.entries = append(d.entries, model.Credential{User: u, SecretHash: hash})

	return &u, nil
}

// Len はエントリ数を返す。
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
