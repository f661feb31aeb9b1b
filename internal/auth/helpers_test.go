package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/notify"
	"github.com/hitoshi/yieldvision/internal/repository"
)

// --- モック定義 ---

type mockStorageRepo struct {
	getFn    func(ctx context.Context, clientID, key string) ([]byte, error)
	setFn    func(ctx context.Context, clientID, key string, value []byte) error
	deleteFn func(ctx context.Context, clientID, key string) error
}

func (m *mockStorageRepo) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, clientID, key)
	}
	return nil, nil
}

func (m *mockStorageRepo) Set(ctx context.Context, clientID, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, clientID, key, value)
	}
	return nil
}

func (m *mockStorageRepo) Delete(ctx context.Context, clientID, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, clientID, key)
	}
	return nil
}

var _ repository.StorageRepository = (*mockStorageRepo)(nil)

type recordedNotification struct {
	clientID string
	severity notify.Severity
	message  string
}

type recordingEmitter struct {
	mu   sync.Mutex
	sent []recordedNotification
}

func (e *recordingEmitter) Emit(clientID string, severity notify.Severity, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, recordedNotification{clientID, severity, message})
}

func (e *recordingEmitter) last() recordedNotification {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sent) == 0 {
		return recordedNotification{}
	}
	return e.sent[len(e.sent)-1]
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}

// --- ヘルパー ---

// fastHasherConfig はテスト用の軽量なargon2パラメータ。
func fastHasherConfig() HasherConfig {
	return HasherConfig{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
}

func newTestHasher(t *testing.T) *SecretHasher {
	t.Helper()
	h, err := NewSecretHasher(fastHasherConfig())
	if err != nil {
		t.Fatalf("NewSecretHasher: %v", err)
	}
	return h
}

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := NewDirectory(newTestHasher(t), model.DefaultSeedCredentials())
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	return d
}

func newTestProvider(t *testing.T, repo repository.StorageRepository, dir *Directory, emitter notify.Emitter) *Provider {
	t.Helper()
	p := NewProvider(repository.Bind(repo, "client-1"), dir, emitter, ProviderConfig{})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return p
}
