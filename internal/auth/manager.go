// Package auth はモック認証のセッション管理を提供する。
//
// クレデンシャルディレクトリはプロセス全体で1つ、セッションプロバイダーは
// クライアント（ブラウザ）ごとに1つ存在する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/yieldvision/internal/notify"
	"github.com/hitoshi/yieldvision/internal/repository"
)

// ManagerConfig はセッションマネージャーの設定。
type ManagerConfig struct {
	Provider ProviderConfig

	// IdleTTL を超えてアクセスの無いプロバイダーはキャッシュから外す。0で無効。
	// ストレージが正なので、次のアクセスで再初期化される。
	IdleTTL time.Duration

	// CleanupInterval はアイドルプロバイダーの掃除間隔。0の場合はIdleTTLと同じ。
	CleanupInterval time.Duration
}

type managedProvider struct {
	provider   *Provider
	lastAccess time.Time
}

// Manager はクライアントごとのProviderをプロセス生存期間キャッシュする。
type Manager struct {
	repo      repository.StorageRepository
	directory *Directory
	emitter   notify.Emitter
	config    ManagerConfig

	mu        sync.Mutex
	providers map[string]*managedProvider

	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager はManagerを生成する。IdleTTLが正の場合はバックグラウンドで掃除を開始する。
func NewManager(repo repository.StorageRepository, directory *Directory, emitter notify.Emitter, config ManagerConfig) *Manager {
	m := &Manager{
		repo:      repo,
		directory: directory,
		emitter:   emitter,
		config:    config,
		providers: make(map[string]*managedProvider),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}

	if config.IdleTTL > 0 {
		interval := config.CleanupInterval
		if interval <= 0 {
			interval = config.IdleTTL
		}
		go m.cleanupLoop(interval)
	}

	return m
}

// Provider はクライアントのProviderを取得または作成し、初期化済みの状態で返す。
// 初期化でストレージ読み込みに失敗した場合も、未ログイン状態のProviderとエラーを返す。
func (m *Manager) Provider(ctx context.Context, clientID string) (*Provider, error) {
	if clientID == "" {
		return nil, errors.New("client ID is required")
	}

	m.mu.Lock()
	mp, ok := m.providers[clientID]
	if !ok {
		mp = &managedProvider{
			provider: NewProvider(repository.Bind(m.repo, clientID), m.directory, m.emitter, m.config.Provider),
		}
		m.providers[clientID] = mp
	}
	mp.lastAccess = m.now()
	p := mp.provider
	m.mu.Unlock()

	if err := p.Initialize(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// Count はキャッシュ中のProvider数を返す。テストおよびメトリクス用。
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.providers)
}

// Stop はバックグラウンドの掃除を停止する。複数回呼んでも安全。
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stopCh:
			return
		}
	}
}

// evictIdle は最終アクセスからIdleTTLを超えたProviderを削除する。
func (m *Manager) evictIdle() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, mp := range m.providers {
		if now.Sub(mp.lastAccess) > m.config.IdleTTL {
			delete(m.providers, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("idle session providers evicted", slog.Int("count", evicted))
	}
}
