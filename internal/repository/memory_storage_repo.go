package repository

import (
	"context"
	"sync"
)

// MemoryStorageRepo はプロセス内メモリを使用したストレージリポジトリ。
// プロセス終了で内容は失われる。開発用およびテスト用。
type MemoryStorageRepo struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStorageRepo はMemoryStorageRepoを生成する。
func NewMemoryStorageRepo() *MemoryStorageRepo {
	return &MemoryStorageRepo{data: make(map[string]map[string][]byte)}
}

// Get は指定キーの値のコピーを返す。存在しない場合はnil, nilを返す。
func (r *MemoryStorageRepo) Get(_ context.Context, clientID, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.data[clientID][key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set は指定キーに値のコピーを保存する。
func (r *MemoryStorageRepo) Set(_ context.Context, clientID, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.data[clientID]
	if !ok {
		ns = make(map[string][]byte)
		r.data[clientID] = ns
	}
	v := make([]byte, len(value))
	copy(v, value)
	ns[key] = v
	return nil
}

// Delete は指定キーを削除する。名前空間が空になった場合は名前空間ごと削除する。
func (r *MemoryStorageRepo) Delete(_ context.Context, clientID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns, ok := r.data[clientID]
	if !ok {
		return nil
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(r.data, clientID)
	}
	return nil
}

// compile-time interface check
var _ StorageRepository = (*MemoryStorageRepo)(nil)
