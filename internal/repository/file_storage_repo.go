package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const fileLockRetryDelay = 10 * time.Millisecond

// FileStorageRepo はJSONファイルを使用したストレージリポジトリ。
// クライアントごとに <dir>/<client_id>.json を1ファイル持つ。
// 複数プロセスからの同時アクセスはflockで、プロセス内はmutexで排他する。
type FileStorageRepo struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorageRepo はFileStorageRepoを生成する。ディレクトリが無ければ作成する。
func NewFileStorageRepo(dir string) (*FileStorageRepo, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &FileStorageRepo{dir: dir}, nil
}

// Get は指定キーの値を取得する。存在しない場合はnil, nilを返す。
func (r *FileStorageRepo) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	var out []byte
	err := r.withLock(ctx, clientID, func(path string) error {
		items, err := readItems(path)
		if err != nil {
			return err
		}
		if v, ok := items[key]; ok {
			out = []byte(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set は指定キーに値を保存する。
func (r *FileStorageRepo) Set(ctx context.Context, clientID, key string, value []byte) error {
	return r.withLock(ctx, clientID, func(path string) error {
		items, err := readItems(path)
		if err != nil {
			return err
		}
		items[key] = string(value)
		return writeItems(path, items)
	})
}

// Delete は指定キーを削除する。最後のキーが消えた場合はファイルも削除する。
func (r *FileStorageRepo) Delete(ctx context.Context, clientID, key string) error {
	return r.withLock(ctx, clientID, func(path string) error {
		items, err := readItems(path)
		if err != nil {
			return err
		}
		if _, ok := items[key]; !ok {
			return nil
		}
		delete(items, key)
		if len(items) == 0 {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove storage file: %w", err)
			}
			return nil
		}
		return writeItems(path, items)
	})
}

// withLock はクライアントのファイルロックを取得してfnを実行する。
func (r *FileStorageRepo) withLock(ctx context.Context, clientID string, fn func(path string) error) error {
	// client_idはパスに使うためUUID形式のみ許可する
	if _, err := uuid.Parse(clientID); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidClientID, clientID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.dir, clientID+".json")
	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, fileLockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock storage file: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock storage file: %s", path)
	}
	defer fl.Unlock()

	return fn(path)
}

func readItems(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	items := make(map[string]string)
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode storage file: %w", err)
	}
	return items, nil
}

// writeItems は一時ファイルに書き込んでからrenameする。
func writeItems(path string, items map[string]string) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode storage file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StorageRepository = (*FileStorageRepo)(nil)
