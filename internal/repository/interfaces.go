// Package repository はクライアントストレージの永続化を提供する。
//
// クライアントストレージはブラウザのlocalStorageに相当するキーバリュー領域で、
// client_id ごとに名前空間が分かれる。
package repository

import (
	"context"
	"errors"
)

// ErrInvalidClientID はclient_idが不正な形式の場合に返される。
var ErrInvalidClientID = errors.New("invalid client id")

// StorageRepository はクライアントストレージの永続化インターフェース。
type StorageRepository interface {
	// Get は指定キーの値を取得する。存在しない場合はnil, nilを返す。
	Get(ctx context.Context, clientID, key string) ([]byte, error)

	// Set は指定キーに値を保存する。既存の値は上書きされる。
	Set(ctx context.Context, clientID, key string, value []byte) error

	// Delete は指定キーを削除する。存在しないキーの削除は成功扱い。
	Delete(ctx context.Context, clientID, key string) error
}

// ClientStorage は1クライアント分に束縛されたストレージ。
// セッションプロバイダーなどクライアント単位のコンポーネントに渡す。
type ClientStorage struct {
	repo     StorageRepository
	clientID string
}

// Bind はStorageRepositoryを指定クライアントに束縛する。
func Bind(repo StorageRepository, clientID string) *ClientStorage {
	return &ClientStorage{repo: repo, clientID: clientID}
}

// ClientID は束縛先のclient_idを返す。
func (s *ClientStorage) ClientID() string {
	return s.clientID
}

// GetItem は値を取得する。存在しない場合はnil, nilを返す。
func (s *ClientStorage) GetItem(ctx context.Context, key string) ([]byte, error) {
	return s.repo.Get(ctx, s.clientID, key)
}

// SetItem は値を保存する。
func (s *ClientStorage) SetItem(ctx context.Context, key string, value []byte) error {
	return s.repo.Set(ctx, s.clientID, key, value)
}

// RemoveItem は値を削除する。
func (s *ClientStorage) RemoveItem(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, s.clientID, key)
}
