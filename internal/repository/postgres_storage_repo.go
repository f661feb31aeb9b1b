package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStorageRepo はPostgreSQLを使用したストレージリポジトリ。
// client_storage テーブル（client_id, key の複合主キー）に保存する。
type PostgresStorageRepo struct {
	db *sql.DB
}

// NewPostgresStorageRepo はPostgresStorageRepoを生成する。
func NewPostgresStorageRepo(db *sql.DB) *PostgresStorageRepo {
	return &PostgresStorageRepo{db: db}
}

// Get は指定キーの値を取得する。存在しない場合はnil, nilを返す。
func (r *PostgresStorageRepo) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE client_id = $1 AND key = $2`,
		clientID, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage item: %w", err)
	}

	return value, nil
}

// Set は指定キーに値をUPSERTする。
func (r *PostgresStorageRepo) Set(ctx context.Context, clientID, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_storage (client_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (client_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		clientID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set storage item: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *PostgresStorageRepo) Delete(ctx context.Context, clientID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE client_id = $1 AND key = $2`,
		clientID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete storage item: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StorageRepository = (*PostgresStorageRepo)(nil)
