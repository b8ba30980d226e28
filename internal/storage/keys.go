package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"modpod/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type KeyStorage struct {
	pool *pgxpool.Pool
}

func NewKeyStorage(pool *pgxpool.Pool) *KeyStorage {
	return &KeyStorage{
		pool: pool,
	}
}

// GenerateKey returns 32 random bytes, hex encoded.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func scanKey(row rowScanner) (models.APIKey, error) {
	var key models.APIKey
	err := row.Scan(&key.Key, &key.IsAdmin, &key.Creator)
	return key, err
}

func (s *KeyStorage) GetKey(ctx context.Context, key string) (models.APIKey, error) {
	op := "internal/storage/keys.go GetKey"

	k, err := scanKey(s.pool.QueryRow(ctx, `SELECT key, is_admin, creator FROM api_keys WHERE key = $1`, key))
	if err != nil {
		return models.APIKey{}, classify(op, err)
	}
	return k, nil
}

func (s *KeyStorage) GetKeyByCreator(ctx context.Context, creator int64) (models.APIKey, error) {
	op := "internal/storage/keys.go GetKeyByCreator"

	k, err := scanKey(s.pool.QueryRow(ctx, `SELECT key, is_admin, creator FROM api_keys WHERE creator = $1`, creator))
	if err != nil {
		return models.APIKey{}, classify(op, err)
	}
	return k, nil
}

// ListUserKeys returns keys bound to a Discord user, administrators first.
func (s *KeyStorage) ListUserKeys(ctx context.Context) ([]models.APIKey, error) {
	return s.list(ctx, "internal/storage/keys.go ListUserKeys", `
	SELECT key, is_admin, creator FROM api_keys
	WHERE creator IS NOT NULL
	ORDER BY is_admin DESC, creator
	`)
}

// ListServiceTokens returns keys without a creator, administrators first.
func (s *KeyStorage) ListServiceTokens(ctx context.Context) ([]models.APIKey, error) {
	return s.list(ctx, "internal/storage/keys.go ListServiceTokens", `
	SELECT key, is_admin, creator FROM api_keys
	WHERE creator IS NULL
	ORDER BY is_admin DESC, key
	`)
}

func (s *KeyStorage) list(ctx context.Context, op, query string) ([]models.APIKey, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	keys := []models.APIKey{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return keys, nil
}

func (s *KeyStorage) CreateKey(ctx context.Context, key models.APIKey) error {
	op := "internal/storage/keys.go CreateKey"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (key, is_admin, creator) VALUES ($1, $2, $3)`,
		key.Key, key.IsAdmin, key.Creator,
	)
	if err != nil {
		return classify(op, err)
	}
	return nil
}
