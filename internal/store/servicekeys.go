package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cathouse/taskmanager/internal/model"
)

const serviceKeyColumns = `id, key_name, generation, secret_hash, key_prefix, environment, active, created_at, expires_at`

// CreateServiceKey inserts a new credential row. SecretHash must already be
// set. ID, Generation and CreatedAt are filled in when zero. A collision on
// (key_name, generation) or secret_hash returns ErrConflict.
func (s *Store) CreateServiceKey(ctx context.Context, key *model.ServiceKey) error {
	if key.ID == "" {
		key.ID = newID()
	}
	if key.Generation == 0 {
		key.Generation = 1
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now()
	}
	return insertServiceKey(ctx, s.db, key)
}

func insertServiceKey(ctx context.Context, ext sqlx.ExtContext, key *model.ServiceKey) error {
	const q = `INSERT INTO service_api_keys
		(id, key_name, generation, secret_hash, key_prefix, environment, active, created_at, expires_at)
		VALUES
		(:id, :key_name, :generation, :secret_hash, :key_prefix, :environment, :active, :created_at, :expires_at)`

	if _, err := sqlx.NamedExecContext(ctx, ext, q, key); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert service key %q: %w", key.KeyName, ErrConflict)
		}
		return fmt.Errorf("insert service key: %w", err)
	}
	return nil
}

// ServiceKeyNameExists reports whether any row, in any state, carries name.
func (s *Store) ServiceKeyNameExists(ctx context.Context, name string) (bool, error) {
	var n int
	q := s.db.Rebind("SELECT COUNT(*) FROM service_api_keys WHERE key_name = ?")
	if err := s.db.GetContext(ctx, &n, q, name); err != nil {
		return false, fmt.Errorf("count service keys by name: %w", err)
	}
	return n > 0, nil
}

// GetServiceKey returns a credential row by ID.
func (s *Store) GetServiceKey(ctx context.Context, id string) (*model.ServiceKey, error) {
	var key model.ServiceKey
	q := s.db.Rebind("SELECT " + serviceKeyColumns + " FROM service_api_keys WHERE id = ?")
	if err := s.db.GetContext(ctx, &key, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get service key: %w", err)
	}
	return &key, nil
}

// GetServiceKeyBySecretHash looks up a credential row by the SHA-256 hash of
// its secret, regardless of state. Callers decide usability.
func (s *Store) GetServiceKeyBySecretHash(ctx context.Context, hash string) (*model.ServiceKey, error) {
	var key model.ServiceKey
	q := s.db.Rebind("SELECT " + serviceKeyColumns + " FROM service_api_keys WHERE secret_hash = ?")
	if err := s.db.GetContext(ctx, &key, q, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get service key by hash: %w", err)
	}
	return &key, nil
}

// ListServiceKeys returns every credential row, grouped by name with the
// newest generation first.
func (s *Store) ListServiceKeys(ctx context.Context) ([]model.ServiceKey, error) {
	keys := []model.ServiceKey{}
	q := "SELECT " + serviceKeyColumns + " FROM service_api_keys ORDER BY key_name, generation DESC"
	if err := s.db.SelectContext(ctx, &keys, q); err != nil {
		return nil, fmt.Errorf("list service keys: %w", err)
	}
	return keys, nil
}

// RevokeServiceKey marks a credential row inactive by ID.
func (s *Store) RevokeServiceKey(ctx context.Context, id string) error {
	q := s.db.Rebind("UPDATE service_api_keys SET active = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, false, id)
	if err != nil {
		return fmt.Errorf("revoke service key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke service key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetServiceKeyExpiry sets expires_at on a credential row by ID.
func (s *Store) SetServiceKeyExpiry(ctx context.Context, id string, at time.Time) error {
	return setServiceKeyExpiry(ctx, s.db, id, at)
}

func setServiceKeyExpiry(ctx context.Context, ext sqlx.ExtContext, id string, at time.Time) error {
	q := ext.Rebind("UPDATE service_api_keys SET expires_at = ? WHERE id = ?")
	result, err := ext.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("set service key expiry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set service key expiry rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MintFunc builds the replacement row during a rotation from the row being
// rotated out. It must set SecretHash, KeyPrefix and Environment; the store
// assigns ID, KeyName, Generation, Active and ExpiresAt.
type MintFunc func(current *model.ServiceKey) (*model.ServiceKey, error)

// RotateServiceKey atomically retires the newest active row for name by
// setting its expiry to graceExpiry and inserts the replacement produced by
// mint as the next generation. Returns ErrNotFound when name has no active
// row. Nothing is written unless every step succeeds.
func (s *Store) RotateServiceKey(ctx context.Context, name string, graceExpiry time.Time, mint MintFunc) (*model.ServiceKey, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback()

	if err := s.dialect.lockName(ctx, tx, name); err != nil {
		return nil, err
	}

	var current model.ServiceKey
	q := tx.Rebind("SELECT " + serviceKeyColumns + ` FROM service_api_keys
		WHERE key_name = ? AND active = ?
		ORDER BY generation DESC LIMIT 1`)
	if err := tx.GetContext(ctx, &current, q, name, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active service key: %w", err)
	}

	var maxGen int
	q = tx.Rebind("SELECT COALESCE(MAX(generation), 0) FROM service_api_keys WHERE key_name = ?")
	if err := tx.GetContext(ctx, &maxGen, q, name); err != nil {
		return nil, fmt.Errorf("find latest generation: %w", err)
	}

	if err := setServiceKeyExpiry(ctx, tx, current.ID, graceExpiry); err != nil {
		return nil, err
	}

	next, err := mint(&current)
	if err != nil {
		return nil, fmt.Errorf("mint replacement key: %w", err)
	}
	next.ID = newID()
	next.KeyName = current.KeyName
	next.Generation = maxGen + 1
	next.Active = true
	next.ExpiresAt = nil
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now()
	}
	if err := insertServiceKey(ctx, tx, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rotation: %w", err)
	}
	return next, nil
}
