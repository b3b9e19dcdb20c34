package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cathouse/taskmanager/internal/metrics"
	"github.com/cathouse/taskmanager/internal/model"
	"github.com/cathouse/taskmanager/internal/store"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDuplicateKeyName = errors.New("duplicate key name")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

// DefaultGracePeriod is how long a rotated-out secret keeps validating.
const DefaultGracePeriod = 7 * 24 * time.Hour

const (
	secretBytes     = 32
	displayHexChars = 8
)

var environments = []string{model.EnvironmentProd, model.EnvironmentDev}

// keyError carries a caller-facing message while matching one of the
// sentinel errors above through errors.Is.
type keyError struct {
	kind error
	msg  string
}

func (e *keyError) Error() string { return e.msg }
func (e *keyError) Unwrap() error { return e.kind }

// KeyService manages the lifecycle of service keys: generation, issuance,
// zero-downtime rotation and validation.
type KeyService struct {
	store  *store.Store
	logger *slog.Logger
	grace  time.Duration
	now    func() time.Time
}

// NewKeyService creates a KeyService. A zero grace falls back to
// DefaultGracePeriod and a nil clock to time.Now.
func NewKeyService(st *store.Store, logger *slog.Logger, grace time.Duration, now func() time.Time) *KeyService {
	if logger == nil {
		logger = slog.Default()
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if now == nil {
		now = time.Now
	}
	return &KeyService{store: st, logger: logger, grace: grace, now: now}
}

// Generate returns a fresh secret of the form sk_{env}_{64 hex chars}.
func Generate(env string) (string, error) {
	if !validEnvironment(env) {
		return "", &keyError{
			kind: ErrInvalidArgument,
			msg:  fmt.Sprintf("invalid environment %q: must be one of %s", env, strings.Join(environments, ", ")),
		}
	}
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return "sk_" + env + "_" + hex.EncodeToString(buf), nil
}

// Issue creates a new active, non-expiring key. The returned IssuedKey is
// the only place the plaintext secret is ever exposed.
func (s *KeyService) Issue(ctx context.Context, keyName, env string) (issued *model.IssuedKey, err error) {
	defer func() { metrics.RecordKeyOperation("issue", err) }()

	secret, err := Generate(env)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.ServiceKeyNameExists(ctx, keyName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, duplicateName(keyName)
	}

	key := newKeyRecord(secret, env)
	key.KeyName = keyName
	key.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
	if err := s.store.CreateServiceKey(ctx, key); err != nil {
		// A concurrent issuer may have won the race past the pre-check.
		if errors.Is(err, store.ErrConflict) {
			return nil, duplicateName(keyName)
		}
		return nil, err
	}

	s.logger.Info("service key issued", "key_name", keyName, "key_prefix", key.KeyPrefix, "environment", env)
	return &model.IssuedKey{
		ID:          key.ID,
		KeyName:     key.KeyName,
		ServiceKey:  secret,
		Environment: env,
		CreatedAt:   key.CreatedAt,
	}, nil
}

// Rotate replaces the newest active key for keyName with a fresh secret in
// the same environment. The old secret keeps validating until the grace
// period has passed.
func (s *KeyService) Rotate(ctx context.Context, keyName string) (rotated *model.RotatedKey, err error) {
	defer func() { metrics.RecordKeyOperation("rotate", err) }()

	now := s.now().UTC().Truncate(time.Microsecond)
	graceExpiry := now.Add(s.grace)

	var secret string
	next, err := s.store.RotateServiceKey(ctx, keyName, graceExpiry, func(current *model.ServiceKey) (*model.ServiceKey, error) {
		var genErr error
		secret, genErr = Generate(current.Environment)
		if genErr != nil {
			return nil, genErr
		}
		key := newKeyRecord(secret, current.Environment)
		key.CreatedAt = now
		return key, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &keyError{kind: ErrNotFound, msg: fmt.Sprintf("active service key '%s' not found", keyName)}
		}
		return nil, err
	}

	s.logger.Info("service key rotated",
		"key_name", keyName,
		"generation", next.Generation,
		"key_prefix", next.KeyPrefix,
		"old_key_expires_at", graceExpiry,
	)
	return &model.RotatedKey{NewKey: secret, OldKeyExpiresAt: graceExpiry}, nil
}

// Validate returns the key name owning secret. Every rejection, whether
// the secret is unknown, revoked or expired, is reported as ErrUnauthorized.
// Store failures are returned as-is.
func (s *KeyService) Validate(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", ErrUnauthorized
	}
	hash := HashSecret(secret)

	key, err := s.store.GetServiceKeyBySecretHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("look up service key: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(key.SecretHash), []byte(hash)) != 1 {
		return "", ErrUnauthorized
	}
	if !key.Usable(s.now()) {
		return "", ErrUnauthorized
	}
	return key.KeyName, nil
}

// List returns every credential record. Secrets are never included.
func (s *KeyService) List(ctx context.Context) ([]model.ServiceKey, error) {
	return s.store.ListServiceKeys(ctx)
}

// Revoke deactivates a credential record by ID.
func (s *KeyService) Revoke(ctx context.Context, id string) (err error) {
	defer func() { metrics.RecordKeyOperation("revoke", err) }()

	if err := s.store.RevokeServiceKey(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &keyError{kind: ErrNotFound, msg: fmt.Sprintf("service key '%s' not found", id)}
		}
		return err
	}
	s.logger.Info("service key revoked", "key_id", id)
	return nil
}

// HashSecret returns the hex SHA-256 digest under which a secret is stored.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// DisplayPrefix returns the non-secret leading part of a secret that is
// safe to log and show: the environment tag plus the first hex characters.
func DisplayPrefix(secret string) string {
	i := strings.LastIndexByte(secret, '_')
	if i < 0 || len(secret) < i+1+displayHexChars {
		return ""
	}
	return secret[:i+1+displayHexChars]
}

func newKeyRecord(secret, env string) *model.ServiceKey {
	return &model.ServiceKey{
		SecretHash:  HashSecret(secret),
		KeyPrefix:   DisplayPrefix(secret),
		Environment: env,
		Active:      true,
	}
}

func duplicateName(keyName string) error {
	return &keyError{kind: ErrDuplicateKeyName, msg: fmt.Sprintf("service key with name '%s' already exists", keyName)}
}

func validEnvironment(env string) bool {
	for _, e := range environments {
		if env == e {
			return true
		}
	}
	return false
}
