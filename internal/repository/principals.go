package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/j-hartley/dealz/internal/authz"
)

// ErrPrincipalNotFound is returned when a principal or API key lookup
// matches no row.
var ErrPrincipalNotFound = errors.New("principal not found")

// CreatePrincipal inserts a principal with its role and any explicit
// permission grants. An empty ID is assigned a fresh UUID.
func (r *PostgresRepository) CreatePrincipal(ctx context.Context, p authz.Principal) (authz.Principal, error) {
	if !p.Role.Valid() {
		return authz.Principal{}, fmt.Errorf("create principal: invalid role %q", p.Role)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	explicit := make([]string, 0, len(p.Explicit))
	for _, perm := range p.Explicit {
		explicit = append(explicit, string(perm))
	}

	var created authz.Principal
	var createdExplicit []string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO principals (id, name, role, explicit_permissions)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, role, explicit_permissions
	`, p.ID, p.Name, p.Role, explicit).Scan(
		&created.ID,
		&created.Name,
		&created.Role,
		&createdExplicit,
	)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("create principal: %w", err)
	}

	created.Explicit = toPermissions(createdExplicit)
	return created, nil
}

// GetPrincipal retrieves a principal by ID.
func (r *PostgresRepository) GetPrincipal(ctx context.Context, id string) (authz.Principal, error) {
	var p authz.Principal
	var explicit []string
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, role, explicit_permissions
		FROM principals
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Role, &explicit)
	if errors.Is(err, pgx.ErrNoRows) {
		return authz.Principal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return authz.Principal{}, fmt.Errorf("get principal: %w", err)
	}

	p.Explicit = toPermissions(explicit)
	return p, nil
}

// CreateAPIKey mints an API key for a principal and returns the full token
// in keyID.secret form. The secret is bcrypt-hashed at rest; the plaintext
// is only ever returned here.
func (r *PostgresRepository) CreateAPIKey(ctx context.Context, principalID, name string) (string, error) {
	keyID, err := generateRandomHex(8)
	if err != nil {
		return "", fmt.Errorf("generate key id: %w", err)
	}
	secret, err := generateRandomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate key secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash key secret: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO api_keys (key_id, principal_id, name, secret_hash)
		VALUES ($1, $2, $3, $4)
	`, keyID, principalID, name, string(hash))
	if err != nil {
		return "", fmt.Errorf("create api key: %w", err)
	}

	return keyID + "." + secret, nil
}

// ValidateAPIKey looks up the stored secret hash for keyID and the principal
// it belongs to. The caller compares the hash against the presented secret.
func (r *PostgresRepository) ValidateAPIKey(ctx context.Context, keyID string) (string, authz.Principal, error) {
	var hash string
	var p authz.Principal
	var explicit []string
	err := r.pool.QueryRow(ctx, `
		SELECT k.secret_hash, p.id, p.name, p.role, p.explicit_permissions
		FROM api_keys k
		JOIN principals p ON p.id = k.principal_id
		WHERE k.key_id = $1 AND k.revoked_at IS NULL
	`, keyID).Scan(&hash, &p.ID, &p.Name, &p.Role, &explicit)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", authz.Principal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return "", authz.Principal{}, fmt.Errorf("validate api key: %w", err)
	}

	p.Explicit = toPermissions(explicit)
	return hash, p, nil
}

// RevokeAPIKey marks an API key revoked. Revoked keys fail validation but
// the row is retained for audit.
func (r *PostgresRepository) RevokeAPIKey(ctx context.Context, keyID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE api_keys
		SET revoked_at = NOW()
		WHERE key_id = $1 AND revoked_at IS NULL
	`, keyID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func toPermissions(raw []string) []authz.Permission {
	if len(raw) == 0 {
		return nil
	}
	perms := make([]authz.Permission, 0, len(raw))
	for _, s := range raw {
		perms = append(perms, authz.Permission(s))
	}
	return perms
}

func generateRandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
