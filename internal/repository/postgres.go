// Package repository provides PostgreSQL-backed persistence for deals,
// activations, principals, API keys, and the audit log. The activations
// table carries a unique activation_key, which is what makes TryActivate an
// atomic insert-if-absent under concurrent callers.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/j-hartley/dealz/internal/activation"
)

// DealStatus is the externally owned lifecycle of a deal. This service only
// evaluates Published deals; filtering of Draft/Retired happens upstream,
// and the store enforces it again in ListPublishedDealsByTeam.
type DealStatus string

const (
	DealStatusDraft     DealStatus = "draft"
	DealStatusPublished DealStatus = "published"
	DealStatusRetired   DealStatus = "retired"
)

// ErrDealNotFound is returned when a deal lookup matches nothing.
var ErrDealNotFound = errors.New("deal not found")

// Deal is a restaurant promotion governed by a trigger condition.
type Deal struct {
	ID              string     `json:"dealId"`
	RestaurantID    string     `json:"restaurantId"`
	TeamID          string     `json:"teamId"`
	ConditionString string     `json:"conditionString"`
	Status          DealStatus `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// PostgresRepository implements deal, activation, principal, and audit
// persistence backed by a pgxpool connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a [PostgresRepository] over the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateDeal inserts a new deal and returns the created record with
// server-generated timestamps. An empty ID is assigned a fresh UUID.
func (r *PostgresRepository) CreateDeal(ctx context.Context, deal Deal) (Deal, error) {
	if deal.ID == "" {
		deal.ID = uuid.NewString()
	}
	if deal.Status == "" {
		deal.Status = DealStatusDraft
	}

	var created Deal
	err := r.pool.QueryRow(ctx, `
		INSERT INTO deals (id, restaurant_id, team_id, condition_string, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, restaurant_id, team_id, condition_string, status, created_at, updated_at
	`,
		deal.ID,
		deal.RestaurantID,
		deal.TeamID,
		deal.ConditionString,
		deal.Status,
	).Scan(
		&created.ID,
		&created.RestaurantID,
		&created.TeamID,
		&created.ConditionString,
		&created.Status,
		&created.CreatedAt,
		&created.UpdatedAt,
	)
	if err != nil {
		return Deal{}, fmt.Errorf("create deal: %w", err)
	}

	return created, nil
}

// GetDeal retrieves a single deal by ID. Returns ErrDealNotFound if no deal
// exists; any other storage error propagates.
func (r *PostgresRepository) GetDeal(ctx context.Context, id string) (Deal, error) {
	var deal Deal
	err := r.pool.QueryRow(ctx, `
		SELECT id, restaurant_id, team_id, condition_string, status, created_at, updated_at
		FROM deals
		WHERE id = $1
	`, id).Scan(
		&deal.ID,
		&deal.RestaurantID,
		&deal.TeamID,
		&deal.ConditionString,
		&deal.Status,
		&deal.CreatedAt,
		&deal.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deal{}, ErrDealNotFound
	}
	if err != nil {
		return Deal{}, fmt.Errorf("get deal: %w", err)
	}

	return deal, nil
}

// ListDeals returns all deals ordered by creation time.
func (r *PostgresRepository) ListDeals(ctx context.Context) ([]Deal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, restaurant_id, team_id, condition_string, status, created_at, updated_at
		FROM deals
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	return scanDeals(rows)
}

// ListPublishedDealsByTeam returns the published deals evaluated against a
// team's game facts.
func (r *PostgresRepository) ListPublishedDealsByTeam(ctx context.Context, teamID string) ([]Deal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, restaurant_id, team_id, condition_string, status, created_at, updated_at
		FROM deals
		WHERE team_id = $1 AND status = $2
		ORDER BY created_at, id
	`, teamID, DealStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("list published deals: %w", err)
	}
	defer rows.Close()

	return scanDeals(rows)
}

// UpdateDealStatus moves a deal through its externally owned lifecycle.
// Returns ErrDealNotFound if the deal does not exist.
func (r *PostgresRepository) UpdateDealStatus(ctx context.Context, id string, status DealStatus) (Deal, error) {
	var updated Deal
	err := r.pool.QueryRow(ctx, `
		UPDATE deals
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, restaurant_id, team_id, condition_string, status, created_at, updated_at
	`, id, status).Scan(
		&updated.ID,
		&updated.RestaurantID,
		&updated.TeamID,
		&updated.ConditionString,
		&updated.Status,
		&updated.CreatedAt,
		&updated.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deal{}, ErrDealNotFound
	}
	if err != nil {
		return Deal{}, fmt.Errorf("update deal status: %w", err)
	}

	return updated, nil
}

func scanDeals(rows pgx.Rows) ([]Deal, error) {
	deals := make([]Deal, 0)
	for rows.Next() {
		var deal Deal
		if err := rows.Scan(
			&deal.ID,
			&deal.RestaurantID,
			&deal.TeamID,
			&deal.ConditionString,
			&deal.Status,
			&deal.CreatedAt,
			&deal.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		deals = append(deals, deal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deal rows: %w", err)
	}

	return deals, nil
}

// TryActivate performs the atomic insert-if-absent transition. The unique
// index on activation_key guarantees that under N concurrent calls exactly
// one insert lands; every other caller reads back the existing row.
func (r *PostgresRepository) TryActivate(ctx context.Context, key, dealID, gameID string, ttl time.Duration) (bool, activation.Activation, error) {
	if ttl <= 0 {
		return false, activation.Activation{}, activation.ErrInvalidTTL
	}

	now := time.Now().UTC()
	var created activation.Activation
	err := r.pool.QueryRow(ctx, `
		INSERT INTO activations (activation_key, deal_id, game_id, status, triggered_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (activation_key) DO NOTHING
		RETURNING activation_key, deal_id, game_id, status, triggered_at, expires_at
	`,
		key,
		dealID,
		gameID,
		activation.StatusTriggered,
		now,
		now.Add(ttl),
	).Scan(
		&created.Key,
		&created.DealID,
		&created.GameID,
		&created.Status,
		&created.TriggeredAt,
		&created.ExpiresAt,
	)
	if err == nil {
		return true, created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, activation.Activation{}, fmt.Errorf("try activate: %w", err)
	}

	// Conflict: another caller already handled this key.
	existing, err := r.GetActivation(ctx, key)
	if err != nil {
		return false, activation.Activation{}, fmt.Errorf("read existing activation: %w", err)
	}

	return false, existing, nil
}

// GetActivation returns the activation for key or activation.ErrNotFound.
func (r *PostgresRepository) GetActivation(ctx context.Context, key string) (activation.Activation, error) {
	var a activation.Activation
	err := r.pool.QueryRow(ctx, `
		SELECT activation_key, deal_id, game_id, status, triggered_at, expires_at
		FROM activations
		WHERE activation_key = $1
	`, key).Scan(
		&a.Key,
		&a.DealID,
		&a.GameID,
		&a.Status,
		&a.TriggeredAt,
		&a.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return activation.Activation{}, activation.ErrNotFound
	}
	if err != nil {
		return activation.Activation{}, fmt.Errorf("get activation: %w", err)
	}

	return a, nil
}

// Get implements [activation.Store].
func (r *PostgresRepository) Get(ctx context.Context, key string) (activation.Activation, error) {
	return r.GetActivation(ctx, key)
}

// ListActive returns activations still Triggered and unexpired at now.
// Expired rows are excluded here but retained for audit.
func (r *PostgresRepository) ListActive(ctx context.Context, now time.Time) ([]activation.Activation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT activation_key, deal_id, game_id, status, triggered_at, expires_at
		FROM activations
		WHERE status = $1 AND expires_at >= $2
		ORDER BY triggered_at, activation_key
	`, activation.StatusTriggered, now)
	if err != nil {
		return nil, fmt.Errorf("list active activations: %w", err)
	}
	defer rows.Close()

	return scanActivations(rows)
}

// ListActivations returns every activation, expired and reversed included.
func (r *PostgresRepository) ListActivations(ctx context.Context) ([]activation.Activation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT activation_key, deal_id, game_id, status, triggered_at, expires_at
		FROM activations
		ORDER BY triggered_at, activation_key
	`)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	defer rows.Close()

	return scanActivations(rows)
}

// ExpireDue transitions Triggered activations past their ExpiresAt to
// Expired and reports how many rows changed.
func (r *PostgresRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE activations
		SET status = $1
		WHERE status = $2 AND expires_at < $3
	`, activation.StatusExpired, activation.StatusTriggered, now)
	if err != nil {
		return 0, fmt.Errorf("expire due activations: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Reverse transitions a Triggered, unexpired activation to Reversed. The
// status guard in the WHERE clause makes the transition atomic; a row past
// its expiry is logically Expired already and cannot be reversed.
func (r *PostgresRepository) Reverse(ctx context.Context, key string, now time.Time) (activation.Activation, error) {
	var reversed activation.Activation
	err := r.pool.QueryRow(ctx, `
		UPDATE activations
		SET status = $2
		WHERE activation_key = $1 AND status = $3 AND expires_at >= $4
		RETURNING activation_key, deal_id, game_id, status, triggered_at, expires_at
	`, key, activation.StatusReversed, activation.StatusTriggered, now).Scan(
		&reversed.Key,
		&reversed.DealID,
		&reversed.GameID,
		&reversed.Status,
		&reversed.TriggeredAt,
		&reversed.ExpiresAt,
	)
	if err == nil {
		return reversed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return activation.Activation{}, fmt.Errorf("reverse activation: %w", err)
	}

	// Distinguish a missing row from one in a non-reversible state.
	if _, getErr := r.GetActivation(ctx, key); getErr != nil {
		return activation.Activation{}, getErr
	}

	return activation.Activation{}, activation.ErrNotReversible
}

func scanActivations(rows pgx.Rows) ([]activation.Activation, error) {
	activations := make([]activation.Activation, 0)
	for rows.Next() {
		var a activation.Activation
		if err := rows.Scan(
			&a.Key,
			&a.DealID,
			&a.GameID,
			&a.Status,
			&a.TriggeredAt,
			&a.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		activations = append(activations, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("activation rows: %w", err)
	}

	return activations, nil
}

var _ activation.Store = (*PostgresRepository)(nil)
