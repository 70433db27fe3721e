// Package service orchestrates deal evaluation: it matches incoming game
// facts against published deal conditions, drives the idempotent activation
// transition, and gates manual entry points behind the permission model.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/j-hartley/dealz/internal/activation"
	"github.com/j-hartley/dealz/internal/authz"
	"github.com/j-hartley/dealz/internal/condition"
	"github.com/j-hartley/dealz/internal/idempotency"
	"github.com/j-hartley/dealz/internal/metrics"
	"github.com/j-hartley/dealz/internal/notify"
	"github.com/j-hartley/dealz/internal/repository"
)

const (
	defaultActivationTTL = 24 * time.Hour
	notifyTimeout        = 5 * time.Second
)

// Repository is the persistence surface the service depends on. It is
// satisfied by [repository.PostgresRepository].
type Repository interface {
	CreateDeal(ctx context.Context, deal repository.Deal) (repository.Deal, error)
	GetDeal(ctx context.Context, id string) (repository.Deal, error)
	ListDeals(ctx context.Context) ([]repository.Deal, error)
	ListPublishedDealsByTeam(ctx context.Context, teamID string) ([]repository.Deal, error)
	UpdateDealStatus(ctx context.Context, id string, status repository.DealStatus) (repository.Deal, error)

	TryActivate(ctx context.Context, key, dealID, gameID string, ttl time.Duration) (bool, activation.Activation, error)
	GetActivation(ctx context.Context, key string) (activation.Activation, error)
	ListActive(ctx context.Context, now time.Time) ([]activation.Activation, error)
	ListActivations(ctx context.Context) ([]activation.Activation, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	Reverse(ctx context.Context, key string, now time.Time) (activation.Activation, error)

	InsertAuditLog(ctx context.Context, entry repository.AuditEntry) error
}

// ErrDealNotFound is the repository's not-found sentinel, re-exported so
// transport code can map it without importing the storage layer.
var ErrDealNotFound = repository.ErrDealNotFound

// Service evaluates facts against deals and manages activation state.
type Service struct {
	repo          Repository
	conditions    *condition.Cache
	notifier      notify.Notifier
	logger        *slog.Logger
	metrics       *metrics.Metrics
	activationTTL time.Duration
	tracer        trace.Tracer
	now           func() time.Time

	dealMu    sync.RWMutex
	dealCache map[string][]repository.Deal
}

// Option configures optional Service parameters.
type Option func(*Service)

// WithLogger sets the service logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithNotifier sets the activation event sink. Defaults to a log notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithActivationTTL sets the redemption window for new activations.
func WithActivationTTL(ttl time.Duration) Option {
	return func(s *Service) { s.activationTTL = ttl }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock injects the clock used for expiry decisions, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service over the given repository and condition cache.
func New(repo Repository, conditions *condition.Cache, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		conditions:    conditions,
		activationTTL: defaultActivationTTL,
		tracer:        otel.Tracer("dealz/service"),
		now:           time.Now,
		dealCache:     make(map[string][]repository.Deal),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger)
	}
	return s
}

// DealResult describes the outcome of evaluating one deal against a fact.
type DealResult struct {
	DealID        string `json:"dealId"`
	Matched       bool   `json:"matched"`
	Activated     bool   `json:"activated"`
	ActivationKey string `json:"activationKey,omitempty"`
}

// ProcessFact evaluates every published deal for the fact's team. Deals
// whose condition holds are activated exactly once per (deal, game) pair;
// retries with the same fact observe the existing activation instead of
// creating a second one. Storage errors on individual deals are joined and
// returned alongside the results that did succeed.
func (s *Service) ProcessFact(ctx context.Context, teamID string, fact condition.FactRecord) ([]DealResult, error) {
	ctx, span := s.tracer.Start(ctx, "ProcessFact",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.String("game_id", fact.GameID),
		))
	defer span.End()

	deals, err := s.publishedDeals(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list deals for team %s: %w", teamID, err)
	}

	results := make([]DealResult, 0, len(deals))
	var errs []error
	for _, deal := range deals {
		result, err := s.evaluateDeal(ctx, deal, fact)
		if err != nil {
			errs = append(errs, fmt.Errorf("deal %s: %w", deal.ID, err))
			continue
		}
		results = append(results, result)
	}

	return results, errors.Join(errs...)
}

// publishedDeals serves the fact hot path from an in-memory cache keyed by
// team. Entries fill lazily from storage; any deal mutation drops the whole
// cache so the next fact reloads.
func (s *Service) publishedDeals(ctx context.Context, teamID string) ([]repository.Deal, error) {
	s.dealMu.RLock()
	deals, ok := s.dealCache[teamID]
	s.dealMu.RUnlock()
	if ok {
		return deals, nil
	}

	deals, err := s.repo.ListPublishedDealsByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	s.dealMu.Lock()
	s.dealCache[teamID] = deals
	s.dealMu.Unlock()
	return deals, nil
}

func (s *Service) invalidateDealCache() {
	s.dealMu.Lock()
	s.dealCache = make(map[string][]repository.Deal)
	s.dealMu.Unlock()
}

func (s *Service) evaluateDeal(ctx context.Context, deal repository.Deal, fact condition.FactRecord) (DealResult, error) {
	pred, err := s.conditions.GetOrParse(deal.ConditionString)
	if err != nil {
		// A stored condition that no longer parses is a data problem, not a
		// request problem; surface it without failing the whole fact.
		if s.metrics != nil {
			s.metrics.ParseErrorsTotal.Inc()
		}
		s.logger.WarnContext(ctx, "stored condition failed to parse",
			slog.String("deal_id", deal.ID),
			slog.String("condition", deal.ConditionString),
			slog.String("error", err.Error()),
		)
		return DealResult{}, err
	}

	if missing := condition.MissingStats(pred, fact); len(missing) > 0 {
		if s.metrics != nil {
			s.metrics.MissingStatTotal.Inc()
		}
		s.logger.DebugContext(ctx, "fact missing referenced stats",
			slog.String("deal_id", deal.ID),
			slog.String("game_id", fact.GameID),
			slog.Any("stats", missing),
		)
	}

	matched := condition.Evaluate(pred, fact)
	if s.metrics != nil {
		s.metrics.RecordEvaluation(matched)
	}
	if !matched {
		return DealResult{DealID: deal.ID, Matched: false}, nil
	}

	key := idempotency.ValidationKey(deal.ID, fact.GameID, condition.Signature(deal.ConditionString))
	created, act, err := s.tryActivate(ctx, key, deal.ID, fact.GameID)
	if err != nil {
		return DealResult{}, err
	}

	if created {
		if s.metrics != nil {
			s.metrics.ActivationsCreated.Inc()
		}
		s.publish(ctx, act)
	} else if s.metrics != nil {
		s.metrics.DuplicateAttempts.Inc()
	}

	return DealResult{
		DealID:        deal.ID,
		Matched:       true,
		Activated:     created,
		ActivationKey: act.Key,
	}, nil
}

// tryActivate retries transient storage failures with the same key, which
// is safe: the key makes the insert idempotent.
func (s *Service) tryActivate(ctx context.Context, key, dealID, gameID string) (bool, activation.Activation, error) {
	var created bool
	var act activation.Activation

	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		created, act, err = s.repo.TryActivate(ctx, key, dealID, gameID, s.activationTTL)
		if err == nil {
			return nil
		}
		if errors.Is(err, activation.ErrInvalidTTL) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return false, activation.Activation{}, fmt.Errorf("activate %s: %w", key, err)
	}

	return created, act, nil
}

// publish delivers the activation event best effort. The event outlives the
// request context but gets its own deadline; a delivery failure is logged
// and never rolls back the activation.
func (s *Service) publish(ctx context.Context, act activation.Activation) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	event := notify.Event{
		DealID:        act.DealID,
		GameID:        act.GameID,
		ActivationKey: act.Key,
		TriggeredAt:   act.TriggeredAt,
		ExpiresAt:     act.ExpiresAt,
	}
	if err := s.notifier.Publish(pubCtx, event); err != nil {
		s.logger.WarnContext(ctx, "activation notification failed",
			slog.String("activation_key", act.Key),
			slog.String("error", err.Error()),
		)
	}
}

// ValidateCondition parses a condition string without persisting anything.
// It returns the normalized form, or the parse error naming the offending
// token.
func (s *Service) ValidateCondition(raw string) (string, error) {
	if _, err := condition.Parse(raw); err != nil {
		if s.metrics != nil {
			s.metrics.ParseErrorsTotal.Inc()
		}
		return "", err
	}
	return condition.Normalize(raw), nil
}

// CreateDeal validates the condition string and persists the deal. Requires
// the promotions write permission.
func (s *Service) CreateDeal(ctx context.Context, principal authz.Principal, deal repository.Deal) (repository.Deal, error) {
	if err := s.require(ctx, principal, authz.PermissionWritePromotions, "deal.create", deal.RestaurantID); err != nil {
		return repository.Deal{}, err
	}

	if _, err := condition.Parse(deal.ConditionString); err != nil {
		if s.metrics != nil {
			s.metrics.ParseErrorsTotal.Inc()
		}
		return repository.Deal{}, err
	}
	deal.ConditionString = condition.Normalize(deal.ConditionString)

	created, err := s.repo.CreateDeal(ctx, deal)
	if err != nil {
		return repository.Deal{}, err
	}
	s.invalidateDealCache()

	s.logger.InfoContext(ctx, "deal created",
		slog.String("deal_id", created.ID),
		slog.String("team_id", created.TeamID),
		slog.String("condition", created.ConditionString),
	)
	return created, nil
}

// GetDeal returns a single deal. Requires the promotions read permission.
func (s *Service) GetDeal(ctx context.Context, principal authz.Principal, id string) (repository.Deal, error) {
	if err := authz.Require(principal, authz.PermissionReadPromotions); err != nil {
		s.denied(ctx, principal, "deal.get", id)
		return repository.Deal{}, err
	}
	return s.repo.GetDeal(ctx, id)
}

// ListDeals returns all deals. Requires the promotions read permission.
func (s *Service) ListDeals(ctx context.Context, principal authz.Principal) ([]repository.Deal, error) {
	if err := authz.Require(principal, authz.PermissionReadPromotions); err != nil {
		s.denied(ctx, principal, "deal.list", "")
		return nil, err
	}
	return s.repo.ListDeals(ctx)
}

// UpdateDealStatus moves a deal through its lifecycle. Requires the
// promotions write permission.
func (s *Service) UpdateDealStatus(ctx context.Context, principal authz.Principal, id string, status repository.DealStatus) (repository.Deal, error) {
	if err := s.require(ctx, principal, authz.PermissionWritePromotions, "deal.status", id); err != nil {
		return repository.Deal{}, err
	}
	updated, err := s.repo.UpdateDealStatus(ctx, id, status)
	if err != nil {
		return repository.Deal{}, err
	}
	s.invalidateDealCache()
	return updated, nil
}

// GetActivation returns one activation by key. Requires the evidence read
// permission: an activation record is the evidence that a deal triggered.
func (s *Service) GetActivation(ctx context.Context, principal authz.Principal, key string) (activation.Activation, error) {
	if err := authz.Require(principal, authz.PermissionReadEvidence); err != nil {
		s.denied(ctx, principal, "activation.get", key)
		return activation.Activation{}, err
	}
	return s.repo.GetActivation(ctx, key)
}

// ListActivations returns activations, optionally only those still active.
// Requires the evidence read permission.
func (s *Service) ListActivations(ctx context.Context, principal authz.Principal, activeOnly bool) ([]activation.Activation, error) {
	if err := authz.Require(principal, authz.PermissionReadEvidence); err != nil {
		s.denied(ctx, principal, "activation.list", "")
		return nil, err
	}
	if activeOnly {
		return s.repo.ListActive(ctx, s.now())
	}
	return s.repo.ListActivations(ctx)
}

// ReverseActivation transitions a triggered activation to reversed. Requires
// the validation override permission; both allowed and denied attempts are
// written to the audit log.
func (s *Service) ReverseActivation(ctx context.Context, principal authz.Principal, key string) (activation.Activation, error) {
	if err := s.require(ctx, principal, authz.PermissionOverrideValidation, "activation.reverse", key); err != nil {
		return activation.Activation{}, err
	}

	reversed, err := s.repo.Reverse(ctx, key, s.now())
	if err != nil {
		return activation.Activation{}, err
	}

	s.audit(ctx, principal, "activation.reverse", key, true, "")
	s.logger.InfoContext(ctx, "activation reversed",
		slog.String("activation_key", key),
		slog.String("principal_id", principal.ID),
	)
	return reversed, nil
}

// ForceActivate creates an activation for a deal and game without evaluating
// the condition, using the same derived key as the normal path so a later
// organic trigger is a no-op. Requires the validation override permission.
func (s *Service) ForceActivate(ctx context.Context, principal authz.Principal, dealID, gameID string) (bool, activation.Activation, error) {
	if err := s.require(ctx, principal, authz.PermissionOverrideValidation, "activation.force", dealID); err != nil {
		return false, activation.Activation{}, err
	}

	deal, err := s.repo.GetDeal(ctx, dealID)
	if err != nil {
		return false, activation.Activation{}, err
	}

	key := idempotency.ValidationKey(deal.ID, gameID, condition.Signature(deal.ConditionString))
	created, act, err := s.tryActivate(ctx, key, deal.ID, gameID)
	if err != nil {
		return false, activation.Activation{}, err
	}

	s.audit(ctx, principal, "activation.force", key, true, fmt.Sprintf("game %s", gameID))
	if created {
		if s.metrics != nil {
			s.metrics.ActivationsCreated.Inc()
		}
		s.publish(ctx, act)
	}
	return created, act, nil
}

// SweepExpired transitions overdue activations to expired and reports the
// count. Called periodically by [RunSweeper].
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired activations: %w", err)
	}
	if expired > 0 {
		if s.metrics != nil {
			s.metrics.ActivationsExpired.Add(float64(expired))
		}
		s.logger.InfoContext(ctx, "expired activations", slog.Int64("count", expired))
	}
	if s.metrics != nil {
		s.metrics.ConditionCacheSize.Set(float64(s.conditions.Len()))
	}
	return expired, nil
}

// RunSweeper runs the expiry sweep every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// require checks perm and audits the outcome; denied attempts are recorded
// before the error is returned so the audit trail covers refusals too.
func (s *Service) require(ctx context.Context, principal authz.Principal, perm authz.Permission, action, resource string) error {
	if err := authz.Require(principal, perm); err != nil {
		s.denied(ctx, principal, action, resource)
		return err
	}
	return nil
}

func (s *Service) denied(ctx context.Context, principal authz.Principal, action, resource string) {
	if s.metrics != nil {
		s.metrics.PermissionDenials.Inc()
	}
	s.audit(ctx, principal, action, resource, false, "")
	s.logger.WarnContext(ctx, "permission denied",
		slog.String("principal_id", principal.ID),
		slog.String("role", string(principal.Role)),
		slog.String("action", action),
	)
}

func (s *Service) audit(ctx context.Context, principal authz.Principal, action, resource string, allowed bool, detail string) {
	entry := repository.AuditEntry{
		PrincipalID: principal.ID,
		Action:      action,
		Resource:    resource,
		Allowed:     allowed,
		Detail:      detail,
	}
	if err := s.repo.InsertAuditLog(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}
