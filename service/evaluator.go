package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flotob/curia-sub008/core"
	"github.com/flotob/curia-sub008/ports"
)

const (
	// DefaultEvaluationTimeout bounds one whole lock evaluation, including
	// every outbound chain call it fans out to.
	DefaultEvaluationTimeout = 10 * time.Second

	// DefaultVerdictTTL is deliberately short: on-chain balances change.
	DefaultVerdictTTL = 60 * time.Second

	// DefaultMaxChainCalls caps concurrent outbound chain queries per
	// evaluation so slow upstream providers are not overwhelmed.
	DefaultMaxChainCalls = 8
)

// EvaluatorConfig tunes evaluation limits. Zero values fall back to defaults.
type EvaluatorConfig struct {
	Timeout       time.Duration
	VerdictTTL    time.Duration
	MaxChainCalls int
}

// Evaluator decides whether an identity satisfies a lock policy. It is
// stateless per call; everything it retains between calls lives in the
// verdict cache.
type Evaluator struct {
	chains map[core.CategoryType]ports.ChainQuerier
	locks  ports.LockStore
	cache  ports.VerdictCache
	events ports.EventPublisher
	log    *slog.Logger

	timeout       time.Duration
	verdictTTL    time.Duration
	maxChainCalls int
}

// NewEvaluator creates a lock policy evaluator. chains maps each category
// type to the querier for its ecosystem.
func NewEvaluator(
	chains map[core.CategoryType]ports.ChainQuerier,
	locks ports.LockStore,
	cache ports.VerdictCache,
	events ports.EventPublisher,
	log *slog.Logger,
	cfg EvaluatorConfig,
) *Evaluator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEvaluationTimeout
	}
	if cfg.VerdictTTL <= 0 {
		cfg.VerdictTTL = DefaultVerdictTTL
	}
	if cfg.MaxChainCalls <= 0 {
		cfg.MaxChainCalls = DefaultMaxChainCalls
	}
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		chains:        chains,
		locks:         locks,
		cache:         cache,
		events:        events,
		log:           log,
		timeout:       cfg.Timeout,
		verdictTTL:    cfg.VerdictTTL,
		maxChainCalls: cfg.MaxChainCalls,
	}
}

// EvaluateLock resolves the lock by id and evaluates it for the identity,
// reading through the verdict cache. A cache hit bypasses all chain calls.
func (e *Evaluator) EvaluateLock(ctx context.Context, identity, lockID string) (*core.LockDecision, error) {
	if cached, ok, err := e.cache.Get(ctx, identity, lockID); err != nil {
		e.log.Warn("verdict cache read failed", "lock", lockID, "err", err)
	} else if ok {
		return cached, nil
	}

	lock, err := e.locks.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}

	decision, err := e.Evaluate(ctx, identity, lock)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Put(ctx, identity, lockID, decision, e.verdictTTL); err != nil {
		e.log.Warn("verdict cache write failed", "lock", lockID, "err", err)
	}
	if e.events != nil {
		if err := e.events.PublishAccessEvaluated(ctx, decision); err != nil {
			e.log.Warn("failed to publish access event", "lock", lockID, "err", err)
		}
	}
	return decision, nil
}

// Evaluate runs the full lock policy for one identity. Enabled categories are
// evaluated concurrently; each category fans out one task per requirement,
// bounded by a shared semaphore. The call is all-or-nothing: if the timeout
// fires, partial outcomes are discarded and an error is returned.
func (e *Evaluator) Evaluate(ctx context.Context, identity string, lock *core.Lock) (*core.LockDecision, error) {
	// Normalization assigns requirement IDs; work on a clone so the caller's
	// document (and anything the store shares with it) is never written to.
	lock = lock.Clone()
	lock.Normalize()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	enabled := lock.EnabledCategories()
	results := make([]core.CategoryResult, len(enabled))
	sem := make(chan struct{}, e.maxChainCalls)

	g, gctx := errgroup.WithContext(ctx)
	for i := range enabled {
		i, cat := i, enabled[i]
		g.Go(func() error {
			res, err := e.evaluateCategory(gctx, identity, cat, sem)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluation of lock %s aborted: %w", lock.ID, err)
	}

	verdicts := make([]bool, len(results))
	for i, res := range results {
		verdicts[i] = res.Met
	}

	decision := &core.LockDecision{
		LockID:      lock.ID,
		Identity:    identity,
		Granted:     core.CombineVerdicts(lock.RequireAll, verdicts),
		Categories:  results,
		EvaluatedAt: time.Now().UTC(),
	}
	e.log.Debug("lock evaluated",
		"lock", lock.ID, "identity", identity, "granted", decision.Granted)
	return decision, nil
}

// evaluateCategory collects every requirement outcome before folding the
// verdict. It never short-circuits: the caller needs the complete report,
// and the reported order is the lock's declared order.
func (e *Evaluator) evaluateCategory(ctx context.Context, identity string, cat core.Category, sem chan struct{}) (*core.CategoryResult, error) {
	querier := e.chains[cat.Type]
	outcomes := make([]core.VerificationOutcome, len(cat.Requirements))

	g, gctx := errgroup.WithContext(ctx)
	for i := range cat.Requirements {
		i, req := i, cat.Requirements[i]
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}
			outcomes[i] = e.verifyRequirement(gctx, querier, identity, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	verdicts := make([]bool, len(outcomes))
	for i, out := range outcomes {
		verdicts[i] = out.IsMet
	}
	return &core.CategoryResult{
		Type:       cat.Type,
		Met:        core.CombineVerdicts(cat.RequireAll, verdicts),
		RequireAll: cat.RequireAll,
		Outcomes:   outcomes,
	}, nil
}

// verifyRequirement dispatches one requirement to its verifier. Network and
// timeout failures come back as unmet outcomes with a populated error, never
// as success: the security bias is fail-closed. Malformed input fails before
// any network call.
func (e *Evaluator) verifyRequirement(ctx context.Context, querier ports.ChainQuerier, identity string, req core.Requirement) core.VerificationOutcome {
	out := core.VerificationOutcome{RequirementID: req.ID}

	if !core.ValidAddress(identity) {
		out.Error = fmt.Sprintf("%v: identity %q is not a valid address", core.ErrMalformedInput, identity)
		return out
	}
	if err := req.Validate(); err != nil {
		out.Error = err.Error()
		return out
	}
	if querier == nil {
		out.Error = fmt.Sprintf("%v: no querier configured for this category", core.ErrVerifierUnavailable)
		return out
	}

	switch req.Kind {
	case core.KindNativeBalance:
		min, err := core.ParseAmount(req.MinAmount, req.AmountDecimals())
		if err != nil {
			out.Error = err.Error()
			return out
		}
		balance, err := querier.NativeBalance(ctx, identity)
		if err != nil {
			return e.unavailable(out, req, err)
		}
		out.CurrentValue = balance.String()
		out.IsMet = balance.Cmp(min) >= 0

	case core.KindTokenBalance:
		min, err := core.ParseAmount(req.MinAmount, req.AmountDecimals())
		if err != nil {
			out.Error = err.Error()
			return out
		}
		balance, err := querier.TokenBalance(ctx, req.TokenAddress, identity)
		if err != nil {
			return e.unavailable(out, req, err)
		}
		out.CurrentValue = balance.String()
		out.IsMet = balance.Cmp(min) >= 0

	case core.KindNFTOwnership:
		if req.TokenID != "" {
			tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
			if !ok {
				out.Error = fmt.Sprintf("%v: tokenId %q is not a decimal integer", core.ErrMalformedInput, req.TokenID)
				return out
			}
			owner, err := querier.NFTOwner(ctx, req.TokenAddress, tokenID)
			if err != nil {
				return e.unavailable(out, req, err)
			}
			out.CurrentValue = owner
			out.IsMet = strings.EqualFold(owner, identity)
		} else {
			count, err := querier.NFTCount(ctx, req.TokenAddress, identity)
			if err != nil {
				return e.unavailable(out, req, err)
			}
			minCount := req.MinCount
			if minCount == 0 {
				minCount = 1
			}
			out.CurrentValue = count.String()
			out.IsMet = count.Cmp(new(big.Int).SetUint64(minCount)) >= 0
		}

	case core.KindMinimumFollowers:
		count, err := querier.FollowerCount(ctx, identity)
		if err != nil {
			return e.unavailable(out, req, err)
		}
		out.CurrentValue = count.String()
		out.IsMet = count.Cmp(new(big.Int).SetUint64(req.MinFollowers)) >= 0

	case core.KindFollowedBy:
		follows, err := querier.IsFollowing(ctx, req.Address, identity)
		if err != nil {
			return e.unavailable(out, req, err)
		}
		out.CurrentValue = fmt.Sprintf("%t", follows)
		out.IsMet = follows

	case core.KindFollowing:
		follows, err := querier.IsFollowing(ctx, identity, req.Address)
		if err != nil {
			return e.unavailable(out, req, err)
		}
		out.CurrentValue = fmt.Sprintf("%t", follows)
		out.IsMet = follows
	}

	return out
}

func (e *Evaluator) unavailable(out core.VerificationOutcome, req core.Requirement, err error) core.VerificationOutcome {
	e.log.Warn("chain query failed", "requirement", req.ID, "kind", req.Kind, "err", err)
	out.IsMet = false
	out.Error = fmt.Sprintf("%v: %v", core.ErrVerifierUnavailable, err)
	return out
}
