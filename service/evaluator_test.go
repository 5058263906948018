package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotob/curia-sub008/adapters/cache"
	"github.com/flotob/curia-sub008/adapters/store"
	"github.com/flotob/curia-sub008/core"
	"github.com/flotob/curia-sub008/ports"
)

const (
	testIdentity = "0x1111111111111111111111111111111111111111"
	testToken    = "0x2222222222222222222222222222222222222222"
	testNFT      = "0x3333333333333333333333333333333333333333"
)

// fakeQuerier is a canned in-memory chain backend.
type fakeQuerier struct {
	mu        sync.Mutex
	calls     int
	native    *big.Int
	tokens    map[string]*big.Int
	nftCounts map[string]*big.Int
	owners    map[string]string
	followers *big.Int
	follows   map[string]bool
	err       error
	block     bool
}

func (f *fakeQuerier) bump(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeQuerier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeQuerier) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	if err := f.bump(ctx); err != nil {
		return nil, err
	}
	return f.native, nil
}

func (f *fakeQuerier) TokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	if err := f.bump(ctx); err != nil {
		return nil, err
	}
	if b, ok := f.tokens[token]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeQuerier) NFTCount(ctx context.Context, token, address string) (*big.Int, error) {
	if err := f.bump(ctx); err != nil {
		return nil, err
	}
	if c, ok := f.nftCounts[token]; ok {
		return c, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeQuerier) NFTOwner(ctx context.Context, token string, tokenID *big.Int) (string, error) {
	if err := f.bump(ctx); err != nil {
		return "", err
	}
	return f.owners[tokenID.String()], nil
}

func (f *fakeQuerier) FollowerCount(ctx context.Context, address string) (*big.Int, error) {
	if err := f.bump(ctx); err != nil {
		return nil, err
	}
	return f.followers, nil
}

func (f *fakeQuerier) IsFollowing(ctx context.Context, follower, followed string) (bool, error) {
	if err := f.bump(ctx); err != nil {
		return false, err
	}
	return f.follows[follower+">"+followed], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEvaluator(t *testing.T, chains map[core.CategoryType]ports.ChainQuerier, cfg EvaluatorConfig) (*Evaluator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewEvaluator(chains, st, cache.NewMemoryCache(), nil, testLogger(), cfg), st
}

// eth: enough native balance. up: no NFT.
func twoCategoryLock(requireAll bool) *core.Lock {
	return &core.Lock{
		ID:         "lock-1",
		RequireAll: requireAll,
		Categories: []core.Category{
			{
				Type:       core.CategoryEthereumProfile,
				Enabled:    true,
				RequireAll: true,
				Requirements: []core.Requirement{
					{Kind: core.KindNativeBalance, MinAmount: "1"},
				},
			},
			{
				Type:       core.CategoryUniversalProfile,
				Enabled:    true,
				RequireAll: true,
				Requirements: []core.Requirement{
					{Kind: core.KindNFTOwnership, TokenAddress: testNFT},
				},
			},
		},
	}
}

func twoCategoryChains() map[core.CategoryType]ports.ChainQuerier {
	return map[core.CategoryType]ports.ChainQuerier{
		core.CategoryEthereumProfile: &fakeQuerier{native: mustAmount("2", 18)},
		core.CategoryUniversalProfile: &fakeQuerier{
			nftCounts: map[string]*big.Int{testNFT: big.NewInt(0)},
		},
	}
}

func mustAmount(s string, decimals int32) *big.Int {
	v, err := core.ParseAmount(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

func decimalsOf(d int32) *int32 {
	return &d
}

func TestEvaluate_RequireAllAcrossCategories(t *testing.T) {
	e, _ := newTestEvaluator(t, twoCategoryChains(), EvaluatorConfig{})

	decision, err := e.Evaluate(context.Background(), testIdentity, twoCategoryLock(true))
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	require.Len(t, decision.Categories, 2)
	assert.True(t, decision.Categories[0].Met)
	assert.False(t, decision.Categories[1].Met)
}

func TestEvaluate_RequireAnyAcrossCategories(t *testing.T) {
	e, _ := newTestEvaluator(t, twoCategoryChains(), EvaluatorConfig{})

	decision, err := e.Evaluate(context.Background(), testIdentity, twoCategoryLock(false))
	require.NoError(t, err)
	assert.True(t, decision.Granted)
}

func TestEvaluate_CategoryFulfillmentModes(t *testing.T) {
	querier := &fakeQuerier{
		native: mustAmount("2", 18),
		tokens: map[string]*big.Int{testToken: big.NewInt(0)},
	}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: querier}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-2",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{Kind: core.KindNativeBalance, MinAmount: "1"},
				{Kind: core.KindTokenBalance, MinAmount: "10", TokenAddress: testToken},
			},
		}},
	}

	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.False(t, decision.Granted, "ALL with one unmet requirement")

	lock.Categories[0].RequireAll = false
	decision, err = e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.True(t, decision.Granted, "ANY with one met requirement")
}

func TestEvaluate_EmptyCategoryNotMet(t *testing.T) {
	chains := map[core.CategoryType]ports.ChainQuerier{
		core.CategoryEthereumProfile: &fakeQuerier{},
	}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-3",
		RequireAll: false,
		Categories: []core.Category{{
			Type:    core.CategoryEthereumProfile,
			Enabled: true,
		}},
	}
	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.False(t, decision.Categories[0].Met)
}

func TestEvaluate_NoEnabledCategoriesNotGranted(t *testing.T) {
	e, _ := newTestEvaluator(t, nil, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-4",
		RequireAll: true,
		Categories: []core.Category{{
			Type:    core.CategoryEthereumProfile,
			Enabled: false,
			Requirements: []core.Requirement{
				{Kind: core.KindNativeBalance, MinAmount: "1"},
			},
		}},
	}
	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Empty(t, decision.Categories)
}

func TestEvaluate_DisabledCategoryExcludedFromAll(t *testing.T) {
	e, _ := newTestEvaluator(t, twoCategoryChains(), EvaluatorConfig{})

	// Disabling the failing category must not count against ALL, and the
	// remaining met category carries the decision.
	lock := twoCategoryLock(true)
	lock.Categories[1].Enabled = false

	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	require.Len(t, decision.Categories, 1)
}

func TestEvaluate_VerifierFailureFailsClosed(t *testing.T) {
	failing := &fakeQuerier{err: errors.New("rpc: connection refused")}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: failing}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-5",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{Kind: core.KindNativeBalance, MinAmount: "1"},
			},
		}},
	}
	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.False(t, decision.Granted)

	outcome := decision.Categories[0].Outcomes[0]
	assert.False(t, outcome.IsMet)
	assert.Contains(t, outcome.Error, "verifier unavailable")
}

func TestEvaluate_PartialFailureIsolation(t *testing.T) {
	// One requirement fails, the other succeeds; ANY still grants and the
	// report covers both.
	querier := &fakeQuerier{native: mustAmount("5", 18)}
	failingToken := &fakeQuerier{err: errors.New("timeout")}
	chains := map[core.CategoryType]ports.ChainQuerier{
		core.CategoryEthereumProfile:  querier,
		core.CategoryUniversalProfile: failingToken,
	}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := twoCategoryLock(false)
	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	require.Len(t, decision.Categories, 2)
	assert.NotEmpty(t, decision.Categories[1].Outcomes[0].Error)
}

func TestEvaluate_MalformedIdentityNeverReachesNetwork(t *testing.T) {
	querier := &fakeQuerier{native: mustAmount("5", 18)}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: querier}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-6",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{Kind: core.KindNativeBalance, MinAmount: "1"},
			},
		}},
	}
	decision, err := e.Evaluate(context.Background(), "not-an-address", lock)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Contains(t, decision.Categories[0].Outcomes[0].Error, "malformed input")
	assert.Zero(t, querier.callCount())
}

func TestEvaluate_ReportPreservesDeclaredOrder(t *testing.T) {
	querier := &fakeQuerier{
		native:    mustAmount("5", 18),
		followers: big.NewInt(50),
		tokens:    map[string]*big.Int{testToken: big.NewInt(1)},
	}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: querier}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-7",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: false,
			Requirements: []core.Requirement{
				{ID: "first", Kind: core.KindNativeBalance, MinAmount: "1"},
				{ID: "second", Kind: core.KindMinimumFollowers, MinFollowers: 10},
				{ID: "third", Kind: core.KindTokenBalance, MinAmount: "0.000001", Decimals: decimalsOf(6), TokenAddress: testToken},
			},
		}},
	}

	for i := 0; i < 5; i++ {
		decision, err := e.Evaluate(context.Background(), testIdentity, lock)
		require.NoError(t, err)
		outcomes := decision.Categories[0].Outcomes
		require.Len(t, outcomes, 3)
		assert.Equal(t, "first", outcomes[0].RequirementID)
		assert.Equal(t, "second", outcomes[1].RequirementID)
		assert.Equal(t, "third", outcomes[2].RequirementID)
	}
}

func TestEvaluate_TimeoutAbortsWholeEvaluation(t *testing.T) {
	blocking := &fakeQuerier{block: true}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: blocking}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{Timeout: 50 * time.Millisecond})

	lock := &core.Lock{
		ID:         "lock-8",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{Kind: core.KindNativeBalance, MinAmount: "1"},
			},
		}},
	}
	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.Error(t, err)
	assert.Nil(t, decision, "partial outcomes must be discarded")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvaluateLock_CacheHitBypassesChainCalls(t *testing.T) {
	querier := &fakeQuerier{native: mustAmount("5", 18)}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: querier}
	e, st := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-9",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{Kind: core.KindNativeBalance, MinAmount: "1"},
			},
		}},
	}
	require.NoError(t, st.PutLock(context.Background(), lock))

	first, err := e.EvaluateLock(context.Background(), testIdentity, "lock-9")
	require.NoError(t, err)
	assert.True(t, first.Granted)
	callsAfterFirst := querier.callCount()

	second, err := e.EvaluateLock(context.Background(), testIdentity, "lock-9")
	require.NoError(t, err)
	assert.True(t, second.Granted)
	assert.Equal(t, callsAfterFirst, querier.callCount(), "cache hit must not re-query the chain")
}

func TestEvaluateLock_UnknownLock(t *testing.T) {
	e, _ := newTestEvaluator(t, nil, EvaluatorConfig{})
	_, err := e.EvaluateLock(context.Background(), testIdentity, "missing")
	require.ErrorIs(t, err, core.ErrLockNotFound)
}

func TestEvaluate_NFTOwnershipVariants(t *testing.T) {
	querier := &fakeQuerier{
		nftCounts: map[string]*big.Int{testNFT: big.NewInt(3)},
		owners:    map[string]string{"7": testIdentity},
	}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: querier}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-10",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{ID: "count", Kind: core.KindNFTOwnership, TokenAddress: testNFT, MinCount: 2},
				{ID: "specific", Kind: core.KindNFTOwnership, TokenAddress: testNFT, TokenID: "7"},
				{ID: "other", Kind: core.KindNFTOwnership, TokenAddress: testNFT, TokenID: "8"},
			},
		}},
	}
	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	outcomes := decision.Categories[0].Outcomes
	assert.True(t, outcomes[0].IsMet)
	assert.True(t, outcomes[1].IsMet)
	assert.False(t, outcomes[2].IsMet, "token 8 has no recorded owner")
	assert.False(t, decision.Granted)
}

func TestEvaluate_DoesNotMutateCallerLock(t *testing.T) {
	chains := map[core.CategoryType]ports.ChainQuerier{
		core.CategoryEthereumProfile: &fakeQuerier{native: mustAmount("2", 18)},
	}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-12",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{Kind: core.KindNativeBalance, MinAmount: "1"},
			},
		}},
	}

	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.NotEmpty(t, decision.Categories[0].Outcomes[0].RequirementID)
	assert.Empty(t, lock.Categories[0].Requirements[0].ID,
		"evaluation must normalize its own copy, not the caller's document")
}

func TestEvaluateLock_ConcurrentSharedLock(t *testing.T) {
	querier := &fakeQuerier{native: mustAmount("5", 18)}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: querier}
	e, st := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-13",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{Kind: core.KindNativeBalance, MinAmount: "1"},
				{Kind: core.KindNativeBalance, MinAmount: "2"},
			},
		}},
	}
	require.NoError(t, st.PutLock(context.Background(), lock))

	// Distinct identities force every call through a real evaluation of the
	// same stored document.
	const callers = 64
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity := fmt.Sprintf("0x%040x", i+1)
			_, errs[i] = e.EvaluateLock(context.Background(), identity, "lock-13")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := st.GetLock(context.Background(), "lock-13")
	require.NoError(t, err)
	for _, req := range stored.Categories[0].Requirements {
		assert.Empty(t, req.ID, "evaluation must never write into the stored document")
	}
}

func TestEvaluate_ZeroDecimalToken(t *testing.T) {
	querier := &fakeQuerier{tokens: map[string]*big.Int{testToken: big.NewInt(5)}}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryEthereumProfile: querier}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-14",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryEthereumProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{Kind: core.KindTokenBalance, MinAmount: "5", Decimals: decimalsOf(0), TokenAddress: testToken},
			},
		}},
	}
	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	assert.True(t, decision.Granted, "a zero-decimal token's threshold is taken literally")
}

func TestEvaluate_SocialRequirements(t *testing.T) {
	other := "0x4444444444444444444444444444444444444444"
	querier := &fakeQuerier{
		followers: big.NewInt(150),
		follows:   map[string]bool{other + ">" + testIdentity: true},
	}
	chains := map[core.CategoryType]ports.ChainQuerier{core.CategoryUniversalProfile: querier}
	e, _ := newTestEvaluator(t, chains, EvaluatorConfig{})

	lock := &core.Lock{
		ID:         "lock-11",
		RequireAll: true,
		Categories: []core.Category{{
			Type:       core.CategoryUniversalProfile,
			Enabled:    true,
			RequireAll: true,
			Requirements: []core.Requirement{
				{ID: "followers", Kind: core.KindMinimumFollowers, MinFollowers: 100},
				{ID: "followed", Kind: core.KindFollowedBy, Address: other},
				{ID: "follows", Kind: core.KindFollowing, Address: other},
			},
		}},
	}
	decision, err := e.Evaluate(context.Background(), testIdentity, lock)
	require.NoError(t, err)
	outcomes := decision.Categories[0].Outcomes
	assert.True(t, outcomes[0].IsMet)
	assert.True(t, outcomes[1].IsMet)
	assert.False(t, outcomes[2].IsMet, "identity does not follow the counterparty")
}
