package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerAddr    = "0x1111111111111111111111111111111111111111"
	contractAddr = "0x2222222222222222222222222222222222222222"
	registryAddr = "0x3333333333333333333333333333333333333333"
)

// fakeBackend replays canned responses keyed by the 4-byte selector of the
// incoming call.
type fakeBackend struct {
	balance   *big.Int
	responses map[string][]byte
	err       error
}

func (b *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.balance, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	resp, ok := b.responses[string(call.Data[:4])]
	if !ok {
		return nil, errors.New("unexpected call")
	}
	return resp, nil
}

func newQuerierWithBackend(t *testing.T, backend *fakeBackend) *EthQuerier {
	t.Helper()
	q, err := NewEthQuerier(backend, registryAddr)
	require.NoError(t, err)
	return q
}

func TestNativeBalance(t *testing.T) {
	q := newQuerierWithBackend(t, &fakeBackend{balance: big.NewInt(42)})

	balance, err := q.NativeBalance(context.Background(), ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), balance)
}

func TestNativeBalance_BackendError(t *testing.T) {
	q := newQuerierWithBackend(t, &fakeBackend{err: errors.New("rpc down")})

	_, err := q.NativeBalance(context.Background(), ownerAddr)
	require.ErrorContains(t, err, "rpc down")
}

func TestTokenBalance(t *testing.T) {
	backend := &fakeBackend{responses: map[string][]byte{}}
	q := newQuerierWithBackend(t, backend)

	method := q.erc20.Methods["balanceOf"]
	out, err := method.Outputs.Pack(big.NewInt(777))
	require.NoError(t, err)
	backend.responses[string(method.ID)] = out

	balance, err := q.TokenBalance(context.Background(), contractAddr, ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(777), balance)
}

func TestNFTOwner(t *testing.T) {
	backend := &fakeBackend{responses: map[string][]byte{}}
	q := newQuerierWithBackend(t, backend)

	method := q.erc721.Methods["ownerOf"]
	out, err := method.Outputs.Pack(common.HexToAddress(ownerAddr))
	require.NoError(t, err)
	backend.responses[string(method.ID)] = out

	owner, err := q.NFTOwner(context.Background(), contractAddr, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(ownerAddr).Hex(), owner)
}

func TestIsFollowing(t *testing.T) {
	backend := &fakeBackend{responses: map[string][]byte{}}
	q := newQuerierWithBackend(t, backend)

	method := q.followers.Methods["isFollowing"]
	out, err := method.Outputs.Pack(true)
	require.NoError(t, err)
	backend.responses[string(method.ID)] = out

	follows, err := q.IsFollowing(context.Background(), ownerAddr, contractAddr)
	require.NoError(t, err)
	assert.True(t, follows)
}

func TestFollowerQueries_NoRegistryConfigured(t *testing.T) {
	q, err := NewEthQuerier(&fakeBackend{}, "")
	require.NoError(t, err)

	_, err = q.FollowerCount(context.Background(), ownerAddr)
	require.ErrorContains(t, err, "no follower registry")

	_, err = q.IsFollowing(context.Background(), ownerAddr, contractAddr)
	require.ErrorContains(t, err, "no follower registry")
}

func TestNewEthQuerier_BadRegistryAddress(t *testing.T) {
	_, err := NewEthQuerier(&fakeBackend{}, "not-an-address")
	require.Error(t, err)
}
