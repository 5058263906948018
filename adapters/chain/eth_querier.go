package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal read-only fragments of the token and follower-registry interfaces.
// LSP7/LSP8 expose the same balanceOf shape, so one querier serves both the
// Ethereum and LUKSO category types.
const (
	erc20ABI = `[{"name":"balanceOf","type":"function","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]}]`

	erc721ABI = `[{"name":"balanceOf","type":"function","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
		{"name":"ownerOf","type":"function","stateMutability":"view",
		"inputs":[{"name":"tokenId","type":"uint256"}],
		"outputs":[{"name":"","type":"address"}]}]`

	followerABI = `[{"name":"followerCount","type":"function","stateMutability":"view",
		"inputs":[{"name":"addr","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
		{"name":"isFollowing","type":"function","stateMutability":"view",
		"inputs":[{"name":"follower","type":"address"},{"name":"addr","type":"address"}],
		"outputs":[{"name":"","type":"bool"}]}]`
)

// ContractBackend is the slice of the RPC client the querier needs.
// *ethclient.Client satisfies it.
type ContractBackend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// EthQuerier implements ports.ChainQuerier against one EVM chain's RPC
// endpoint. All calls are read-only; retries belong to the caller's timeout
// budget, not here.
type EthQuerier struct {
	backend  ContractBackend
	registry common.Address
	hasReg   bool

	erc20     abi.ABI
	erc721    abi.ABI
	followers abi.ABI
}

// NewEthQuerier wraps an RPC backend. followerRegistry may be empty when the
// chain has no social-graph registry; follower requirements then fail as
// unavailable.
func NewEthQuerier(backend ContractBackend, followerRegistry string) (*EthQuerier, error) {
	q := &EthQuerier{backend: backend}

	var err error
	if q.erc20, err = abi.JSON(strings.NewReader(erc20ABI)); err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	if q.erc721, err = abi.JSON(strings.NewReader(erc721ABI)); err != nil {
		return nil, fmt.Errorf("failed to parse ERC-721 ABI: %w", err)
	}
	if q.followers, err = abi.JSON(strings.NewReader(followerABI)); err != nil {
		return nil, fmt.Errorf("failed to parse follower registry ABI: %w", err)
	}

	if followerRegistry != "" {
		if !common.IsHexAddress(followerRegistry) {
			return nil, fmt.Errorf("invalid follower registry address %q", followerRegistry)
		}
		q.registry = common.HexToAddress(followerRegistry)
		q.hasReg = true
	}
	return q, nil
}

// Dial connects to an RPC endpoint and wraps it in a querier.
func Dial(ctx context.Context, rpcURL, followerRegistry string) (*EthQuerier, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	return NewEthQuerier(client, followerRegistry)
}

func (q *EthQuerier) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	balance, err := q.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("balance query failed: %w", err)
	}
	return balance, nil
}

func (q *EthQuerier) TokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	out, err := q.call(ctx, q.erc20, common.HexToAddress(token), "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (q *EthQuerier) NFTCount(ctx context.Context, token, address string) (*big.Int, error) {
	out, err := q.call(ctx, q.erc721, common.HexToAddress(token), "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (q *EthQuerier) NFTOwner(ctx context.Context, token string, tokenID *big.Int) (string, error) {
	out, err := q.call(ctx, q.erc721, common.HexToAddress(token), "ownerOf", tokenID)
	if err != nil {
		return "", err
	}
	return out[0].(common.Address).Hex(), nil
}

func (q *EthQuerier) FollowerCount(ctx context.Context, address string) (*big.Int, error) {
	if !q.hasReg {
		return nil, fmt.Errorf("no follower registry configured for this chain")
	}
	out, err := q.call(ctx, q.followers, q.registry, "followerCount", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (q *EthQuerier) IsFollowing(ctx context.Context, follower, followed string) (bool, error) {
	if !q.hasReg {
		return false, fmt.Errorf("no follower registry configured for this chain")
	}
	out, err := q.call(ctx, q.followers, q.registry, "isFollowing",
		common.HexToAddress(follower), common.HexToAddress(followed))
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (q *EthQuerier) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	raw, err := q.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}
