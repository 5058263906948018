package ports

import (
	"context"
	"math/big"
)

// ChainQuerier is the read-only contract against one chain's RPC or indexer.
// Implementations must honor ctx cancellation; every method is a single
// outbound query with no retries of its own.
type ChainQuerier interface {
	// NativeBalance returns the native coin balance in base units.
	NativeBalance(ctx context.Context, address string) (*big.Int, error)

	// TokenBalance returns the fungible token balance in base units.
	TokenBalance(ctx context.Context, token, address string) (*big.Int, error)

	// NFTCount returns how many tokens of the collection the address owns.
	NFTCount(ctx context.Context, token, address string) (*big.Int, error)

	// NFTOwner returns the current owner of one specific token.
	NFTOwner(ctx context.Context, token string, tokenID *big.Int) (string, error)

	// FollowerCount returns the social-graph follower count of the address.
	FollowerCount(ctx context.Context, address string) (*big.Int, error)

	// IsFollowing reports whether follower follows followed.
	IsFollowing(ctx context.Context, follower, followed string) (bool, error)
}
