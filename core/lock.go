package core

import (
	"fmt"
	"strings"
)

// RequirementKind discriminates the closed set of requirement variants.
// The string values are the discriminants used in stored lock documents.
type RequirementKind string

const (
	KindNativeBalance    RequirementKind = "native_balance"
	KindTokenBalance     RequirementKind = "token_balance"
	KindNFTOwnership     RequirementKind = "nft_ownership"
	KindMinimumFollowers RequirementKind = "minimum_followers"
	KindFollowedBy       RequirementKind = "followed_by"
	KindFollowing        RequirementKind = "following"
)

// CategoryType selects the verification ecosystem a category is scoped to.
type CategoryType string

const (
	CategoryEthereumProfile  CategoryType = "ethereum_profile"
	CategoryUniversalProfile CategoryType = "universal_profile"
)

// Requirement is one concrete gating condition. It is a tagged variant: Kind
// selects which parameter fields are meaningful. Requirements are immutable
// value objects once a lock document is stored.
type Requirement struct {
	ID   string          `json:"id,omitempty"`
	Kind RequirementKind `json:"type"`

	// MinAmount is a human-readable decimal amount ("1.5"), converted to
	// base units with Decimals before comparison. Used by native_balance
	// and token_balance. Nil Decimals means the 18-decimal chain default;
	// an explicit 0 is honored for zero-decimal tokens.
	MinAmount string `json:"minAmount,omitempty"`
	Decimals  *int32 `json:"decimals,omitempty"`

	// TokenAddress is the contract address for token_balance and
	// nft_ownership requirements.
	TokenAddress string `json:"tokenAddress,omitempty"`

	// TokenID pins nft_ownership to one specific token. Empty means any
	// token of the collection counts.
	TokenID string `json:"tokenId,omitempty"`

	// MinCount is the minimum number of owned tokens for nft_ownership
	// without a TokenID. Zero means one.
	MinCount uint64 `json:"minCount,omitempty"`

	// MinFollowers is the threshold for minimum_followers.
	MinFollowers uint64 `json:"minFollowers,omitempty"`

	// Address is the counterparty for followed_by and following.
	Address string `json:"address,omitempty"`
}

// Category groups requirements belonging to one verification ecosystem.
type Category struct {
	Type         CategoryType  `json:"type"`
	Enabled      bool          `json:"enabled"`
	RequireAll   bool          `json:"requireAll"`
	Requirements []Requirement `json:"requirements"`
}

// Lock is a named, reusable access policy. RequireAll selects the fulfillment
// mode across categories: every enabled category must be met, or any one.
type Lock struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	RequireAll bool       `json:"requireAll"`
	Categories []Category `json:"categories"`
}

// Validate checks structural soundness of a lock document.
func (l *Lock) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("%w: lock id is required", ErrMalformedInput)
	}
	for i := range l.Categories {
		cat := &l.Categories[i]
		switch cat.Type {
		case CategoryEthereumProfile, CategoryUniversalProfile:
		default:
			return fmt.Errorf("%w: unknown category type %q", ErrMalformedInput, cat.Type)
		}
		for j := range cat.Requirements {
			if err := cat.Requirements[j].Validate(); err != nil {
				return fmt.Errorf("category %s requirement %d: %w", cat.Type, j, err)
			}
		}
	}
	return nil
}

// Normalize assigns stable identifiers to requirements that were stored
// without one, so evaluation reports can reference every requirement.
func (l *Lock) Normalize() {
	for i := range l.Categories {
		cat := &l.Categories[i]
		for j := range cat.Requirements {
			if cat.Requirements[j].ID == "" {
				cat.Requirements[j].ID = fmt.Sprintf("%s:%d", cat.Type, j)
			}
		}
	}
}

// Clone returns a copy with its own category and requirement slices.
// Evaluation normalizes a clone, so stored documents are never written to.
func (l *Lock) Clone() *Lock {
	out := *l
	out.Categories = make([]Category, len(l.Categories))
	for i, cat := range l.Categories {
		cat.Requirements = append([]Requirement(nil), cat.Requirements...)
		out.Categories[i] = cat
	}
	return &out
}

// EnabledCategories returns the enabled categories in declaration order.
func (l *Lock) EnabledCategories() []Category {
	out := make([]Category, 0, len(l.Categories))
	for _, cat := range l.Categories {
		if cat.Enabled {
			out = append(out, cat)
		}
	}
	return out
}

// Validate checks that the requirement carries the parameters its kind needs.
func (r *Requirement) Validate() error {
	switch r.Kind {
	case KindNativeBalance:
		if r.MinAmount == "" {
			return fmt.Errorf("%w: native_balance requires minAmount", ErrMalformedInput)
		}
		if r.Decimals != nil && *r.Decimals < 0 {
			return fmt.Errorf("%w: decimals must not be negative", ErrMalformedInput)
		}
	case KindTokenBalance:
		if r.MinAmount == "" {
			return fmt.Errorf("%w: token_balance requires minAmount", ErrMalformedInput)
		}
		if r.Decimals != nil && *r.Decimals < 0 {
			return fmt.Errorf("%w: decimals must not be negative", ErrMalformedInput)
		}
		if !isHexAddress(r.TokenAddress) {
			return fmt.Errorf("%w: token_balance requires a valid tokenAddress", ErrMalformedInput)
		}
	case KindNFTOwnership:
		if !isHexAddress(r.TokenAddress) {
			return fmt.Errorf("%w: nft_ownership requires a valid tokenAddress", ErrMalformedInput)
		}
	case KindMinimumFollowers:
		if r.MinFollowers == 0 {
			return fmt.Errorf("%w: minimum_followers requires minFollowers > 0", ErrMalformedInput)
		}
	case KindFollowedBy, KindFollowing:
		if !isHexAddress(r.Address) {
			return fmt.Errorf("%w: %s requires a valid counterparty address", ErrMalformedInput, r.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown requirement type %q", ErrMalformedInput, r.Kind)
	}
	return nil
}

// AmountDecimals returns the token decimals to use for amount conversion,
// falling back to the chain default when the document leaves them unset.
func (r *Requirement) AmountDecimals() int32 {
	if r.Decimals == nil {
		return DefaultDecimals
	}
	return *r.Decimals
}

// isHexAddress reports whether s is a 0x-prefixed 20-byte hex address.
func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ValidAddress reports whether s is a syntactically valid identity address.
func ValidAddress(s string) bool {
	return isHexAddress(s)
}
