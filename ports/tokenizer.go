package ports

import "github.com/flotob/curia-sub008/core"

// AssertionIssuer mints and verifies short-lived signed identity assertions
// derived from a validated session, so downstream forum services can check
// identityType and address without a store round-trip.
type AssertionIssuer interface {
	IssueAssertion(session *core.Session) (string, error)
	VerifyAssertion(token string) (*core.IdentityAssertion, error)
}
