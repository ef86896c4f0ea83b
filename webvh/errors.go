package webvh

import (
	"errors"
	"fmt"
)

// Kind classifies why a submission was rejected. None of these are retryable
// by the core; the caller may prompt the submitter for a corrected entry.
type Kind string

const (
	KindChainIntegrityViolation   Kind = "ChainIntegrityViolation"
	KindAuthorizationFailure      Kind = "AuthorizationFailure"
	KindPolicyViolation           Kind = "PolicyViolation"
	KindWitnessThresholdNotMet    Kind = "WitnessThresholdNotMet"
	KindUnknownWitness            Kind = "UnknownWitness"
	KindIdentifierDeactivated     Kind = "IdentifierDeactivated"
	KindImmutableContentViolation Kind = "ImmutableContentViolation"
	KindNoStateChange             Kind = "NoStateChange"
)

// Rejection is a typed validation failure carrying enough structure for the
// caller to render a precise protocol-level error.
type Rejection struct {
	Kind   Kind
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

func reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps a Rejection from err, if err carries one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
