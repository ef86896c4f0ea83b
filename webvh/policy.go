package webvh

import (
	"fmt"
	"slices"
)

// Reserved namespaces collide with server routes and are rejected at request
// time.
var reservedNamespaces = []string{
	"admin", "resources", "credentials", "whois", "health", "policy", "resolve", ".well-known",
}

// Policy is the server-wide configuration, read once at startup and held for
// the process lifetime. It is never mutated; reconfiguration means building
// a new Engine.
type Policy struct {
	Version          string // webvh method version, e.g. "1.0"
	Domain           string
	WitnessThreshold int // 0 disables the witness requirement
	Watcher          string
	Portability      bool
	Prerotation      bool
	Endorsement      bool
}

// MethodID returns the full method identifier log entries must declare.
func (p Policy) MethodID() string {
	return MethodPrefix + p.Version
}

// Engine evaluates candidate parameter sets against the active policy and
// runs the log state machine. It performs no I/O beyond the supplied
// registry lookups.
type Engine struct {
	policy   Policy
	registry WitnessRegistry
}

func NewEngine(policy Policy, registry WitnessRegistry) (*Engine, error) {
	if policy.Version == "" {
		return nil, fmt.Errorf("policy method version must be set")
	}
	if policy.Domain == "" {
		return nil, fmt.Errorf("policy domain must be set")
	}
	if policy.WitnessThreshold > 0 && registry == nil {
		return nil, fmt.Errorf("witness policy requires a registry")
	}
	return &Engine{policy: policy, registry: registry}, nil
}

// Policy returns the engine's immutable configuration snapshot.
func (e *Engine) Policy() Policy {
	return e.policy
}

// NamespaceAvailable reports whether a namespace may be registered.
func (e *Engine) NamespaceAvailable(namespace string) bool {
	return !slices.Contains(reservedNamespaces, namespace)
}

// Evaluate checks a candidate parameter set against the active policy. Every
// check is independent and all must pass. Deactivation entries are exempt
// from the prerotation requirement only.
func (e *Engine) Evaluate(params Parameters, deactivating bool) error {
	if params.Method != e.policy.MethodID() {
		return reject(KindPolicyViolation,
			"method %s does not match server version %s", params.Method, e.policy.MethodID())
	}

	if e.policy.WitnessThreshold > 0 {
		if params.Witness == nil || params.Witness.Threshold < 1 {
			return reject(KindPolicyViolation, "WitnessThresholdNotMet: witnessing is required")
		}
		for _, w := range params.Witness.Witnesses {
			known, err := e.registry.LookupWitness(w.ID)
			if err != nil {
				return fmt.Errorf("error consulting witness registry: %w", err)
			}
			if known == nil {
				return reject(KindPolicyViolation, "UnknownWitness: %s is not a known witness", w.ID)
			}
		}
	}

	if e.policy.Watcher != "" && !slices.Contains(params.Watchers, e.policy.Watcher) {
		return reject(KindPolicyViolation,
			"WatcherMismatch: required watcher %s is not declared", e.policy.Watcher)
	}

	if e.policy.Portability && !params.Portable {
		return reject(KindPolicyViolation, "PortabilityRequired: portability must be enabled")
	}

	if e.policy.Prerotation && !deactivating && len(params.NextKeyHashes) == 0 {
		return reject(KindPolicyViolation, "PrerotationRequired: nextKeyHashes must be committed")
	}

	return nil
}

// OfferParameters builds the policy-derived parameter set returned to a
// client requesting a new identifier path. The offer is produced from the
// same policy the engine enforces on submission, so offer and enforcement
// cannot silently diverge.
func (e *Engine) OfferParameters() (LogParameters, error) {
	params := LogParameters{
		Method:     e.policy.MethodID(),
		SCID:       ScidPlaceholder,
		UpdateKeys: []string{},
		Portable:   boolPtr(e.policy.Portability),
	}
	if e.policy.Prerotation {
		params.NextKeyHashes = []string{}
	}
	if e.policy.WitnessThreshold > 0 {
		known, err := e.registry.ListWitnesses()
		if err != nil {
			return LogParameters{}, fmt.Errorf("error listing witness registry: %w", err)
		}
		witnesses := make([]Witness, 0, len(known))
		for _, w := range known {
			witnesses = append(witnesses, Witness{ID: w.DID})
		}
		params.Witness = &WitnessParam{
			Threshold: e.policy.WitnessThreshold,
			Witnesses: witnesses,
		}
	}
	if e.policy.Watcher != "" {
		params.Watchers = []string{e.policy.Watcher}
	}
	return params, nil
}

// PlaceholderDID returns the pre-SCID identifier offered to clients.
func (e *Engine) PlaceholderDID(namespace, alias string) string {
	return DIDString(ScidPlaceholder, e.policy.Domain, namespace, alias)
}

// ProofOptions returns the proof header the server expects on submissions.
func (e *Engine) ProofOptions() DataIntegrityProof {
	return DataIntegrityProof{
		Type:         ProofType,
		Cryptosuite:  ProofCryptosuite,
		ProofPurpose: ProofPurpose,
	}
}

func boolPtr(b bool) *bool {
	return &b
}
