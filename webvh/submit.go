package webvh

import (
	"fmt"
	"strings"
)

// Submit runs the log state machine: given the persisted tail for an
// identifier (nil or empty for a new one) and a candidate entry, it produces
// the extended log and resolved state, or a typed rejection. The resolved
// document's identifier must be bound to the submission's namespace/alias
// on the policy domain. Validation is side-effect free; the caller appends
// only on success.
//
// Callers must serialize Submit per identifier (see Sessions); cross-
// identifier submissions are safe to run in parallel.
func (e *Engine) Submit(namespace, alias string, tail []LogEntry, candidate LogEntry, witnessSig *WitnessSignature) ([]LogEntry, *DocumentState, error) {
	var prev *DocumentState
	if len(tail) > 0 {
		var err error
		prev, err = LoadLog(tail)
		if err != nil {
			return nil, nil, err
		}
		if prev.Params.Deactivated {
			return nil, nil, reject(KindIdentifierDeactivated,
				"%s has been deactivated", prev.DID())
		}
		if candidate.VersionID == prev.VersionID {
			return nil, nil, reject(KindNoStateChange,
				"entry %s is already the latest version", candidate.VersionID)
		}
	}

	next, err := prev.Apply(candidate)
	if err != nil {
		return nil, nil, err
	}

	if err := e.verifyIdentifierBinding(next, namespace, alias); err != nil {
		return nil, nil, err
	}

	if err := e.Evaluate(next.Params, next.Params.Deactivated); err != nil {
		return nil, nil, err
	}

	if e.policy.WitnessThreshold > 0 || witnessThreshold(next.Params) > 0 {
		if err := e.verifyWitnessSignature(candidate, next.Params, witnessSig); err != nil {
			return nil, nil, err
		}
	}

	return append(tail[:len(tail):len(tail)], candidate), next, nil
}

// verifyIdentifierBinding rejects entries whose resolved identifier is not
// the one being submitted to: the document's DID must name the policy domain
// and the namespace/alias pair the caller is writing under. Without this a
// log accepted under one path could claim another path, or another host.
func (e *Engine) verifyIdentifierBinding(state *DocumentState, namespace, alias string) error {
	_, domain, ns, al, err := ParseIdentifier(state.DID())
	if err != nil {
		return reject(KindChainIntegrityViolation,
			"entry document has no valid identifier: %v", err)
	}
	if domain != e.policy.Domain {
		return reject(KindAuthorizationFailure,
			"entry identifier %s is not hosted on %s", state.DID(), e.policy.Domain)
	}
	if ns != namespace || al != alias {
		return reject(KindAuthorizationFailure,
			"entry identifier %s does not match submission path %s/%s", state.DID(), namespace, alias)
	}
	return nil
}

func witnessThreshold(params Parameters) int {
	if params.Witness == nil {
		return 0
	}
	return params.Witness.Threshold
}

// verifyWitnessSignature enforces the witness threshold for a candidate
// entry: every proof must verify, and the count of distinct registered
// witnesses listed in the entry's witness set must reach the threshold.
func (e *Engine) verifyWitnessSignature(candidate LogEntry, params Parameters, witnessSig *WitnessSignature) error {
	threshold := witnessThreshold(params)
	if threshold < e.policy.WitnessThreshold {
		threshold = e.policy.WitnessThreshold
	}

	if witnessSig == nil || len(witnessSig.Proof) == 0 {
		return reject(KindWitnessThresholdNotMet,
			"no witness signature provided, threshold is %d", threshold)
	}
	if witnessSig.VersionID != candidate.VersionID {
		return reject(KindWitnessThresholdNotMet,
			"witness signature is for version %s, not %s", witnessSig.VersionID, candidate.VersionID)
	}

	// Witnesses attest to the versionId envelope alone.
	envelope := map[string]any{"versionId": witnessSig.VersionID}

	valid := map[string]bool{}
	for _, proof := range witnessSig.Proof {
		witnessDID := proof.ControllerDID()
		if !strings.HasPrefix(witnessDID, "did:key:") {
			return reject(KindUnknownWitness,
				"witness proofs must use did:key verification methods")
		}
		known, err := e.registry.LookupWitness(witnessDID)
		if err != nil {
			return fmt.Errorf("error consulting witness registry: %w", err)
		}
		if known == nil {
			return reject(KindUnknownWitness, "%s is not a known witness", witnessDID)
		}
		if params.Witness != nil && !params.Witness.Includes(witnessDID) {
			return reject(KindUnknownWitness,
				"%s is not in the entry's witness set", witnessDID)
		}
		if err := VerifyProof(envelope, proof, proof.Multikey()); err != nil {
			return err
		}
		valid[witnessDID] = true
	}

	if len(valid) < threshold {
		return reject(KindWitnessThresholdNotMet,
			"%d distinct witness signatures, threshold is %d", len(valid), threshold)
	}
	return nil
}
