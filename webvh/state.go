package webvh

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Parameters is the effective parameter set of a log after applying every
// entry's differential parameter block in order.
type Parameters struct {
	Method        string
	SCID          string
	UpdateKeys    []string
	NextKeyHashes []string
	Portable      bool
	Witness       *WitnessParam
	Watchers      []string
	Deactivated   bool
	TTL           int
}

func (p Parameters) apply(lp LogParameters) Parameters {
	next := p
	if lp.Method != "" {
		next.Method = lp.Method
	}
	if lp.SCID != "" {
		next.SCID = lp.SCID
	}
	if lp.UpdateKeys != nil {
		next.UpdateKeys = lp.UpdateKeys
	}
	if lp.NextKeyHashes != nil {
		next.NextKeyHashes = lp.NextKeyHashes
	}
	if lp.Portable != nil {
		next.Portable = *lp.Portable
	}
	if lp.Witness != nil {
		next.Witness = lp.Witness
	}
	if lp.Watchers != nil {
		next.Watchers = lp.Watchers
	}
	if lp.Deactivated != nil {
		next.Deactivated = *lp.Deactivated
	}
	if lp.TTL != nil {
		next.TTL = *lp.TTL
	}
	return next
}

// DocumentState is the resolved state of a DID after some prefix of its log.
type DocumentState struct {
	VersionNumber int
	VersionID     string
	VersionTime   time.Time
	SCID          string
	Params        Parameters
	Document      map[string]any
}

// DID returns the identifier from the resolved document.
func (s *DocumentState) DID() string {
	id, _ := s.Document["id"].(string)
	return id
}

// LoadLog replays and fully re-validates a log from its first entry. Any
// mutation to a persisted entry surfaces here as a chain integrity violation.
func LoadLog(entries []LogEntry) (*DocumentState, error) {
	if len(entries) == 0 {
		return nil, reject(KindChainIntegrityViolation, "empty log")
	}
	var state *DocumentState
	var err error
	for i, entry := range entries {
		state, err = state.Apply(entry)
		if err != nil {
			return nil, fmt.Errorf("log entry %d: %w", i+1, err)
		}
	}
	return state, nil
}

// Apply validates a candidate entry against the current state (nil for the
// first entry) and returns the successor state. Validation is side-effect
// free; nothing is mutated on failure.
func (s *DocumentState) Apply(entry LogEntry) (*DocumentState, error) {
	versionNumber, declaredHash, err := splitVersionID(entry.VersionID)
	if err != nil {
		return nil, err
	}

	versionTime, err := time.Parse(time.RFC3339, entry.VersionTime)
	if err != nil {
		return nil, reject(KindChainIntegrityViolation, "malformed versionTime: %v", err)
	}

	if s == nil {
		return applyFirst(entry, versionNumber, declaredHash, versionTime)
	}

	// Ordering: strictly the next version, time non-decreasing.
	if versionNumber != s.VersionNumber+1 {
		return nil, reject(KindChainIntegrityViolation,
			"expected version %d, got %d", s.VersionNumber+1, versionNumber)
	}
	if versionTime.Before(s.VersionTime) {
		return nil, reject(KindChainIntegrityViolation,
			"versionTime %s precedes previous entry", entry.VersionTime)
	}

	// Chain hash: recompute over the proof-less entry with the predecessor's
	// versionId substituted in. This is the integrity backbone.
	expected, err := ComputeEntryHash(entry, s.VersionID)
	if err != nil {
		return nil, err
	}
	if expected != declaredHash {
		return nil, reject(KindChainIntegrityViolation,
			"versionId hash mismatch for version %d", versionNumber)
	}

	params := s.Params.apply(entry.Parameters)
	if !strings.HasPrefix(params.Method, MethodPrefix) {
		return nil, reject(KindChainIntegrityViolation, "invalid method: %s", params.Method)
	}
	if params.SCID != s.SCID {
		return nil, reject(KindChainIntegrityViolation, "scid may not change")
	}

	// Prerotation: a rotated-in key must have been committed to by the
	// previous entry's nextKeyHashes.
	if len(s.Params.NextKeyHashes) > 0 && entry.Parameters.UpdateKeys != nil {
		for _, key := range entry.Parameters.UpdateKeys {
			hash, err := KeyHash(key)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(s.Params.NextKeyHashes, hash) {
				return nil, reject(KindAuthorizationFailure,
					"update key %s not committed by prerotation", key)
			}
		}
	}

	// Authorization against the previous entry's update keys.
	if err := verifyEntryProofs(entry, s.Params.UpdateKeys); err != nil {
		return nil, err
	}

	return &DocumentState{
		VersionNumber: versionNumber,
		VersionID:     entry.VersionID,
		VersionTime:   versionTime,
		SCID:          s.SCID,
		Params:        params,
		Document:      entry.State,
	}, nil
}

func applyFirst(entry LogEntry, versionNumber int, declaredHash string, versionTime time.Time) (*DocumentState, error) {
	if versionNumber != 1 {
		return nil, reject(KindChainIntegrityViolation,
			"first log entry must be version 1, got %d", versionNumber)
	}

	params := Parameters{}.apply(entry.Parameters)
	if !strings.HasPrefix(params.Method, MethodPrefix) {
		return nil, reject(KindChainIntegrityViolation, "invalid method: %s", params.Method)
	}
	scid := params.SCID
	if scid == "" {
		return nil, reject(KindChainIntegrityViolation, "first log entry missing scid")
	}
	if len(params.UpdateKeys) == 0 {
		return nil, reject(KindAuthorizationFailure, "first log entry missing updateKeys")
	}

	// Self-certification: the SCID must equal the digest of the entry with
	// every occurrence of the SCID replaced by the placeholder.
	computedScid, err := computeScid(entry, scid)
	if err != nil {
		return nil, err
	}
	if computedScid != scid {
		return nil, reject(KindChainIntegrityViolation, "self-certifying identifier mismatch")
	}

	did, _ := entry.State["id"].(string)
	docScid, _, _, _, err := ParseIdentifier(did)
	if err != nil || docScid != scid {
		return nil, reject(KindChainIntegrityViolation,
			"document id does not embed the self-certifying identifier")
	}

	// The first entry hash chains off the SCID itself.
	expected, err := ComputeEntryHash(entry, scid)
	if err != nil {
		return nil, err
	}
	if expected != declaredHash {
		return nil, reject(KindChainIntegrityViolation, "versionId hash mismatch for version 1")
	}

	// Initial trust: the first entry authorizes itself.
	if err := verifyEntryProofs(entry, params.UpdateKeys); err != nil {
		return nil, err
	}

	return &DocumentState{
		VersionNumber: 1,
		VersionID:     entry.VersionID,
		VersionTime:   versionTime,
		SCID:          scid,
		Params:        params,
		Document:      entry.State,
	}, nil
}

// verifyEntryProofs checks that the entry carries at least one proof, that
// every proof references a distinct authorized update key, and that every
// signature verifies over the proof-less entry.
func verifyEntryProofs(entry LogEntry, updateKeys []string) error {
	if len(entry.Proof) == 0 {
		return reject(KindAuthorizationFailure, "log entry has no proof")
	}
	doc, err := docToMap(entry)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, proof := range entry.Proof {
		multikey := proof.Multikey()
		if seen[multikey] {
			return reject(KindAuthorizationFailure,
				"duplicate proof from key %s", multikey)
		}
		seen[multikey] = true
		if !strings.HasPrefix(proof.VerificationMethod, "did:key:") {
			return reject(KindAuthorizationFailure,
				"log entry proofs must use did:key verification methods")
		}
		if !slices.Contains(updateKeys, multikey) {
			return reject(KindAuthorizationFailure,
				"proof key %s is not an authorized update key", multikey)
		}
		if err := VerifyProof(doc, proof, multikey); err != nil {
			return err
		}
	}
	return nil
}

// ComputeEntryHash digests the proof-less entry with versionId replaced by
// the predecessor reference (the SCID for the first entry). Controllers use
// the same computation to assemble versionIds before signing.
func ComputeEntryHash(entry LogEntry, predecessor string) (string, error) {
	m, err := docToMap(entry)
	if err != nil {
		return "", err
	}
	delete(m, "proof")
	m["versionId"] = predecessor
	return EntryHash(m)
}

// DeriveSCID computes the self-certifying identifier from a first entry
// still in placeholder form ({SCID} in its parameters and document).
func DeriveSCID(entry LogEntry) (string, error) {
	m, err := docToMap(entry)
	if err != nil {
		return "", err
	}
	delete(m, "proof")
	m["versionId"] = ScidPlaceholder
	return EntryHash(m)
}

// computeScid derives the self-certifying identifier from the first entry by
// substituting the placeholder for the declared SCID everywhere it appears.
func computeScid(entry LogEntry, scid string) (string, error) {
	m, err := docToMap(entry)
	if err != nil {
		return "", err
	}
	delete(m, "proof")
	m["versionId"] = ScidPlaceholder
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	raw = bytes.ReplaceAll(raw, []byte(scid), []byte(ScidPlaceholder))
	return EntryHash(json.RawMessage(raw))
}

func splitVersionID(versionID string) (int, string, error) {
	pts := strings.SplitN(versionID, "-", 2)
	if len(pts) != 2 || pts[1] == "" {
		return 0, "", reject(KindChainIntegrityViolation, "malformed versionId: %s", versionID)
	}
	n, err := strconv.Atoi(pts[0])
	if err != nil || n < 1 {
		return 0, "", reject(KindChainIntegrityViolation, "malformed versionId: %s", versionID)
	}
	return n, pts[1], nil
}
