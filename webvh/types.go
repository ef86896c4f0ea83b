package webvh

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	MethodPrefix     = "did:webvh:"
	ScidPlaceholder  = "{SCID}"
	ProofType        = "DataIntegrityProof"
	ProofCryptosuite = "eddsa-jcs-2022"
	ProofPurpose     = "assertionMethod"
)

// DataIntegrityProof is a detached signature over a JCS-canonicalized
// document, per the eddsa-jcs-2022 cryptosuite.
type DataIntegrityProof struct {
	Type               string `json:"type"`
	Cryptosuite        string `json:"cryptosuite"`
	ProofPurpose       string `json:"proofPurpose"`
	VerificationMethod string `json:"verificationMethod"`
	ProofValue         string `json:"proofValue,omitempty"`
	Created            string `json:"created,omitempty"`
	Expires            string `json:"expires,omitempty"`
	Domain             string `json:"domain,omitempty"`
	Challenge          string `json:"challenge,omitempty"`
}

// ControllerDID returns the DID portion of the proof's verification method.
func (p DataIntegrityProof) ControllerDID() string {
	return strings.SplitN(p.VerificationMethod, "#", 2)[0]
}

// Multikey returns the fragment of the proof's verification method. For
// did:key verification methods this is the encoded public key itself.
func (p DataIntegrityProof) Multikey() string {
	pts := strings.SplitN(p.VerificationMethod, "#", 2)
	return pts[len(pts)-1]
}

// ProofSet accepts either a single proof object or an array of proofs on the
// wire, which is what controllers in the wild actually send.
type ProofSet []DataIntegrityProof

func (ps *ProofSet) UnmarshalJSON(b []byte) error {
	b = []byte(strings.TrimSpace(string(b)))
	if len(b) == 0 || string(b) == "null" {
		*ps = nil
		return nil
	}
	if b[0] == '[' {
		var proofs []DataIntegrityProof
		if err := json.Unmarshal(b, &proofs); err != nil {
			return err
		}
		*ps = proofs
		return nil
	}
	var proof DataIntegrityProof
	if err := json.Unmarshal(b, &proof); err != nil {
		return err
	}
	*ps = ProofSet{proof}
	return nil
}

// Witness identifies a single witness by its did:key.
type Witness struct {
	ID     string `json:"id"`
	Weight int    `json:"weight,omitempty"`
}

// WitnessParam is the witness policy carried in log parameters.
type WitnessParam struct {
	Threshold int       `json:"threshold"`
	Witnesses []Witness `json:"witnesses,omitempty"`
}

// Includes reports whether the witness set names the given did:key.
func (wp *WitnessParam) Includes(did string) bool {
	if wp == nil {
		return false
	}
	for _, w := range wp.Witnesses {
		if w.ID == did {
			return true
		}
	}
	return false
}

// LogParameters is the parameter block of a single log entry. Fields are
// differential: an entry only carries the keys it changes, so optional
// booleans are pointers to distinguish "absent" from "false".
type LogParameters struct {
	Method        string        `json:"method,omitempty"`
	SCID          string        `json:"scid,omitempty"`
	UpdateKeys    []string      `json:"updateKeys,omitempty"`
	NextKeyHashes []string      `json:"nextKeyHashes,omitempty"`
	Portable      *bool         `json:"portable,omitempty"`
	Witness       *WitnessParam `json:"witness,omitempty"`
	Watchers      []string      `json:"watchers,omitempty"`
	Deactivated   *bool         `json:"deactivated,omitempty"`
	TTL           *int          `json:"ttl,omitempty"`
}

// LogEntry is the atomic unit of a DID's verifiable history.
type LogEntry struct {
	VersionID   string         `json:"versionId"`
	VersionTime string         `json:"versionTime"`
	Parameters  LogParameters  `json:"parameters"`
	State       map[string]any `json:"state"`
	Proof       ProofSet       `json:"proof,omitempty"`
}

// WitnessSignature is the companion witness attestation for one log entry.
// Each proof is computed over the {"versionId": ...} envelope alone.
type WitnessSignature struct {
	VersionID string   `json:"versionId"`
	Proof     ProofSet `json:"proof"`
}

// KnownWitness is a registry entry as seen by the core. The registry itself
// is owned by an external collaborator.
type KnownWitness struct {
	DID   string
	Label string
}

// WitnessRegistry is the read-only view of the known-witness registry the
// engine consults during witness verification and parameter offers.
type WitnessRegistry interface {
	LookupWitness(did string) (*KnownWitness, error)
	ListWitnesses() ([]KnownWitness, error)
}

// ParseIdentifier splits a did:webvh string into its components.
func ParseIdentifier(did string) (scid, domain, namespace, alias string, err error) {
	pts := strings.Split(did, ":")
	if len(pts) != 6 || pts[0] != "did" || pts[1] != "webvh" {
		return "", "", "", "", fmt.Errorf("malformed did:webvh identifier: %s", did)
	}
	return pts[2], pts[3], pts[4], pts[5], nil
}

// DIDString assembles a did:webvh identifier.
func DIDString(scid, domain, namespace, alias string) string {
	return MethodPrefix + scid + ":" + domain + ":" + namespace + ":" + alias
}

// FindVerificationKey returns the publicKeyMultibase of the verification
// method with the given id in a DID document, if present.
func FindVerificationKey(doc map[string]any, vmID string) (string, bool) {
	vms, ok := doc["verificationMethod"].([]any)
	if !ok {
		return "", false
	}
	for _, raw := range vms {
		vm, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if vm["id"] == vmID {
			mk, ok := vm["publicKeyMultibase"].(string)
			return mk, ok
		}
	}
	return "", false
}
