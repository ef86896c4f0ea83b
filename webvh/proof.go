package webvh

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// multicodec prefix for an ed25519 public key in a multikey.
var ed25519Prefix = []byte{0xed, 0x01}

// Canonicalize serializes a document per RFC 8785 (JCS), so semantically
// identical documents produce byte-identical output.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// DigestMultibase returns the base58btc multibase encoding of the sha2-256
// multihash of the canonicalized content. This is the digest format used for
// attested resource identifiers.
func DigestMultibase(v any) (string, error) {
	data, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return multibase.Encode(multibase.Base58BTC, mh)
}

// EntryHash is DigestMultibase with the multibase prefix stripped, the form
// used for SCIDs and versionId hashes.
func EntryHash(v any) (string, error) {
	enc, err := DigestMultibase(v)
	if err != nil {
		return "", err
	}
	return enc[1:], nil
}

// KeyHash is the nextKeyHashes commitment for a multikey: the sha2-256
// multihash of the raw key string, base58btc encoded with the multibase
// prefix stripped.
func KeyHash(multikey string) (string, error) {
	mh, err := multihash.Sum([]byte(multikey), multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	enc, err := multibase.Encode(multibase.Base58BTC, mh)
	if err != nil {
		return "", err
	}
	return enc[1:], nil
}

// PublicKeyFromMultikey decodes an ed25519 public key from its multikey form.
func PublicKeyFromMultikey(multikey string) (ed25519.PublicKey, error) {
	_, data, err := multibase.Decode(multikey)
	if err != nil {
		return nil, fmt.Errorf("error decoding multikey: %w", err)
	}
	if len(data) != len(ed25519Prefix)+ed25519.PublicKeySize ||
		data[0] != ed25519Prefix[0] || data[1] != ed25519Prefix[1] {
		return nil, fmt.Errorf("multikey is not an ed25519 public key")
	}
	return ed25519.PublicKey(data[2:]), nil
}

// MultikeyFromPublicKey encodes an ed25519 public key as a multikey.
func MultikeyFromPublicKey(pub ed25519.PublicKey) (string, error) {
	return multibase.Encode(multibase.Base58BTC, append(append([]byte{}, ed25519Prefix...), pub...))
}

// ValidateProofOptions checks the fixed proof header fields and expiry.
func ValidateProofOptions(proof DataIntegrityProof) error {
	if proof.Type != ProofType {
		return reject(KindAuthorizationFailure, "expected %s proof type", ProofType)
	}
	if proof.Cryptosuite != ProofCryptosuite {
		return reject(KindAuthorizationFailure, "expected %s cryptosuite", ProofCryptosuite)
	}
	if proof.ProofPurpose != ProofPurpose {
		return reject(KindAuthorizationFailure, "expected %s proof purpose", ProofPurpose)
	}
	if proof.ProofValue == "" {
		return reject(KindAuthorizationFailure, "proof value missing")
	}
	if proof.Expires != "" {
		exp, err := time.Parse(time.RFC3339, proof.Expires)
		if err != nil {
			return reject(KindAuthorizationFailure, "malformed proof expiry: %v", err)
		}
		if !exp.After(time.Now().UTC()) {
			return reject(KindAuthorizationFailure, "proof expired at %s", proof.Expires)
		}
	}
	return nil
}

// signingInput reconstructs the eddsa-jcs-2022 signing input: the sha2-256
// digest of the canonicalized proof options (proofValue detached) followed by
// the sha2-256 digest of the canonicalized document (proof detached).
func signingInput(document map[string]any, proof DataIntegrityProof) ([]byte, error) {
	options := proof
	options.ProofValue = ""

	canonOptions, err := Canonicalize(options)
	if err != nil {
		return nil, fmt.Errorf("error canonicalizing proof options: %w", err)
	}

	unsecured := make(map[string]any, len(document))
	for k, v := range document {
		if k == "proof" {
			continue
		}
		unsecured[k] = v
	}
	canonDoc, err := Canonicalize(unsecured)
	if err != nil {
		return nil, fmt.Errorf("error canonicalizing document: %w", err)
	}

	optionsHash := sha256.Sum256(canonOptions)
	docHash := sha256.Sum256(canonDoc)
	return append(optionsHash[:], docHash[:]...), nil
}

// VerifyProof checks one detached data-integrity signature over document
// against the supplied multikey.
func VerifyProof(document map[string]any, proof DataIntegrityProof, multikey string) error {
	if err := ValidateProofOptions(proof); err != nil {
		return err
	}

	pub, err := PublicKeyFromMultikey(multikey)
	if err != nil {
		return reject(KindAuthorizationFailure, "invalid verification key: %v", err)
	}

	_, sig, err := multibase.Decode(proof.ProofValue)
	if err != nil {
		return reject(KindAuthorizationFailure, "malformed proof value: %v", err)
	}

	input, err := signingInput(document, proof)
	if err != nil {
		return err
	}

	if !ed25519.Verify(pub, input, sig) {
		return reject(KindAuthorizationFailure, "signature was forged or corrupt")
	}
	return nil
}

// SignProof produces the proofValue for the given document and proof options.
// The server itself never signs log entries; this is used by witness and
// controller tooling and by tests.
func SignProof(document map[string]any, proof DataIntegrityProof, priv ed25519.PrivateKey) (DataIntegrityProof, error) {
	input, err := signingInput(document, proof)
	if err != nil {
		return proof, err
	}
	sig := ed25519.Sign(priv, input)
	enc, err := multibase.Encode(multibase.Base58BTC, sig)
	if err != nil {
		return proof, err
	}
	proof.ProofValue = enc
	return proof, nil
}

// docToMap round-trips any JSON-marshalable value into the generic document
// form proofs are verified over.
func docToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
