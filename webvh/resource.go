package webvh

import (
	"encoding/json"
	"strings"
)

// ResourceMetadata is the mutable, digest-exempt metadata of an attested
// resource.
type ResourceMetadata struct {
	ResourceID           string `json:"resourceId,omitempty"`
	ResourceType         string `json:"resourceType,omitempty"`
	ResourceName         string `json:"resourceName,omitempty"`
	ResourceCollectionID string `json:"resourceCollectionId,omitempty"`
}

// RelatedLink points at related content, optionally pinned by digest.
type RelatedLink struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Timestamp       int64  `json:"timestamp,omitempty"`
	DigestMultibase string `json:"digestMultibase,omitempty"`
}

// AttestedResource is a content-addressed signed payload bound to an
// identifier. Its id ends in the multibase digest of content; content never
// changes after creation, while metadata, links and proof may be replaced.
type AttestedResource struct {
	Context  []string          `json:"@context"`
	Type     []string          `json:"type"`
	ID       string            `json:"id"`
	Content  json.RawMessage   `json:"content"`
	Metadata *ResourceMetadata `json:"metadata,omitempty"`
	Links    []RelatedLink     `json:"links,omitempty"`
	Proof    ProofSet          `json:"proof,omitempty"`
}

// ContentDigest recomputes the multibase digest of the resource content.
func (r *AttestedResource) ContentDigest() (string, error) {
	return DigestMultibase(r.Content)
}

// Digest returns the digest segment embedded in the resource id, with any
// file extension stripped.
func (r *AttestedResource) Digest() string {
	pts := strings.Split(r.ID, "/")
	last := pts[len(pts)-1]
	return strings.SplitN(last, ".", 2)[0]
}

// ControllerDID returns the identifier prefix of the resource id.
func (r *AttestedResource) ControllerDID() string {
	return strings.SplitN(r.ID, "/", 2)[0]
}

// VerifyResource validates a content-addressed payload against its owning
// identifier's current document: digest/id binding, controller proof and,
// when the endorsement policy is active, a witness proof from the registry.
func (e *Engine) VerifyResource(resource *AttestedResource, did string, document map[string]any) error {
	digest, err := resource.ContentDigest()
	if err != nil {
		return err
	}
	if resource.Digest() != digest {
		return reject(KindImmutableContentViolation,
			"resource id digest does not match content")
	}
	if resource.ControllerDID() != did {
		return reject(KindAuthorizationFailure,
			"resource id is not bound to %s", did)
	}
	if _, _, _, _, err := ParseIdentifier(did); err != nil {
		return reject(KindAuthorizationFailure, "invalid controller identifier: %v", err)
	}
	if resource.Metadata == nil || resource.Metadata.ResourceType == "" {
		return reject(KindPolicyViolation, "missing resource type")
	}
	if resource.Metadata.ResourceID != digest {
		return reject(KindImmutableContentViolation,
			"metadata resourceId does not match content digest")
	}

	doc, err := docToMap(resource)
	if err != nil {
		return err
	}

	var controllerProof *DataIntegrityProof
	var witnessProof *DataIntegrityProof
	for i := range resource.Proof {
		proof := &resource.Proof[i]
		if proof.ControllerDID() == did {
			controllerProof = proof
		} else if strings.HasPrefix(proof.ControllerDID(), "did:key:") {
			witnessProof = proof
		}
	}

	if controllerProof == nil {
		return reject(KindAuthorizationFailure, "no proof from the controlling identifier")
	}
	multikey, ok := FindVerificationKey(document, controllerProof.VerificationMethod)
	if !ok {
		return reject(KindAuthorizationFailure,
			"verification method %s is not in the controller document", controllerProof.VerificationMethod)
	}
	if err := VerifyProof(doc, *controllerProof, multikey); err != nil {
		return err
	}

	if e.policy.Endorsement {
		if witnessProof == nil {
			return reject(KindWitnessThresholdNotMet,
				"endorsement policy requires a witness proof")
		}
		known, err := e.registry.LookupWitness(witnessProof.ControllerDID())
		if err != nil {
			return err
		}
		if known == nil {
			return reject(KindUnknownWitness,
				"%s is not a known witness", witnessProof.ControllerDID())
		}
		if err := VerifyProof(doc, *witnessProof, witnessProof.Multikey()); err != nil {
			return err
		}
	}

	return nil
}

// VerifyResourceUpdate re-runs resource verification for an update and
// enforces immutability of the stored payload: only metadata, links and
// proof may change.
func (e *Engine) VerifyResourceUpdate(stored, updated *AttestedResource, did string, document map[string]any) error {
	if err := e.VerifyResource(updated, did, document); err != nil {
		return err
	}
	if stored.ID != updated.ID {
		return reject(KindImmutableContentViolation, "resource id may not change")
	}
	storedDigest, err := stored.ContentDigest()
	if err != nil {
		return err
	}
	updatedDigest, err := updated.ContentDigest()
	if err != nil {
		return err
	}
	if storedDigest != updatedDigest {
		return reject(KindImmutableContentViolation,
			"resource content may not change after creation")
	}
	if stored.Metadata != nil && updated.Metadata != nil &&
		stored.Metadata.ResourceType != updated.Metadata.ResourceType {
		return reject(KindImmutableContentViolation, "resource type may not change")
	}
	return nil
}
