package server

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/opsecid/webvh-server/internal/helpers"
	"github.com/opsecid/webvh-server/models"
	"github.com/opsecid/webvh-server/webvh"
	"gorm.io/gorm/clause"
)

const envelopedMediaPrefix = "data:application/vc+jwt,"

type CredentialUploadRequest struct {
	VerifiableCredential map[string]any     `json:"verifiableCredential" validate:"required"`
	Options              *CredentialOptions `json:"options"`
}

type CredentialOptions struct {
	CredentialID string `json:"credentialId"`
}

func credentialFormat(credential map[string]any) string {
	var types []string
	switch v := credential["type"].(type) {
	case string:
		types = []string{v}
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				types = append(types, s)
			}
		}
	}
	for _, t := range types {
		if t == "EnvelopedVerifiableCredential" {
			return "EnvelopedVerifiableCredential"
		}
	}
	for _, t := range types {
		if t == "VerifiableCredential" {
			return "VerifiableCredential"
		}
	}
	return ""
}

// handleUploadCredential verifies and stores a credential issued by the
// identifier. Both embedded data-integrity proofs and enveloped vc+jwt
// credentials are supported.
func (s *Server) handleUploadCredential(e echo.Context) error {
	namespace := strings.ToLower(e.Param("namespace"))
	alias := strings.ToLower(e.Param("alias"))

	controller, err := s.getController(namespace, alias)
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "uploadCredential", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil {
		return helpers.NotFound(e)
	}

	var request CredentialUploadRequest
	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "uploadCredential", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("MissingVerifiableCredential"))
	}

	credential := request.VerifiableCredential
	format := credentialFormat(credential)

	document, err := controllerDocument(controller)
	if err != nil {
		s.logger.Error("error decoding document", "endpoint", "uploadCredential", "error", err)
		return helpers.ServerError(e, nil)
	}

	switch format {
	case "EnvelopedVerifiableCredential":
		if err := s.verifyEnvelopedCredential(credential, controller, document); err != nil {
			if rej, ok := webvh.AsRejection(err); ok {
				return helpers.RejectionError(e, rej)
			}
			return helpers.InputError(e, to.StringPtr(err.Error()))
		}
	case "VerifiableCredential":
		if err := verifyEmbeddedCredential(credential, controller.Did, document); err != nil {
			if rej, ok := webvh.AsRejection(err); ok {
				return helpers.RejectionError(e, rej)
			}
			return helpers.InputError(e, to.StringPtr(err.Error()))
		}
	default:
		return helpers.InputError(e, to.StringPtr("UnknownCredentialFormat"))
	}

	credentialID := credentialStorageID(credential, format, request.Options)
	if credentialID == "" {
		return helpers.InputError(e, to.StringPtr("MissingCredentialId"))
	}

	raw, err := json.Marshal(credential)
	if err != nil {
		return helpers.ServerError(e, nil)
	}

	record := &models.CredentialRecord{
		Scid:         controller.Scid,
		CredentialID: credentialID,
		Did:          controller.Did,
		Format:       format,
		Credential:   raw,
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scid"}, {Name: "credential_id"}},
		UpdateAll: true,
	}).Create(record).Error; err != nil {
		s.logger.Error("error storing credential", "endpoint", "uploadCredential", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(201, map[string]string{"credentialId": credentialID})
}

func (s *Server) handleGetCredential(e echo.Context) error {
	namespace := strings.ToLower(e.Param("namespace"))
	alias := strings.ToLower(e.Param("alias"))

	controller, err := s.getController(namespace, alias)
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "getCredential", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil {
		return helpers.NotFound(e)
	}

	record, err := s.getCredential(controller.Scid, e.Param("credentialId"))
	if err != nil {
		s.logger.Error("error fetching credential", "endpoint", "getCredential", "error", err)
		return helpers.ServerError(e, nil)
	}
	if record == nil {
		return helpers.NotFound(e)
	}

	return e.Blob(200, "application/json", record.Credential)
}

// verifyEnvelopedCredential checks the vc+jwt data URL shape and verifies
// the JWS against the verification method named in its header.
func (s *Server) verifyEnvelopedCredential(credential map[string]any, controller *models.DIDController, document map[string]any) error {
	id, _ := credential["id"].(string)
	if !strings.HasPrefix(id, envelopedMediaPrefix) {
		return fmt.Errorf("EnvelopedCredentialRequiresVcJwtDataUrl")
	}
	token := []byte(strings.TrimPrefix(id, envelopedMediaPrefix))

	msg, err := jws.Parse(token)
	if err != nil {
		return fmt.Errorf("MalformedJwt")
	}
	if len(msg.Signatures()) == 0 {
		return fmt.Errorf("MissingJwtSignature")
	}

	kid := msg.Signatures()[0].ProtectedHeaders().KeyID()
	if !strings.HasPrefix(kid, controller.Did) {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: "jwt kid is not a verification method of the issuer",
		}
	}

	multikey, ok := webvh.FindVerificationKey(document, kid)
	if !ok {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: fmt.Sprintf("verification method %s is not in the controller document", kid),
		}
	}

	pub, err := webvh.PublicKeyFromMultikey(multikey)
	if err != nil {
		return err
	}

	if _, err := jws.Verify(token, jws.WithKey(jwa.EdDSA, ed25519.PublicKey(pub))); err != nil {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: "jwt signature was forged or corrupt",
		}
	}
	return nil
}

// verifyEmbeddedCredential finds the issuer's data-integrity proof and
// verifies it against the controller document.
func verifyEmbeddedCredential(credential map[string]any, did string, document map[string]any) error {
	issuer := credential["issuer"]
	issuerDid, _ := issuer.(string)
	if m, ok := issuer.(map[string]any); ok {
		issuerDid, _ = m["id"].(string)
	}
	if issuerDid != did {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: fmt.Sprintf("credential issuer %s is not the identifier's controller", issuerDid),
		}
	}

	raw, err := json.Marshal(credential["proof"])
	if err != nil {
		return err
	}
	var proofs webvh.ProofSet
	if err := json.Unmarshal(raw, &proofs); err != nil || len(proofs) == 0 {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: "credential has no proof",
		}
	}

	var issuerProof *webvh.DataIntegrityProof
	for i := range proofs {
		if proofs[i].ControllerDID() == did {
			issuerProof = &proofs[i]
			break
		}
	}
	if issuerProof == nil {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: "credential has no proof from the issuing identifier",
		}
	}

	multikey, ok := webvh.FindVerificationKey(document, issuerProof.VerificationMethod)
	if !ok {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: fmt.Sprintf("verification method %s is not in the controller document", issuerProof.VerificationMethod),
		}
	}

	return webvh.VerifyProof(credential, *issuerProof, multikey)
}

func credentialStorageID(credential map[string]any, format string, options *CredentialOptions) string {
	if options != nil && options.CredentialID != "" {
		return options.CredentialID
	}
	id, _ := credential["id"].(string)
	if id == "" {
		return ""
	}
	if format == "EnvelopedVerifiableCredential" {
		return id
	}
	pts := strings.Split(id, "/")
	return pts[len(pts)-1]
}
