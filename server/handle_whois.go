package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/opsecid/webvh-server/internal/helpers"
	"github.com/opsecid/webvh-server/webvh"
)

type WhoisUploadRequest struct {
	VerifiablePresentation map[string]any `json:"verifiablePresentation" validate:"required"`
}

// handleUploadWhois stores the identifier's whois verifiable presentation
// after verifying the holder's proof against the current document.
func (s *Server) handleUploadWhois(e echo.Context) error {
	namespace := strings.ToLower(e.Param("namespace"))
	alias := strings.ToLower(e.Param("alias"))

	controller, err := s.getController(namespace, alias)
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "uploadWhois", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil {
		return helpers.NotFound(e)
	}

	var request WhoisUploadRequest
	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "uploadWhois", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("MissingVerifiablePresentation"))
	}

	presentation := request.VerifiablePresentation

	document, err := controllerDocument(controller)
	if err != nil {
		s.logger.Error("error decoding document", "endpoint", "uploadWhois", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := verifyWhoisPresentation(presentation, controller.Did, document); err != nil {
		if rej, ok := webvh.AsRejection(err); ok {
			return helpers.RejectionError(e, rej)
		}
		s.logger.Error("error verifying presentation", "endpoint", "uploadWhois", "error", err)
		return helpers.ServerError(e, nil)
	}

	raw, err := json.Marshal(presentation)
	if err != nil {
		return helpers.ServerError(e, nil)
	}

	controller.Whois = raw
	if err := s.db.Save(controller).Error; err != nil {
		s.logger.Error("error storing presentation", "endpoint", "uploadWhois", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(200, presentation)
}

func (s *Server) handleGetWhois(e echo.Context) error {
	namespace := strings.ToLower(e.Param("namespace"))
	alias := strings.ToLower(e.Param("alias"))

	controller, err := s.getController(namespace, alias)
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "getWhois", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil || len(controller.Whois) == 0 {
		return helpers.NotFound(e)
	}

	return e.Blob(200, "application/vp", controller.Whois)
}

func verifyWhoisPresentation(presentation map[string]any, did string, document map[string]any) error {
	holder := presentation["holder"]
	holderDid, _ := holder.(string)
	if m, ok := holder.(map[string]any); ok {
		holderDid, _ = m["id"].(string)
	}
	if holderDid != did {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: fmt.Sprintf("presentation holder %s is not the identifier's controller", holderDid),
		}
	}

	raw, err := json.Marshal(presentation["proof"])
	if err != nil {
		return err
	}
	var proofs webvh.ProofSet
	if err := json.Unmarshal(raw, &proofs); err != nil || len(proofs) == 0 {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: "presentation has no proof",
		}
	}

	var holderProof *webvh.DataIntegrityProof
	for i := range proofs {
		if proofs[i].ControllerDID() == did {
			holderProof = &proofs[i]
			break
		}
	}
	if holderProof == nil {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: "presentation has no proof from the holder",
		}
	}

	multikey, ok := webvh.FindVerificationKey(document, holderProof.VerificationMethod)
	if !ok {
		return &webvh.Rejection{
			Kind:   webvh.KindAuthorizationFailure,
			Reason: fmt.Sprintf("verification method %s is not in the controller document", holderProof.VerificationMethod),
		}
	}

	return webvh.VerifyProof(presentation, *holderProof, multikey)
}
