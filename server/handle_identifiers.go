package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/opsecid/webvh-server/internal/helpers"
	"github.com/opsecid/webvh-server/webvh"
)

type RequestDIDResponse struct {
	DidDocument  map[string]any           `json:"didDocument"`
	Parameters   webvh.LogParameters      `json:"parameters"`
	ProofOptions webvh.DataIntegrityProof `json:"proofOptions"`
}

// handleRequestDID returns the policy-derived parameter offer and a
// placeholder document for a namespace/alias pair. The offered parameters
// are produced by the same engine that enforces them on submission.
func (s *Server) handleRequestDID(e echo.Context) error {
	namespace := strings.ToLower(e.QueryParam("namespace"))
	alias := strings.ToLower(e.QueryParam("identifier"))

	if namespace == "" || alias == "" {
		return helpers.InputError(e, to.StringPtr("MissingNamespaceOrIdentifier"))
	}

	if !segmentRe.MatchString(namespace) || !segmentRe.MatchString(alias) {
		return helpers.InputError(e, to.StringPtr("InvalidNamespaceOrIdentifier"))
	}

	if !s.engine.NamespaceAvailable(namespace) {
		return helpers.InputError(e, to.StringPtr("ReservedNamespace"))
	}

	existing, err := s.getController(namespace, alias)
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "requestDid", "error", err)
		return helpers.ServerError(e, nil)
	}
	if existing != nil {
		return helpers.InputError(e, to.StringPtr("IdentifierTaken"))
	}

	parameters, err := s.engine.OfferParameters()
	if err != nil {
		s.logger.Error("error building parameter offer", "endpoint", "requestDid", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(200, RequestDIDResponse{
		DidDocument: map[string]any{
			"@context": []string{"https://www.w3.org/ns/did/v1"},
			"id":       s.engine.PlaceholderDID(namespace, alias),
		},
		Parameters:   parameters,
		ProofOptions: s.engine.ProofOptions(),
	})
}

type ResolveDIDRequest struct {
	Did string `query:"did" validate:"required,did"`
}

type ResolveDIDResponse struct {
	DidDocument         map[string]any `json:"didDocument"`
	DidDocumentMetadata map[string]any `json:"didDocumentMetadata"`
}

// handleResolveDID looks a hosted identifier up by its full DID, the query
// shape watchers and resolver drivers use.
func (s *Server) handleResolveDID(e echo.Context) error {
	var request ResolveDIDRequest
	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "resolveDid", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("InvalidDid"))
	}

	controller, err := s.getControllerByDid(request.Did)
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "resolveDid", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil {
		return helpers.NotFound(e)
	}

	document, err := controllerDocument(controller)
	if err != nil {
		s.logger.Error("error decoding document", "endpoint", "resolveDid", "error", err)
		return helpers.ServerError(e, nil)
	}

	entries, err := controllerLog(controller)
	if err != nil || len(entries) == 0 {
		s.logger.Error("error decoding log", "endpoint", "resolveDid", "error", err)
		return helpers.ServerError(e, nil)
	}
	latest := entries[len(entries)-1]

	return e.JSON(200, ResolveDIDResponse{
		DidDocument: document,
		DidDocumentMetadata: map[string]any{
			"versionId":   latest.VersionID,
			"versionTime": latest.VersionTime,
			"created":     controller.CreatedAt.UTC().Format(time.RFC3339),
			"updated":     controller.UpdatedAt.UTC().Format(time.RFC3339),
			"deactivated": controller.Deactivated,
		},
	})
}

type SubmitLogEntryRequest struct {
	LogEntry         *webvh.LogEntry         `json:"logEntry" validate:"required"`
	WitnessSignature *webvh.WitnessSignature `json:"witnessSignature"`
}

type SubmitLogEntryResponse struct {
	VersionID   string         `json:"versionId"`
	DidDocument map[string]any `json:"didDocument"`
}

// handleSubmitLogEntry accepts a candidate log entry for an identifier. The
// same endpoint covers creation, update, rotation and deactivation; the log
// state machine decides which transition applies.
func (s *Server) handleSubmitLogEntry(e echo.Context) error {
	namespace := strings.ToLower(e.Param("namespace"))
	alias := strings.ToLower(e.Param("alias"))

	if !segmentRe.MatchString(namespace) || !segmentRe.MatchString(alias) {
		return helpers.InputError(e, to.StringPtr("InvalidNamespaceOrIdentifier"))
	}

	if !s.engine.NamespaceAvailable(namespace) {
		return helpers.InputError(e, to.StringPtr("ReservedNamespace"))
	}

	var request SubmitLogEntryRequest
	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "submitLogEntry", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("MissingLogEntry"))
	}

	state, err := s.registrar.SubmitLogEntry(namespace, alias, *request.LogEntry, request.WitnessSignature)
	if err != nil {
		if rej, ok := webvh.AsRejection(err); ok {
			return helpers.RejectionError(e, rej)
		}
		s.logger.Error("error submitting log entry", "endpoint", "submitLogEntry", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(201, SubmitLogEntryResponse{
		VersionID:   state.VersionID,
		DidDocument: state.Document,
	})
}

func (s *Server) handleReadDID(e echo.Context) error {
	controller, err := s.getController(strings.ToLower(e.Param("namespace")), strings.ToLower(e.Param("alias")))
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "readDid", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil {
		return helpers.NotFound(e)
	}
	return e.Blob(200, "application/did+ld+json", controller.Document)
}

func (s *Server) handleReadDIDLog(e echo.Context) error {
	controller, err := s.getController(strings.ToLower(e.Param("namespace")), strings.ToLower(e.Param("alias")))
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "readDidLog", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil {
		return helpers.NotFound(e)
	}

	entries, err := controllerLog(controller)
	if err != nil {
		s.logger.Error("error decoding log", "endpoint", "readDidLog", "error", err)
		return helpers.ServerError(e, nil)
	}

	var sb strings.Builder
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return helpers.ServerError(e, nil)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}

	return e.Blob(200, "text/jsonl", []byte(sb.String()))
}

func (s *Server) handleReadWitnessFile(e echo.Context) error {
	controller, err := s.getController(strings.ToLower(e.Param("namespace")), strings.ToLower(e.Param("alias")))
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "readWitnessFile", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil || len(controller.WitnessFile) == 0 {
		return helpers.NotFound(e)
	}
	return e.Blob(200, "application/json", controller.WitnessFile)
}
