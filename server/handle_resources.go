package server

import (
	"strings"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/opsecid/webvh-server/internal/helpers"
	"github.com/opsecid/webvh-server/webvh"
)

type ResourceUploadRequest struct {
	AttestedResource *webvh.AttestedResource `json:"attestedResource" validate:"required"`
}

// handleUploadResource stores a new attested resource. The owning identifier
// is derived from the resource id itself.
func (s *Server) handleUploadResource(e echo.Context) error {
	var request ResourceUploadRequest
	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "uploadResource", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("MissingAttestedResource"))
	}

	resource := request.AttestedResource
	_, _, namespace, alias, err := webvh.ParseIdentifier(resource.ControllerDID())
	if err != nil {
		return helpers.InputError(e, to.StringPtr("InvalidResourceId"))
	}

	if err := s.registrar.UpsertResource(namespace, alias, resource); err != nil {
		if rej, ok := webvh.AsRejection(err); ok {
			return helpers.RejectionError(e, rej)
		}
		s.logger.Error("error storing resource", "endpoint", "uploadResource", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(201, resource)
}

// handleUpdateResource replaces the metadata, links and proof of an existing
// resource. Content is immutable and re-verified against the original digest.
func (s *Server) handleUpdateResource(e echo.Context) error {
	namespace := strings.ToLower(e.Param("namespace"))
	alias := strings.ToLower(e.Param("alias"))
	digest := e.Param("digest")

	var request ResourceUploadRequest
	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "updateResource", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("MissingAttestedResource"))
	}

	resource := request.AttestedResource
	if resource.Digest() != strings.SplitN(digest, ".", 2)[0] {
		return helpers.InputError(e, to.StringPtr("InvalidResourceId"))
	}

	controller, err := s.getController(namespace, alias)
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "updateResource", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil {
		return helpers.NotFound(e)
	}

	stored, err := s.getResource(controller.Scid, resource.Digest())
	if err != nil {
		s.logger.Error("error fetching resource", "endpoint", "updateResource", "error", err)
		return helpers.ServerError(e, nil)
	}
	if stored == nil {
		return helpers.NotFound(e)
	}

	if err := s.registrar.UpsertResource(namespace, alias, resource); err != nil {
		if rej, ok := webvh.AsRejection(err); ok {
			return helpers.RejectionError(e, rej)
		}
		s.logger.Error("error updating resource", "endpoint", "updateResource", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(200, resource)
}

func (s *Server) handleGetResource(e echo.Context) error {
	namespace := strings.ToLower(e.Param("namespace"))
	alias := strings.ToLower(e.Param("alias"))
	digest := strings.SplitN(e.Param("digest"), ".", 2)[0]

	controller, err := s.getController(namespace, alias)
	if err != nil {
		s.logger.Error("error fetching controller", "endpoint", "getResource", "error", err)
		return helpers.ServerError(e, nil)
	}
	if controller == nil {
		return helpers.NotFound(e)
	}

	record, err := s.getResource(controller.Scid, digest)
	if err != nil {
		s.logger.Error("error fetching resource", "endpoint", "getResource", "error", err)
		return helpers.ServerError(e, nil)
	}
	if record == nil {
		return helpers.NotFound(e)
	}

	return e.Blob(200, "application/json", record.Resource)
}
