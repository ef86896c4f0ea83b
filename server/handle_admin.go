package server

import (
	"crypto/subtle"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/opsecid/webvh-server/internal/helpers"
	"github.com/opsecid/webvh-server/models"
)

func (s *Server) handleAdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(e echo.Context) error {
		key := e.Request().Header.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
			return helpers.Unauthorized(e, to.StringPtr("InvalidApiKey"))
		}

		if err := next(e); err != nil {
			e.Error(err)
		}

		return nil
	}
}

type KnownWitnessesResponse struct {
	Registry map[string]KnownWitnessEntry `json:"registry"`
}

type KnownWitnessEntry struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

func (s *Server) handleGetKnownWitnesses(e echo.Context) error {
	witnesses, err := s.listKnownWitnesses()
	if err != nil {
		s.logger.Error("error listing witnesses", "endpoint", "getKnownWitnesses", "error", err)
		return helpers.ServerError(e, nil)
	}

	registry := map[string]KnownWitnessEntry{}
	for _, w := range witnesses {
		registry[w.Did] = KnownWitnessEntry{Name: w.Label, URL: w.Invitation}
	}

	return e.JSON(200, KnownWitnessesResponse{Registry: registry})
}

type AddWitnessRequest struct {
	Multikey   string `json:"multikey" validate:"required,multikey"`
	Label      string `json:"label" validate:"required"`
	Invitation string `json:"invitation"`
}

func (s *Server) handleAddKnownWitness(e echo.Context) error {
	var request AddWitnessRequest
	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "addKnownWitness", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("InvalidMultikey"))
	}

	did := "did:key:" + request.Multikey

	existing, err := s.getKnownWitness(did)
	if err != nil {
		s.logger.Error("error fetching witness", "endpoint", "addKnownWitness", "error", err)
		return helpers.ServerError(e, nil)
	}
	if existing != nil {
		return helpers.InputError(e, to.StringPtr("WitnessAlreadyExists"))
	}

	witness := models.KnownWitness{
		Did:          did,
		Label:        request.Label,
		Invitation:   request.Invitation,
		InvitationID: uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(&witness).Error; err != nil {
		s.logger.Error("error storing witness", "endpoint", "addKnownWitness", "error", err)
		return helpers.ServerError(e, nil)
	}

	return s.handleGetKnownWitnesses(e)
}

func (s *Server) handleRemoveKnownWitness(e echo.Context) error {
	multikey := e.Param("multikey")
	did := "did:key:" + multikey

	existing, err := s.getKnownWitness(did)
	if err != nil {
		s.logger.Error("error fetching witness", "endpoint", "removeKnownWitness", "error", err)
		return helpers.ServerError(e, nil)
	}
	if existing == nil {
		return helpers.NotFound(e)
	}

	if err := s.db.Delete(&models.KnownWitness{}, models.KnownWitness{Did: did}).Error; err != nil {
		s.logger.Error("error deleting witness", "endpoint", "removeKnownWitness", "error", err)
		return helpers.ServerError(e, nil)
	}

	return s.handleGetKnownWitnesses(e)
}

type PolicyResponse struct {
	Version          string `json:"version"`
	WitnessThreshold int    `json:"witnessThreshold"`
	Watcher          string `json:"watcher,omitempty"`
	Portability      bool   `json:"portability"`
	Prerotation      bool   `json:"prerotation"`
	Endorsement      bool   `json:"endorsement"`
}

func (s *Server) handleGetPolicy(e echo.Context) error {
	policy := s.engine.Policy()
	return e.JSON(200, PolicyResponse{
		Version:          policy.Version,
		WitnessThreshold: policy.WitnessThreshold,
		Watcher:          policy.Watcher,
		Portability:      policy.Portability,
		Prerotation:      policy.Prerotation,
		Endorsement:      policy.Endorsement,
	})
}
