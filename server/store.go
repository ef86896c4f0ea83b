package server

import (
	"encoding/json"
	"errors"

	"github.com/opsecid/webvh-server/models"
	"github.com/opsecid/webvh-server/webvh"
	"gorm.io/gorm"
)

func (s *Server) getController(namespace, alias string) (*models.DIDController, error) {
	var controller models.DIDController
	if err := s.db.First(&controller, models.DIDController{Namespace: namespace, Alias: alias}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &controller, nil
}

func (s *Server) getControllerByDid(did string) (*models.DIDController, error) {
	var controller models.DIDController
	if err := s.db.First(&controller, models.DIDController{Did: did}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &controller, nil
}

// controllerLog decodes the persisted log tail.
func controllerLog(controller *models.DIDController) ([]webvh.LogEntry, error) {
	if controller == nil {
		return nil, nil
	}
	var entries []webvh.LogEntry
	if err := json.Unmarshal(controller.Logs, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// controllerDocument decodes the resolved document snapshot.
func controllerDocument(controller *models.DIDController) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(controller.Document, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Server) getResource(scid, resourceID string) (*models.AttestedResourceRecord, error) {
	var record models.AttestedResourceRecord
	if err := s.db.First(&record, models.AttestedResourceRecord{Scid: scid, ResourceID: resourceID}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Server) getCredential(scid, credentialID string) (*models.CredentialRecord, error) {
	var record models.CredentialRecord
	if err := s.db.First(&record, models.CredentialRecord{Scid: scid, CredentialID: credentialID}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (s *Server) getKnownWitness(did string) (*models.KnownWitness, error) {
	var witness models.KnownWitness
	if err := s.db.First(&witness, models.KnownWitness{Did: did}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &witness, nil
}

func (s *Server) listKnownWitnesses() ([]models.KnownWitness, error) {
	var witnesses []models.KnownWitness
	if err := s.db.Find(&witnesses).Error; err != nil {
		return nil, err
	}
	return witnesses, nil
}

// witnessRegistry adapts the witness table to the read-only registry view
// the core consults.
type witnessRegistry struct {
	db *gorm.DB
}

func (r *witnessRegistry) LookupWitness(did string) (*webvh.KnownWitness, error) {
	var witness models.KnownWitness
	if err := r.db.First(&witness, models.KnownWitness{Did: did}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &webvh.KnownWitness{DID: witness.Did, Label: witness.Label}, nil
}

func (r *witnessRegistry) ListWitnesses() ([]webvh.KnownWitness, error) {
	var witnesses []models.KnownWitness
	if err := r.db.Find(&witnesses).Error; err != nil {
		return nil, err
	}
	out := make([]webvh.KnownWitness, 0, len(witnesses))
	for _, w := range witnesses {
		out = append(out, webvh.KnownWitness{DID: w.Did, Label: w.Label})
	}
	return out, nil
}
