package server

import (
	"encoding/json"
	"time"

	"github.com/opsecid/webvh-server/models"
	"github.com/opsecid/webvh-server/webvh"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registrar owns the per-identifier session coordinator and runs every
// mutating operation as an atomic read-tail, validate, append sequence.
// Reads go straight to the store and observe either the pre- or post-write
// row, never a torn one.
type Registrar struct {
	s        *Server
	db       *gorm.DB
	sessions *webvh.Sessions
}

func NewRegistrar(s *Server) *Registrar {
	return &Registrar{
		s:        s,
		db:       s.db,
		sessions: webvh.NewSessions(),
	}
}

// SubmitLogEntry validates and appends one candidate entry for the
// identifier, returning the resolved state on success.
func (r *Registrar) SubmitLogEntry(namespace, alias string, entry webvh.LogEntry, witnessSig *webvh.WitnessSignature) (*webvh.DocumentState, error) {
	unlock := r.sessions.Lock(namespace, alias)
	defer unlock()

	controller, err := r.s.getController(namespace, alias)
	if err != nil {
		return nil, err
	}

	tail, err := controllerLog(controller)
	if err != nil {
		return nil, err
	}

	log, state, err := r.s.engine.Submit(namespace, alias, tail, entry, witnessSig)
	if err != nil {
		return nil, err
	}

	record, err := r.controllerRecord(namespace, alias, log, state, controller, witnessSig)
	if err != nil {
		return nil, err
	}

	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scid"}},
		UpdateAll: true,
	}).Create(record).Error; err != nil {
		return nil, err
	}

	return state, nil
}

func (r *Registrar) controllerRecord(namespace, alias string, log []webvh.LogEntry, state *webvh.DocumentState, prev *models.DIDController, witnessSig *webvh.WitnessSignature) (*models.DIDController, error) {
	logs, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}

	document, err := json.Marshal(state.Document)
	if err != nil {
		return nil, err
	}

	parameters, err := json.Marshal(state.Params)
	if err != nil {
		return nil, err
	}

	witnessFile := []webvh.WitnessSignature{}
	if prev != nil && len(prev.WitnessFile) > 0 {
		if err := json.Unmarshal(prev.WitnessFile, &witnessFile); err != nil {
			return nil, err
		}
	}
	if witnessSig != nil {
		witnessFile = append(witnessFile, *witnessSig)
	}
	witnesses, err := json.Marshal(witnessFile)
	if err != nil {
		return nil, err
	}

	record := &models.DIDController{
		Scid:        state.SCID,
		Did:         state.DID(),
		Domain:      r.s.config.Domain,
		Namespace:   namespace,
		Alias:       alias,
		Deactivated: state.Params.Deactivated,
		Logs:        logs,
		WitnessFile: witnesses,
		Parameters:  parameters,
		Document:    document,
	}
	if prev != nil {
		record.CreatedAt = prev.CreatedAt
		record.Whois = prev.Whois
	}
	record.UpdatedAt = time.Now().UTC()

	return record, nil
}

// UpsertResource validates and stores an attested resource under the
// identifier's lock, enforcing content immutability on update.
func (r *Registrar) UpsertResource(namespace, alias string, resource *webvh.AttestedResource) error {
	unlock := r.sessions.Lock(namespace, alias)
	defer unlock()

	controller, err := r.s.getController(namespace, alias)
	if err != nil {
		return err
	}
	if controller == nil {
		return &webvh.Rejection{Kind: webvh.KindAuthorizationFailure, Reason: "unknown controller"}
	}

	document, err := controllerDocument(controller)
	if err != nil {
		return err
	}

	stored, err := r.s.getResource(controller.Scid, resource.Digest())
	if err != nil {
		return err
	}

	if stored != nil {
		var existing webvh.AttestedResource
		if err := json.Unmarshal(stored.Resource, &existing); err != nil {
			return err
		}
		if err := r.s.engine.VerifyResourceUpdate(&existing, resource, controller.Did, document); err != nil {
			return err
		}
	} else if err := r.s.engine.VerifyResource(resource, controller.Did, document); err != nil {
		return err
	}

	raw, err := json.Marshal(resource)
	if err != nil {
		return err
	}

	record := &models.AttestedResourceRecord{
		Scid:       controller.Scid,
		ResourceID: resource.Digest(),
		Did:        controller.Did,
		Resource:   raw,
	}
	if resource.Metadata != nil {
		record.ResourceType = resource.Metadata.ResourceType
		record.ResourceName = resource.Metadata.ResourceName
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scid"}, {Name: "resource_id"}},
		UpdateAll: true,
	}).Create(record).Error
}
