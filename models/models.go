package models

import "time"

// DIDController holds everything the server persists for one identifier:
// the full log, the witness file, the whois presentation and denormalized
// snapshots of the resolved state for cheap reads. JSON columns are stored
// as raw bytes and decoded at the edge.
type DIDController struct {
	Scid        string `gorm:"primaryKey"`
	Did         string `gorm:"uniqueIndex"`
	Domain      string `gorm:"index"`
	Namespace   string `gorm:"index:idx_controller_namespace_alias,unique"`
	Alias       string `gorm:"index:idx_controller_namespace_alias,unique"`
	Deactivated bool   `gorm:"index"`

	Logs        []byte
	WitnessFile []byte
	Whois       []byte

	Parameters []byte
	Document   []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttestedResourceRecord is one content-addressed payload bound to a
// controller. ResourceID is the multibase content digest, unique per
// controller.
type AttestedResourceRecord struct {
	Scid         string `gorm:"primaryKey;index:idx_resource_scid_type"`
	ResourceID   string `gorm:"primaryKey"`
	Did          string `gorm:"index"`
	ResourceType string `gorm:"index:idx_resource_scid_type"`
	ResourceName string
	Resource     []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialRecord stores an issued verifiable credential, either with an
// embedded data-integrity proof or enveloped as vc+jwt.
type CredentialRecord struct {
	Scid         string `gorm:"primaryKey"`
	CredentialID string `gorm:"primaryKey"`
	Did          string `gorm:"index"`
	Format       string `gorm:"index"`
	Credential   []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// KnownWitness is one entry of the known-witness registry, keyed by the
// witness did:key.
type KnownWitness struct {
	Did          string `gorm:"primaryKey"`
	Label        string
	InvitationID string
	Invitation   string

	CreatedAt time.Time
}
