package server

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opsecid/webvh-server/models"
	"github.com/opsecid/webvh-server/webvh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDomain = "id.example.com"
	testAPIKey = "test-admin-key"
)

func newTestServer(t *testing.T, mutate func(*Args)) *Server {
	t.Helper()
	args := &Args{
		Addr:          ":0",
		DbURL:         fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
		Domain:        testDomain,
		MethodVersion: "1.0",
		AdminAPIKey:   testAPIKey,
		Version:       "test",
		Logger:        slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})),
	}
	if mutate != nil {
		mutate(args)
	}

	s, err := New(args)
	require.NoError(t, err)
	s.addRoutes()

	require.NoError(t, s.db.AutoMigrate(
		&models.DIDController{},
		&models.AttestedResourceRecord{},
		&models.CredentialRecord{},
		&models.KnownWitness{},
	))
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

type testKey struct {
	priv     ed25519.PrivateKey
	multikey string
}

func newTestKey(t *testing.T) *testKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	mk, err := webvh.MultikeyFromPublicKey(pub)
	require.NoError(t, err)
	return &testKey{priv: priv, multikey: mk}
}

func (k *testKey) keyDID() string {
	return "did:key:" + k.multikey
}

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

// signLogEntry attaches a did:key proof over the proof-less entry.
func signLogEntry(t *testing.T, key *testKey, entry *webvh.LogEntry) {
	t.Helper()
	entry.Proof = nil
	proof, err := webvh.SignProof(toMap(t, entry), webvh.DataIntegrityProof{
		Type:               webvh.ProofType,
		Cryptosuite:        webvh.ProofCryptosuite,
		ProofPurpose:       webvh.ProofPurpose,
		VerificationMethod: key.keyDID() + "#" + key.multikey,
	}, key.priv)
	require.NoError(t, err)
	entry.Proof = webvh.ProofSet{proof}
}

// buildFirstEntry requests a parameter offer and completes it into a signed
// first log entry, the way a controller-side client would.
func buildFirstEntry(t *testing.T, s *Server, key *testKey, namespace, alias string) webvh.LogEntry {
	t.Helper()
	rec := doJSON(t, s, http.MethodGet, "/?namespace="+namespace+"&identifier="+alias, nil, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	var offer RequestDIDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &offer))

	placeholder, _ := offer.DidDocument["id"].(string)
	require.Contains(t, placeholder, webvh.ScidPlaceholder)

	params := offer.Parameters
	params.UpdateKeys = []string{key.multikey}

	entry := webvh.LogEntry{
		VersionTime: time.Now().UTC().Format(time.RFC3339),
		Parameters:  params,
		State: map[string]any{
			"@context": []any{
				"https://www.w3.org/ns/did/v1",
				"https://w3id.org/security/multikey/v1",
			},
			"id": placeholder,
			"verificationMethod": []any{map[string]any{
				"id":                 placeholder + "#key-01",
				"type":               "Multikey",
				"controller":         placeholder,
				"publicKeyMultibase": key.multikey,
			}},
			"assertionMethod": []any{placeholder + "#key-01"},
		},
	}

	scid, err := webvh.DeriveSCID(entry)
	require.NoError(t, err)
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	raw = bytes.ReplaceAll(raw, []byte(webvh.ScidPlaceholder), []byte(scid))
	entry = webvh.LogEntry{}
	require.NoError(t, json.Unmarshal(raw, &entry))

	hash, err := webvh.ComputeEntryHash(entry, scid)
	require.NoError(t, err)
	entry.VersionID = "1-" + hash
	signLogEntry(t, key, &entry)
	return entry
}

func buildNextEntry(t *testing.T, key *testKey, prev webvh.LogEntry, version int, mutate func(*webvh.LogEntry)) webvh.LogEntry {
	t.Helper()
	entry := webvh.LogEntry{
		VersionTime: time.Now().UTC().Format(time.RFC3339),
		State:       prev.State,
	}
	if mutate != nil {
		mutate(&entry)
	}
	hash, err := webvh.ComputeEntryHash(entry, prev.VersionID)
	require.NoError(t, err)
	entry.VersionID = fmt.Sprintf("%d-%s", version, hash)
	signLogEntry(t, key, &entry)
	return entry
}

// createIdentifier registers a fresh identifier and returns its first entry
// and resolved DID.
func createIdentifier(t *testing.T, s *Server, key *testKey, namespace, alias string) (webvh.LogEntry, string) {
	t.Helper()
	entry := buildFirstEntry(t, s, key, namespace, alias)
	rec := doJSON(t, s, http.MethodPost, "/"+namespace+"/"+alias, SubmitLogEntryRequest{LogEntry: &entry}, nil)
	require.Equal(t, 201, rec.Code, rec.Body.String())

	var resp SubmitLogEntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	did, _ := resp.DidDocument["id"].(string)
	require.NotEmpty(t, did)
	return entry, did
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), testDomain)
}

func TestRequestDIDValidation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/?namespace=demo", nil, nil)
	assert.Equal(t, 400, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/?namespace=admin&identifier=alice", nil, nil)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "ReservedNamespace")

	rec = doJSON(t, s, http.MethodGet, "/?namespace=demo&identifier=no%20spaces", nil, nil)
	assert.Equal(t, 400, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/?namespace=demo&identifier=alice", nil, nil)
	assert.Equal(t, 200, rec.Code)

	var offer RequestDIDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &offer))
	assert.Equal(t, "did:webvh:1.0", offer.Parameters.Method)
	assert.Equal(t, webvh.ProofCryptosuite, offer.ProofOptions.Cryptosuite)
}

func TestSubmitAndResolve(t *testing.T) {
	s := newTestServer(t, nil)
	key := newTestKey(t)
	entry, did := createIdentifier(t, s, key, "demo", "alice")

	// The alias is now taken.
	rec := doJSON(t, s, http.MethodGet, "/?namespace=demo&identifier=alice", nil, nil)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "IdentifierTaken")

	// Resolution endpoints.
	rec = doJSON(t, s, http.MethodGet, "/demo/alice/did.json", nil, nil)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/did+ld+json", rec.Header().Get(echo.HeaderContentType))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, did, doc["id"])

	rec = doJSON(t, s, http.MethodGet, "/demo/alice/did.jsonl", nil, nil)
	require.Equal(t, 200, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 1)
	var logged webvh.LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &logged))
	assert.Equal(t, entry.VersionID, logged.VersionID)

	rec = doJSON(t, s, http.MethodGet, "/demo/alice/witness.json", nil, nil)
	assert.Equal(t, 404, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/demo/unknown/did.json", nil, nil)
	assert.Equal(t, 404, rec.Code)
}

func TestResolveDID(t *testing.T) {
	s := newTestServer(t, nil)
	key := newTestKey(t)
	entry, did := createIdentifier(t, s, key, "demo", "alice")

	rec := doJSON(t, s, http.MethodGet, "/resolve?did="+did, nil, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	var resolved ResolveDIDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, did, resolved.DidDocument["id"])
	assert.Equal(t, entry.VersionID, resolved.DidDocumentMetadata["versionId"])
	assert.Equal(t, false, resolved.DidDocumentMetadata["deactivated"])

	rec = doJSON(t, s, http.MethodGet, "/resolve?did=did:webvh:QmUnknown:"+testDomain+":demo:ghost", nil, nil)
	assert.Equal(t, 404, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/resolve", nil, nil)
	assert.Equal(t, 400, rec.Code)
}

func TestSubmitRejectionStatusMapping(t *testing.T) {
	s := newTestServer(t, nil)
	key := newTestKey(t)
	entry, _ := createIdentifier(t, s, key, "demo", "alice")

	// Resubmitting the latest version is a conflict.
	rec := doJSON(t, s, http.MethodPost, "/demo/alice", SubmitLogEntryRequest{LogEntry: &entry}, nil)
	assert.Equal(t, 409, rec.Code)
	assert.Contains(t, rec.Body.String(), "NoStateChange")

	// An entry signed by an unauthorized key is a 401.
	intruder := newTestKey(t)
	forged := buildNextEntry(t, intruder, entry, 2, nil)
	rec = doJSON(t, s, http.MethodPost, "/demo/alice", SubmitLogEntryRequest{LogEntry: &forged}, nil)
	assert.Equal(t, 401, rec.Code)
	assert.Contains(t, rec.Body.String(), "AuthorizationFailure")

	// Deactivation, then the identifier is gone.
	deactivation := buildNextEntry(t, key, entry, 2, func(e *webvh.LogEntry) {
		deactivated := true
		e.Parameters.Deactivated = &deactivated
	})
	rec = doJSON(t, s, http.MethodPost, "/demo/alice", SubmitLogEntryRequest{LogEntry: &deactivation}, nil)
	require.Equal(t, 201, rec.Code, rec.Body.String())

	third := buildNextEntry(t, key, deactivation, 3, nil)
	rec = doJSON(t, s, http.MethodPost, "/demo/alice", SubmitLogEntryRequest{LogEntry: &third}, nil)
	assert.Equal(t, 410, rec.Code)
	assert.Contains(t, rec.Body.String(), "IdentifierDeactivated")
}

func TestSubmitMissingLogEntry(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodPost, "/demo/alice", map[string]any{}, nil)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "MissingLogEntry")
}

func TestAdminRequiresAPIKey(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/admin/policy", nil, nil)
	assert.Equal(t, 401, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/admin/policy", nil, map[string]string{"x-api-key": "wrong"})
	assert.Equal(t, 401, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/admin/policy", nil, map[string]string{"x-api-key": testAPIKey})
	require.Equal(t, 200, rec.Code)

	var policy PolicyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &policy))
	assert.Equal(t, "1.0", policy.Version)
}

func TestAdminWitnessRegistry(t *testing.T) {
	s := newTestServer(t, nil)
	admin := map[string]string{"x-api-key": testAPIKey}
	witness := newTestKey(t)

	rec := doJSON(t, s, http.MethodPost, "/admin/known-witnesses", AddWitnessRequest{
		Multikey: witness.multikey,
		Label:    "Test Witness",
	}, admin)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	var listed KnownWitnessesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	entry, ok := listed.Registry[witness.keyDID()]
	require.True(t, ok)
	assert.Equal(t, "Test Witness", entry.Name)

	// Duplicates and malformed keys are rejected.
	rec = doJSON(t, s, http.MethodPost, "/admin/known-witnesses", AddWitnessRequest{
		Multikey: witness.multikey,
		Label:    "Test Witness",
	}, admin)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "WitnessAlreadyExists")

	rec = doJSON(t, s, http.MethodPost, "/admin/known-witnesses", AddWitnessRequest{
		Multikey: "not-a-multikey",
		Label:    "Bad Witness",
	}, admin)
	assert.Equal(t, 400, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/admin/known-witnesses/"+witness.multikey, nil, admin)
	require.Equal(t, 200, rec.Code)
	listed = KnownWitnessesResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed.Registry)

	rec = doJSON(t, s, http.MethodDelete, "/admin/known-witnesses/"+witness.multikey, nil, admin)
	assert.Equal(t, 404, rec.Code)
}

func TestSeedKnownWitness(t *testing.T) {
	witness := newTestKey(t)
	s := newTestServer(t, func(args *Args) {
		args.KnownWitnessKey = witness.multikey
	})

	require.NoError(t, s.seedKnownWitness())
	seeded, err := s.getKnownWitness(witness.keyDID())
	require.NoError(t, err)
	require.NotNil(t, seeded)
	assert.Equal(t, "Default Server Witness", seeded.Label)

	// Reseeding is a no-op.
	require.NoError(t, s.seedKnownWitness())
	all, err := s.listKnownWitnesses()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// signedResource builds a content-addressed resource signed with the
// identifier's document key.
func signedResource(t *testing.T, key *testKey, did string, content map[string]any) *webvh.AttestedResource {
	t.Helper()
	raw, err := json.Marshal(content)
	require.NoError(t, err)
	digest, err := webvh.DigestMultibase(json.RawMessage(raw))
	require.NoError(t, err)

	resource := &webvh.AttestedResource{
		Context: []string{"https://w3id.org/security/data-integrity/v2"},
		Type:    []string{"AttestedResource"},
		ID:      did + "/resources/" + digest,
		Content: raw,
		Metadata: &webvh.ResourceMetadata{
			ResourceID:   digest,
			ResourceType: "anonCredsSchema",
			ResourceName: "test-schema",
		},
	}

	proof, err := webvh.SignProof(toMap(t, resource), webvh.DataIntegrityProof{
		Type:               webvh.ProofType,
		Cryptosuite:        webvh.ProofCryptosuite,
		ProofPurpose:       webvh.ProofPurpose,
		VerificationMethod: did + "#key-01",
	}, key.priv)
	require.NoError(t, err)
	resource.Proof = webvh.ProofSet{proof}
	return resource
}

func TestResourceLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	key := newTestKey(t)
	_, did := createIdentifier(t, s, key, "demo", "alice")

	resource := signedResource(t, key, did, map[string]any{"attrNames": []any{"name", "age"}})
	digest := resource.Digest()

	rec := doJSON(t, s, http.MethodPost, "/resources", ResourceUploadRequest{AttestedResource: resource}, nil)
	require.Equal(t, 201, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/demo/alice/resources/"+digest, nil, nil)
	require.Equal(t, 200, rec.Code)
	var fetched webvh.AttestedResource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, resource.ID, fetched.ID)

	// Metadata may change; the update is re-verified and replaces the record.
	updated := signedResource(t, key, did, map[string]any{"attrNames": []any{"name", "age"}})
	updated.Metadata.ResourceName = "renamed-schema"
	updated.Proof = nil
	proof, err := webvh.SignProof(toMap(t, updated), webvh.DataIntegrityProof{
		Type:               webvh.ProofType,
		Cryptosuite:        webvh.ProofCryptosuite,
		ProofPurpose:       webvh.ProofPurpose,
		VerificationMethod: did + "#key-01",
	}, key.priv)
	require.NoError(t, err)
	updated.Proof = webvh.ProofSet{proof}

	rec = doJSON(t, s, http.MethodPut, "/demo/alice/resources/"+digest, ResourceUploadRequest{AttestedResource: updated}, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/demo/alice/resources/"+digest, nil, nil)
	require.Equal(t, 200, rec.Code)
	fetched = webvh.AttestedResource{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, "renamed-schema", fetched.Metadata.ResourceName)

	// Updating a resource that was never created is a 404.
	ghost := signedResource(t, key, did, map[string]any{"other": true})
	rec = doJSON(t, s, http.MethodPut, "/demo/alice/resources/"+ghost.Digest(), ResourceUploadRequest{AttestedResource: ghost}, nil)
	assert.Equal(t, 404, rec.Code)

	// A resource signed by a key outside the document is rejected.
	intruder := newTestKey(t)
	forged := signedResource(t, intruder, did, map[string]any{"forged": true})
	rec = doJSON(t, s, http.MethodPost, "/resources", ResourceUploadRequest{AttestedResource: forged}, nil)
	assert.Equal(t, 401, rec.Code)
}

func TestCredentialUpload(t *testing.T) {
	s := newTestServer(t, nil)
	key := newTestKey(t)
	_, did := createIdentifier(t, s, key, "demo", "alice")

	credential := map[string]any{
		"@context":          []any{"https://www.w3.org/ns/credentials/v2"},
		"type":              []any{"VerifiableCredential"},
		"id":                did + "/credentials/test-cred",
		"issuer":            did,
		"credentialSubject": map[string]any{"id": did, "kind": "example"},
	}
	proof, err := webvh.SignProof(credential, webvh.DataIntegrityProof{
		Type:               webvh.ProofType,
		Cryptosuite:        webvh.ProofCryptosuite,
		ProofPurpose:       webvh.ProofPurpose,
		VerificationMethod: did + "#key-01",
	}, key.priv)
	require.NoError(t, err)
	credential["proof"] = []any{toMap(t, proof)}

	rec := doJSON(t, s, http.MethodPost, "/demo/alice/credentials",
		CredentialUploadRequest{VerifiableCredential: credential}, nil)
	require.Equal(t, 201, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "test-cred")

	rec = doJSON(t, s, http.MethodGet, "/demo/alice/credentials/test-cred", nil, nil)
	require.Equal(t, 200, rec.Code)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, did, stored["issuer"])

	// An issuer other than the identifier's controller is rejected.
	foreign := map[string]any{
		"@context": []any{"https://www.w3.org/ns/credentials/v2"},
		"type":     []any{"VerifiableCredential"},
		"id":       did + "/credentials/foreign-cred",
		"issuer":   "did:webvh:QmOther:" + testDomain + ":demo:bob",
	}
	rec = doJSON(t, s, http.MethodPost, "/demo/alice/credentials",
		CredentialUploadRequest{VerifiableCredential: foreign}, nil)
	assert.Equal(t, 401, rec.Code)
}

func TestWhoisPresentation(t *testing.T) {
	s := newTestServer(t, nil)
	key := newTestKey(t)
	_, did := createIdentifier(t, s, key, "demo", "alice")

	rec := doJSON(t, s, http.MethodGet, "/demo/alice/whois.vp", nil, nil)
	assert.Equal(t, 404, rec.Code)

	presentation := map[string]any{
		"@context": []any{"https://www.w3.org/ns/credentials/v2"},
		"type":     []any{"VerifiablePresentation"},
		"holder":   did,
	}
	proof, err := webvh.SignProof(presentation, webvh.DataIntegrityProof{
		Type:               webvh.ProofType,
		Cryptosuite:        webvh.ProofCryptosuite,
		ProofPurpose:       webvh.ProofPurpose,
		VerificationMethod: did + "#key-01",
	}, key.priv)
	require.NoError(t, err)
	presentation["proof"] = []any{toMap(t, proof)}

	rec = doJSON(t, s, http.MethodPost, "/demo/alice/whois",
		WhoisUploadRequest{VerifiablePresentation: presentation}, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/demo/alice/whois.vp", nil, nil)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/vp", rec.Header().Get(echo.HeaderContentType))
	var stored map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, did, stored["holder"])
}

func TestWitnessedSubmission(t *testing.T) {
	witness := newTestKey(t)
	s := newTestServer(t, func(args *Args) {
		args.WitnessThreshold = 1
		args.KnownWitnessKey = witness.multikey
	})
	require.NoError(t, s.seedKnownWitness())

	key := newTestKey(t)
	entry := buildFirstEntry(t, s, key, "demo", "alice")

	// The offer lists the registered witness; without a witness signature the
	// submission does not meet the threshold.
	require.NotNil(t, entry.Parameters.Witness)
	rec := doJSON(t, s, http.MethodPost, "/demo/alice", SubmitLogEntryRequest{LogEntry: &entry}, nil)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "WitnessThresholdNotMet")

	proof, err := webvh.SignProof(map[string]any{"versionId": entry.VersionID}, webvh.DataIntegrityProof{
		Type:               webvh.ProofType,
		Cryptosuite:        webvh.ProofCryptosuite,
		ProofPurpose:       webvh.ProofPurpose,
		VerificationMethod: witness.keyDID() + "#" + witness.multikey,
	}, witness.priv)
	require.NoError(t, err)

	rec = doJSON(t, s, http.MethodPost, "/demo/alice", SubmitLogEntryRequest{
		LogEntry: &entry,
		WitnessSignature: &webvh.WitnessSignature{
			VersionID: entry.VersionID,
			Proof:     webvh.ProofSet{proof},
		},
	}, nil)
	require.Equal(t, 201, rec.Code, rec.Body.String())

	// The witness file is now served alongside the log.
	rec = doJSON(t, s, http.MethodGet, "/demo/alice/witness.json", nil, nil)
	require.Equal(t, 200, rec.Code)
	var witnessFile []webvh.WitnessSignature
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &witnessFile))
	require.Len(t, witnessFile, 1)
	assert.Equal(t, entry.VersionID, witnessFile[0].VersionID)
}

func TestSubmitIdentifierMustMatchPath(t *testing.T) {
	s := newTestServer(t, nil)
	key := newTestKey(t)

	// The entry resolves to demo/alice; posting it anywhere else must fail
	// and must not register anything under the posted path.
	entry := buildFirstEntry(t, s, key, "demo", "alice")
	rec := doJSON(t, s, http.MethodPost, "/demo/mallory", SubmitLogEntryRequest{LogEntry: &entry}, nil)
	assert.Equal(t, 401, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/demo/mallory/did.json", nil, nil)
	assert.Equal(t, 404, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/demo/alice", SubmitLogEntryRequest{LogEntry: &entry}, nil)
	assert.Equal(t, 201, rec.Code, rec.Body.String())
}

func TestSubmitRejectsInvalidPathSegments(t *testing.T) {
	s := newTestServer(t, nil)
	key := newTestKey(t)
	entry := buildFirstEntry(t, s, key, "demo", "alice")

	rec := doJSON(t, s, http.MethodPost, "/de!mo/alice", SubmitLogEntryRequest{LogEntry: &entry}, nil)
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidNamespaceOrIdentifier")
}
