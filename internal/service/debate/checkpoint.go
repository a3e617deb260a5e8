package debate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/config"
	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

// CheckpointSchemaVersion is stamped into every checkpoint and checked on
// load with a strict equality match (spec.md §6.2): a version mismatch is
// an integrity failure, never a best-effort migration.
const CheckpointSchemaVersion = 1

// CheckpointHMACEnvVar is the environment variable a deployment may set to
// have checkpoints carry an HMAC-SHA-256 in addition to their content hash.
const CheckpointHMACEnvVar = "QUORUM_DEBATE_CHECKPOINT_HMAC_SECRET"

// checkpointEnvelope is the on-disk checkpoint document (spec.md §6.2):
// version, engineVersion, sessionId, timestamp, phase, config, configHash,
// agentRounds, judgeRounds, integrity. Metadata and FinalVerdict are carried
// too, so a resumed session's counters and (if the session had already
// terminated) verdict survive the round trip.
type checkpointEnvelope struct {
	Version      int                  `json:"version"`
	EngineVersion string              `json:"engineVersion"`
	SessionID    string               `json:"sessionId"`
	Timestamp    time.Time            `json:"timestamp"`
	Phase        core.Phase           `json:"phase"`
	Topic        string               `json:"topic"`
	InitialQuery string               `json:"initialQuery"`
	Config       config.Config        `json:"config"`
	ConfigHash   string               `json:"configHash"`
	AgentRounds  []core.RoundResult   `json:"agentRounds"`
	JudgeRounds  []core.JudgeRoundResult `json:"judgeRounds"`
	Metadata     core.SessionMetadata `json:"metadata"`
	FinalVerdict *core.FinalVerdict   `json:"finalVerdict"`
	Integrity    checkpointIntegrity  `json:"integrity"`
}

type checkpointIntegrity struct {
	SHA256 string `json:"sha256"`
	HMAC   string `json:"hmac,omitempty"`
}

// CheckpointPath returns the on-disk path for a session's checkpoint
// (spec.md §6.2): <checkpointDir>/<sessionId>.checkpoint.json.
func CheckpointPath(checkpointDir, sessionID string) string {
	return filepath.Join(checkpointDir, sessionID+".checkpoint.json")
}

// WriteCheckpoint serializes session to canonical JSON, hashes it, optionally
// HMACs it with the secret in CheckpointHMACEnvVar, and writes it atomically
// via config.AtomicWrite (spec.md §6.2).
func WriteCheckpoint(checkpointDir string, session *core.DebateSession) error {
	configHash, err := hashConfig(session.Config)
	if err != nil {
		return core.ErrIntegrity("CHECKPOINT_ENCODE_FAILED", "failed to hash session config").WithCause(err)
	}

	envelope := checkpointEnvelope{
		Version:       CheckpointSchemaVersion,
		EngineVersion: session.Metadata.EngineVersion,
		SessionID:     session.ID,
		Timestamp:     time.Now().UTC(),
		Phase:         session.Phase,
		Topic:         session.Topic,
		InitialQuery:  session.InitialQuery,
		Config:        session.Config,
		ConfigHash:    configHash,
		AgentRounds:   session.AgentRounds,
		JudgeRounds:   session.JudgeRounds,
		Metadata:      session.Metadata,
		FinalVerdict:  session.FinalVerdict,
	}

	canonical, err := canonicalJSON(envelope)
	if err != nil {
		return core.ErrIntegrity("CHECKPOINT_ENCODE_FAILED", "failed to canonicalize checkpoint").WithCause(err)
	}
	envelope.Integrity.SHA256 = sha256Hex(canonical)
	if secret := os.Getenv(CheckpointHMACEnvVar); secret != "" {
		envelope.Integrity.HMAC = hmacHex(secret, []byte(envelope.Integrity.SHA256))
	}

	final, err := canonicalJSON(envelope)
	if err != nil {
		return core.ErrIntegrity("CHECKPOINT_ENCODE_FAILED", "failed to canonicalize checkpoint").WithCause(err)
	}

	path := CheckpointPath(checkpointDir, session.ID)
	if err := config.AtomicWrite(path, final); err != nil {
		return core.ErrIntegrity("CHECKPOINT_WRITE_FAILED", fmt.Sprintf("writing checkpoint to %s", path)).WithCause(err)
	}
	session.Metadata.CheckpointPath = &path
	return nil
}

// ReadCheckpoint loads and verifies a session's checkpoint: version must
// match CheckpointSchemaVersion exactly, the SHA-256 over the
// integrity-zeroed envelope must match, and (when CheckpointHMACEnvVar is
// set) the HMAC must also match. Any mismatch is a fatal integrity error
// (spec.md §6.2) — there is no partial-trust fallback.
func ReadCheckpoint(checkpointDir, sessionID string) (*core.DebateSession, error) {
	path := CheckpointPath(checkpointDir, sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.ErrIntegrity("CHECKPOINT_READ_FAILED", fmt.Sprintf("reading checkpoint %s", path)).WithCause(err)
	}

	var envelope checkpointEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, core.ErrIntegrity("CHECKPOINT_DECODE_FAILED", "checkpoint is not valid JSON").WithCause(err)
	}
	if envelope.Version != CheckpointSchemaVersion {
		return nil, core.ErrIntegrity("CHECKPOINT_VERSION_MISMATCH", fmt.Sprintf("checkpoint version %d does not match expected %d", envelope.Version, CheckpointSchemaVersion))
	}

	claimedIntegrity := envelope.Integrity
	envelope.Integrity = checkpointIntegrity{}
	canonical, err := canonicalJSON(envelope)
	if err != nil {
		return nil, core.ErrIntegrity("CHECKPOINT_ENCODE_FAILED", "failed to canonicalize checkpoint for verification").WithCause(err)
	}

	if sha256Hex(canonical) != claimedIntegrity.SHA256 {
		return nil, core.ErrIntegrity("CHECKPOINT_HASH_MISMATCH", "checkpoint content does not match its recorded hash")
	}
	if secret := os.Getenv(CheckpointHMACEnvVar); secret != "" {
		if claimedIntegrity.HMAC == "" || hmacHex(secret, []byte(claimedIntegrity.SHA256)) != claimedIntegrity.HMAC {
			return nil, core.ErrIntegrity("CHECKPOINT_HMAC_MISMATCH", "checkpoint HMAC does not match configured secret")
		}
	}

	session := &core.DebateSession{
		ID:           envelope.SessionID,
		Topic:        envelope.Topic,
		InitialQuery: envelope.InitialQuery,
		Phase:        envelope.Phase,
		Config:       envelope.Config,
		AgentRounds:  envelope.AgentRounds,
		JudgeRounds:  envelope.JudgeRounds,
		FinalVerdict: envelope.FinalVerdict,
		Metadata:     envelope.Metadata,
	}
	path = CheckpointPath(checkpointDir, session.ID)
	session.Metadata.CheckpointPath = &path
	return session, nil
}

// hashConfig returns the hex SHA-256 of cfg's canonical JSON encoding, used
// as the checkpoint's configHash field (spec.md §6.2).
func hashConfig(cfg config.Config) (string, error) {
	canonical, err := canonicalJSON(cfg)
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

// canonicalJSON re-encodes v with object keys sorted lexicographically at
// every depth: Go's encoding/json already sorts map[string]any keys, so
// round-tripping v through an untyped decode before the final marshal turns
// struct field order into alphabetical map order, recursively.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacHex(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
