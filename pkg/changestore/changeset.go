package changestore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trusted-autonomy/ta/pkg/tahash"
)

// ChangeKind names the surface a ChangeSet mutates. FsPatch is the only
// kind the overlay workspace produces; the others exist so non-filesystem
// connectors (email drafts, social posts — external collaborators) can
// record through the same ChangeSet shape.
type ChangeKind string

const (
	KindFsPatch     ChangeKind = "fs_patch"
	KindDbPatch     ChangeKind = "db_patch"
	KindEmailDraft  ChangeKind = "email_draft"
	KindSocialDraft ChangeKind = "social_draft"
	KindOther       ChangeKind = "other"
)

// CommitIntent records what the agent asked to happen with this change
// beyond staging it; None means "just stage it".
type CommitIntent string

const (
	CommitIntentNone           CommitIntent = "none"
	CommitIntentRequestCommit CommitIntent = "request_commit"
	CommitIntentRequestSend   CommitIntent = "request_send"
	CommitIntentRequestPost   CommitIntent = "request_post"
)

// ChangeSet is one recorded mutation. Once constructed it is never mutated;
// ContentHash must equal SHA-256 of the serialized DiffContent.
type ChangeSet struct {
	ChangesetID  uuid.UUID    `json:"changeset_id"`
	TargetURI    string       `json:"target_uri"`
	Kind         ChangeKind   `json:"kind"`
	DiffContent  DiffContent  `json:"diff_content"`
	ContentHash  string       `json:"content_hash"`
	CreatedAt    time.Time    `json:"created_at"`
	CommitIntent CommitIntent `json:"commit_intent"`
	RiskFlags    []string     `json:"risk_flags,omitempty"`
}

// New builds a ChangeSet and computes its content hash over the serialized
// diff content, per spec invariant 1.
func New(targetURI string, kind ChangeKind, diff DiffContent, intent CommitIntent, riskFlags []string) (ChangeSet, error) {
	if err := diff.Validate(); err != nil {
		return ChangeSet{}, err
	}

	cs := ChangeSet{
		ChangesetID:  uuid.New(),
		TargetURI:    targetURI,
		Kind:         kind,
		DiffContent:  diff,
		CreatedAt:    time.Now().UTC(),
		CommitIntent: intent,
		RiskFlags:    riskFlags,
	}

	hash, err := cs.computeHash()
	if err != nil {
		return ChangeSet{}, err
	}
	cs.ContentHash = hash
	return cs, nil
}

func (c ChangeSet) computeHash() (string, error) {
	b, err := json.Marshal(c.DiffContent)
	if err != nil {
		return "", err
	}
	return tahash.Bytes(b), nil
}

// changeSetWire mirrors ChangeSet but holds DiffContent as a raw JSON
// object, since encoding/json cannot unmarshal directly into an interface
// field — UnmarshalJSON dispatches it to the concrete variant by its
// "type" discriminant once the rest of the record is decoded.
type changeSetWire struct {
	ChangesetID  uuid.UUID       `json:"changeset_id"`
	TargetURI    string          `json:"target_uri"`
	Kind         ChangeKind      `json:"kind"`
	DiffContent  json.RawMessage `json:"diff_content"`
	ContentHash  string          `json:"content_hash"`
	CreatedAt    time.Time       `json:"created_at"`
	CommitIntent CommitIntent    `json:"commit_intent"`
	RiskFlags    []string        `json:"risk_flags,omitempty"`
}

// UnmarshalJSON decodes a ChangeSet, resolving its DiffContent to the
// concrete variant named by the wire object's "type" field.
func (c *ChangeSet) UnmarshalJSON(data []byte) error {
	var w changeSetWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	diff, err := UnmarshalDiffContent(w.DiffContent)
	if err != nil {
		return err
	}
	c.ChangesetID = w.ChangesetID
	c.TargetURI = w.TargetURI
	c.Kind = w.Kind
	c.DiffContent = diff
	c.ContentHash = w.ContentHash
	c.CreatedAt = w.CreatedAt
	c.CommitIntent = w.CommitIntent
	c.RiskFlags = w.RiskFlags
	return nil
}

// VerifyHash recomputes ContentHash from DiffContent and reports whether it
// still matches the stored value. Used both immediately after construction
// and after a serialize/deserialize round trip (§8 universal property).
func (c ChangeSet) VerifyHash() (bool, error) {
	hash, err := c.computeHash()
	if err != nil {
		return false, err
	}
	return hash == c.ContentHash, nil
}
