package changestore

import (
	"encoding/json"
	"fmt"
)

// DiffKind discriminates the DiffContent variants.
type DiffKind string

const (
	DiffUnifiedDiff   DiffKind = "unified_diff"
	DiffCreateFile    DiffKind = "create_file"
	DiffDeleteFile    DiffKind = "delete_file"
	DiffBinarySummary DiffKind = "binary_summary"
)

// DiffContent is a tagged union over the ways a ChangeSet can describe a
// mutation. Each way is its own concrete type; Kind is the discriminant
// a caller switches on to know which one it has.
type DiffContent interface {
	Kind() DiffKind
	Validate() error
}

// diffContentWire is the single JSON shape every variant marshals to and
// unmarshals from, so the tagged union still round-trips through a
// one-object wire format.
type diffContentWire struct {
	Type      DiffKind `json:"type"`
	Content   string   `json:"content,omitempty"`
	MimeType  string   `json:"mime_type,omitempty"`
	SizeBytes int64    `json:"size_bytes,omitempty"`
	Hash      string   `json:"hash,omitempty"`
}

// UnifiedDiff carries a textual unified diff against the file's prior
// content.
type UnifiedDiff struct {
	Content string
}

func (UnifiedDiff) Kind() DiffKind { return DiffUnifiedDiff }

func (d UnifiedDiff) Validate() error {
	if d.Content == "" {
		return fmt.Errorf("changestore: unified_diff content must not be empty")
	}
	return nil
}

func (d UnifiedDiff) MarshalJSON() ([]byte, error) {
	return json.Marshal(diffContentWire{Type: DiffUnifiedDiff, Content: d.Content})
}

// CreateFile describes a brand-new file by its full content.
type CreateFile struct {
	Content string
}

func (CreateFile) Kind() DiffKind { return DiffCreateFile }

func (d CreateFile) Validate() error {
	if d.Content == "" {
		return fmt.Errorf("changestore: create_file content must not be empty")
	}
	return nil
}

func (d CreateFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(diffContentWire{Type: DiffCreateFile, Content: d.Content})
}

// DeleteFile describes a file removal. It carries no payload.
type DeleteFile struct{}

func (DeleteFile) Kind() DiffKind   { return DiffDeleteFile }
func (DeleteFile) Validate() error { return nil }

func (d DeleteFile) MarshalJSON() ([]byte, error) {
	return json.Marshal(diffContentWire{Type: DiffDeleteFile})
}

// BinarySummary describes a binary file by metadata only — the full
// content lives in the overlay workspace, not in the changeset record.
type BinarySummary struct {
	MimeType  string
	SizeBytes int64
	Hash      string
}

func (BinarySummary) Kind() DiffKind { return DiffBinarySummary }

func (d BinarySummary) Validate() error {
	if d.Hash == "" {
		return fmt.Errorf("changestore: binary_summary diff content requires a hash")
	}
	return nil
}

func (d BinarySummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(diffContentWire{
		Type:      DiffBinarySummary,
		MimeType:  d.MimeType,
		SizeBytes: d.SizeBytes,
		Hash:      d.Hash,
	})
}

// NewUnifiedDiff builds a DiffContent carrying a textual unified diff.
func NewUnifiedDiff(content string) DiffContent { return UnifiedDiff{Content: content} }

// NewCreateFile builds a DiffContent describing a brand-new file's full content.
func NewCreateFile(content string) DiffContent { return CreateFile{Content: content} }

// NewDeleteFile builds a DiffContent describing a file removal; it carries no payload.
func NewDeleteFile() DiffContent { return DeleteFile{} }

// NewBinarySummary builds a DiffContent describing a binary file by metadata only.
func NewBinarySummary(mimeType string, sizeBytes int64, hash string) DiffContent {
	return BinarySummary{MimeType: mimeType, SizeBytes: sizeBytes, Hash: hash}
}

// UnmarshalDiffContent decodes the single-object wire format into the
// concrete DiffContent variant named by its type field.
func UnmarshalDiffContent(data []byte) (DiffContent, error) {
	var wire diffContentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("changestore: unmarshal diff content: %w", err)
	}
	switch wire.Type {
	case DiffUnifiedDiff:
		return UnifiedDiff{Content: wire.Content}, nil
	case DiffCreateFile:
		return CreateFile{Content: wire.Content}, nil
	case DiffDeleteFile:
		return DeleteFile{}, nil
	case DiffBinarySummary:
		return BinarySummary{MimeType: wire.MimeType, SizeBytes: wire.SizeBytes, Hash: wire.Hash}, nil
	default:
		return nil, fmt.Errorf("changestore: unknown diff content type %q", wire.Type)
	}
}
