package draftpkg

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const sidecarSuffix = ".diff.explanation.yaml"

const sidecarSchemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["summary"],
  "properties": {
    "summary": {"type": "string"},
    "explanation": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "related_artifacts": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	sidecarSchemaOnce sync.Once
	sidecarSchema     *jsonschema.Schema
	sidecarSchemaErr  error
)

func compiledSidecarSchema() (*jsonschema.Schema, error) {
	sidecarSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("sidecar.json", strings.NewReader(sidecarSchemaSource)); err != nil {
			sidecarSchemaErr = fmt.Errorf("draftpkg: add sidecar schema: %w", err)
			return
		}
		sidecarSchema, sidecarSchemaErr = compiler.Compile("sidecar.json")
	})
	return sidecarSchema, sidecarSchemaErr
}

// FindSidecarForFile looks for `<filePath>.diff.explanation.yaml` and
// parses it, normalizing related_artifacts into fs://workspace/ URIs. A
// missing sidecar is not an error: it returns (nil, nil).
func FindSidecarForFile(filePath string) (*ExplanationTiers, error) {
	sidecarPath := filePath + sidecarSuffix
	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("draftpkg: read sidecar %s: %w", sidecarPath, err)
	}
	return ParseSidecar(raw)
}

// ParseSidecar validates raw YAML bytes against the sidecar schema and
// decodes it into ExplanationTiers, normalizing related_artifacts.
func ParseSidecar(raw []byte) (*ExplanationTiers, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("draftpkg: parse sidecar yaml: %w", err)
	}

	schema, err := compiledSidecarSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(toJSONCompatible(generic)); err != nil {
		return nil, fmt.Errorf("draftpkg: sidecar failed schema validation: %w", err)
	}

	var tiers ExplanationTiers
	if err := yaml.Unmarshal(raw, &tiers); err != nil {
		return nil, fmt.Errorf("draftpkg: decode sidecar: %w", err)
	}

	normalized := make([]string, len(tiers.RelatedArtifacts))
	for i, ref := range tiers.RelatedArtifacts {
		normalized[i] = normalizeArtifactURI(ref)
	}
	tiers.RelatedArtifacts = normalized

	return &tiers, nil
}

func normalizeArtifactURI(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	return "fs://workspace/" + strings.TrimPrefix(ref, "/")
}

// toJSONCompatible converts yaml.v3's decoded types (map[string]interface{}
// with some int/map[interface{}]interface{} edge cases depending on
// structure) into the plain map[string]interface{}/[]interface{} shape
// jsonschema expects.
func toJSONCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = toJSONCompatible(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = toJSONCompatible(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = toJSONCompatible(val)
		}
		return out
	default:
		return v
	}
}
