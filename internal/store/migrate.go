package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"recletter/internal/errors"
	"recletter/internal/types"

	"github.com/google/uuid"
)

// document is the loosely typed form of a stored state, used while migrating
type document map[string]any

// migration upgrades a document from one schema version to the next
type migration struct {
	from    int
	name    string
	upgrade func(doc document) document
}

// migrations is applied in order starting from the detected version
var migrations = []migration{
	{from: 0, name: "wrap context and drop legacy string questions", upgrade: migrateV0},
	{from: 1, name: "assign draft ids", upgrade: migrateV1},
}

// DecodeState parses a stored document of any known schema version
func DecodeState(raw []byte, logger *errors.Logger) (*State, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse state document: %w", err)
	}
	if doc == nil {
		return NewState(), nil
	}

	version := detectVersion(doc)
	if version > SchemaVersion {
		return nil, fmt.Errorf("state schema version %d is newer than supported version %d", version, SchemaVersion)
	}

	for _, m := range migrations {
		if m.from < version {
			continue
		}
		if logger != nil {
			logger.Debug("Migrating stored state", "from", m.from, "to", m.from+1, "migration", m.name)
		}
		doc = m.upgrade(doc)
		version = m.from + 1
	}
	doc["schemaVersion"] = version

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode migrated state: %w", err)
	}

	var state State
	if err := json.Unmarshal(normalized, &state); err != nil {
		return nil, fmt.Errorf("failed to decode migrated state: %w", err)
	}
	if _, ok := doc["context"]; !ok {
		state.Context = types.DefaultProgramContext()
	}
	state.Context = state.Context.Normalized()
	if state.Context.CustomQuestions == nil {
		state.Context.CustomQuestions = []types.Question{}
	}
	if state.Drafts == nil {
		state.Drafts = []types.Draft{}
	}
	return &state, nil
}

// EncodeState serializes state at the current schema version
func EncodeState(state *State) ([]byte, error) {
	out := *state
	out.SchemaVersion = SchemaVersion
	out.Context = state.Context.Normalized()
	if out.Drafts == nil {
		out.Drafts = []types.Draft{}
	}
	return json.Marshal(out)
}

func detectVersion(doc document) int {
	if v, ok := doc["schemaVersion"].(float64); ok {
		return int(v)
	}
	if v, ok := doc["schemaVersion"].(int); ok {
		return v
	}
	return 0
}

// migrateV0 handles documents written before versioning. Those were either a
// bare program context or a {context, drafts} pair, and their customQuestions
// could be plain strings.
func migrateV0(doc document) document {
	if _, hasContext := doc["context"]; !hasContext {
		if _, bare := doc["applicantName"]; bare {
			doc = document{"context": map[string]any(doc)}
		}
	}

	ctx, ok := doc["context"].(map[string]any)
	if !ok {
		delete(doc, "context")
		return doc
	}
	if list, ok := ctx["customQuestions"].([]any); ok {
		if slices.ContainsFunc(list, func(item any) bool {
			_, isObject := item.(map[string]any)
			return !isObject
		}) {
			ctx["customQuestions"] = []any{}
		}
	} else {
		ctx["customQuestions"] = []any{}
	}
	for _, key := range []string{"coreQualities", "specificAnecdotes"} {
		if _, ok := ctx[key].([]any); !ok {
			delete(ctx, key)
		}
	}
	return doc
}

// migrateV1 gives every draft an id and a timestamp
func migrateV1(doc document) document {
	drafts, ok := doc["drafts"].([]any)
	if !ok {
		doc["drafts"] = []any{}
		return doc
	}
	kept := make([]any, 0, len(drafts))
	for _, item := range drafts {
		d, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := d["id"].(string); id == "" {
			d["id"] = uuid.NewString()
		}
		d["timestamp"] = legacyTimestamp(d["timestamp"])
		if label, _ := d["label"].(string); label == "" {
			d["label"] = string(types.DraftLabelTemplate)
		}
		kept = append(kept, d)
	}
	doc["drafts"] = kept
	return doc
}

// legacyTimestamp accepts RFC 3339 strings and epoch milliseconds
func legacyTimestamp(v any) string {
	switch ts := v.(type) {
	case string:
		if _, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return ts
		}
	case float64:
		return time.UnixMilli(int64(ts)).UTC().Format(time.RFC3339Nano)
	}
	return time.Time{}.Format(time.RFC3339)
}
