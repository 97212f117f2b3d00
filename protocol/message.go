package protocol

import (
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Type is the "type" discriminator carried by every protocol message.
type Type string

// Recognized message types.
const (
	TypeSchema          Type = "SCHEMA"
	TypeRecord          Type = "RECORD"
	TypeState           Type = "STATE"
	TypeActivateVersion Type = "ACTIVATE_VERSION"
)

// Schema declares (or redeclares) a stream's shape. A schema for a
// stream the engine has not seen before registers that stream; a later
// one signals schema evolution.
type Schema struct {
	Stream             string              `json:"stream"`
	Schema             *jsonschema.Schema  `json:"schema"`
	KeyProperties      []string            `json:"key_properties"`
	BookmarkProperties []string            `json:"bookmark_properties,omitempty"`
}

// Record is one row of upstream data belonging to a stream that must
// already have a registered [Schema].
type Record struct {
	Stream        string         `json:"stream"`
	Record        map[string]any `json:"record"`
	Version       *int64         `json:"version,omitempty"`
	TimeExtracted *time.Time     `json:"time_extracted,omitempty"`
}

// State carries an opaque checkpoint value the engine round-trips back
// to the upstream once every record preceding it has been durably
// accepted. Value is never interpreted beyond the currently_syncing /
// bookmarks inspection described in [State.SyncingStream] and
// [State.HasReplicationKeyValue].
type State struct {
	Value map[string]any `json:"value"`
}

// ActivateVersion is accepted but ignored; it is experimental in the
// upstream protocol and carries no obligation here.
type ActivateVersion struct {
	Stream  string `json:"stream"`
	Version int64  `json:"version"`
}
