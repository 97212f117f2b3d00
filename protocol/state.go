package protocol

import "strings"

// CurrentlySyncing returns value.currently_syncing verbatim — a string
// like "db-schema-stream" under which taps such as tap-mysql key their
// bookmarks, full key intact. Returns ok=false when currently_syncing is
// absent or not a string.
func (s *State) CurrentlySyncing() (syncing string, ok bool) {
	raw, present := s.Value["currently_syncing"]
	if !present {
		return "", false
	}

	syncing, ok = raw.(string)
	if !ok || syncing == "" {
		return "", false
	}

	return syncing, true
}

// SyncingStream extracts the stream name from value.currently_syncing:
// the substring after its last "-". Returns ok=false when
// currently_syncing is absent or not a string.
func (s *State) SyncingStream() (stream string, ok bool) {
	syncing, ok := s.CurrentlySyncing()
	if !ok {
		return "", false
	}

	if idx := strings.LastIndex(syncing, "-"); idx >= 0 {
		return syncing[idx+1:], true
	}

	return syncing, true
}

// HasReplicationKeyValue reports whether
// value.bookmarks[syncing].replication_key_value is present and
// non-nil — its presence means the stream is mid-replication-key sweep,
// which suppresses reconcile-as-update on this [State] message. syncing
// must be the full currently_syncing string (e.g. "db-schema-stream"),
// not the trimmed stream name, since that's the key taps actually write
// bookmarks under.
func (s *State) HasReplicationKeyValue(syncing string) bool {
	bookmarksRaw, ok := s.Value["bookmarks"]
	if !ok {
		return false
	}

	bookmarks, ok := bookmarksRaw.(map[string]any)
	if !ok {
		return false
	}

	entryRaw, ok := bookmarks[syncing]
	if !ok {
		return false
	}

	entry, ok := entryRaw.(map[string]any)
	if !ok {
		return false
	}

	value, present := entry["replication_key_value"]

	return present && value != nil
}
