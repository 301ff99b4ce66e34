package chunk

import "fmt"

// SourceKind identifies the kind of entity holding a reference to a chunk.
type SourceKind string

const (
	// SourceCommit is a committed snapshot referencing the chunk.
	SourceCommit SourceKind = "commit"

	// SourceStaging is a staged-but-uncommitted change.
	SourceStaging SourceKind = "staging"

	// SourceStash is a stashed working set.
	SourceStash SourceKind = "stash"

	// SourceTag is a named tag pinning the chunk.
	SourceTag SourceKind = "tag"

	// SourceUpload is an in-flight upload that has reserved the chunk
	// before its owning entity exists.
	SourceUpload SourceKind = "upload"

	// SourceCache is a cache tier holding a pinned entry.
	SourceCache SourceKind = "cache"
)

// IsValid reports whether k is a known source kind.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceCommit, SourceStaging, SourceStash, SourceTag, SourceUpload, SourceCache:
		return true
	}
	return false
}

// Source names one live entity referencing a chunk. The (Kind, ID) pair is
// unique per chunk: re-adding the same source is a no-op, so one source
// contributes at most one unit of reference count.
type Source struct {
	// Kind is the entity kind (commit, staging, stash, tag, upload, cache).
	Kind SourceKind

	// ID is the entity identifier within its kind (commit hash, tag name, ...).
	ID string

	// RepositoryID is the owning repository.
	RepositoryID string
}

// Validate checks the source is well formed.
func (s Source) Validate() error {
	if !s.Kind.IsValid() {
		return fmt.Errorf("invalid source kind %q", s.Kind)
	}
	if s.ID == "" {
		return fmt.Errorf("source id is required")
	}
	return nil
}

// String renders the source as kind:id for audit records and logs.
func (s Source) String() string {
	return string(s.Kind) + ":" + s.ID
}
