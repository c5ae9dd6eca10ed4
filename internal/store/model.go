package store

// Source marks where a locally stored record originated: written by this
// device, or mirrored from the server. The local engine scopes every query by
// (uid, source) so the two populations never collide, even on equal UUIDs.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Mode selects which backend serves a tenant.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// DefaultCategoryID is the canonical id of the default category every tenant
// owns exactly once. It is a fixed well-known value, not a minted UUID.
const DefaultCategoryID = "00000000000000000000000000000001"

// DefaultCategoryName is the display name the default category is created with.
const DefaultCategoryName = "Default"

// Category is a tenant-scoped document grouping.
// Timestamps here and below are unix milliseconds.
type Category struct {
	UID       int64  `json:"uid" db:"user_id"`
	ID        string `json:"id" db:"category_id"`
	Name      string `json:"name" db:"name"`
	CreatedAt int64  `json:"createdAt" db:"created_at"`
	UpdatedAt int64  `json:"updatedAt" db:"updated_at"`
	Source    Source `json:"source,omitempty" db:"source"`
	Version   int64  `json:"version" db:"version"`
}

// CategoryWithCount is a Category plus its document count.
type CategoryWithCount struct {
	Category
	DocumentCount int64 `json:"documentCount" db:"document_count"`
}

// CategoryOptions carries optional fields for CreateCategory. A non-empty ID
// pins the category's UUID (used by the synchronizer and batch imports);
// Version is applied only by backends that accept externally minted versions.
type CategoryOptions struct {
	ID        string `json:"id,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
	Version   int64  `json:"version,omitempty"`
}

// DocumentMeta is a document's metadata; content lives in a separate row
// keyed by the same (uid, id). CharCount is nil until first computed.
type DocumentMeta struct {
	UID        int64  `json:"uid" db:"user_id"`
	ID         string `json:"id" db:"document_id"`
	Name       string `json:"name" db:"name"`
	CategoryID string `json:"categoryId" db:"category_id"`
	CreatedAt  int64  `json:"createdAt" db:"created_at"`
	UpdatedAt  int64  `json:"updatedAt" db:"updated_at"`
	CharCount  *int64 `json:"charCount,omitempty" db:"char_count"`
	Source     Source `json:"source,omitempty" db:"source"`
	Version    int64  `json:"version" db:"version"`
}

// NewDocument is the input to CreateDocument. ID, timestamps and Version are
// optional the same way CategoryOptions fields are.
type NewDocument struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	CategoryID string `json:"categoryId,omitempty"`
	CreatedAt  int64  `json:"createdAt,omitempty"`
	UpdatedAt  int64  `json:"updatedAt,omitempty"`
	Version    int64  `json:"version,omitempty"`
}

// DocumentUpdate lists the mutable metadata fields; nil means "leave as is".
type DocumentUpdate struct {
	Name       *string `json:"name,omitempty"`
	CategoryID *string `json:"categoryId,omitempty"`
	CharCount  *int64  `json:"charCount,omitempty"`
	UpdatedAt  *int64  `json:"updatedAt,omitempty"`
}

// DocumentPage is one window of a newest-first document listing.
type DocumentPage struct {
	Documents []DocumentMeta `json:"documents"`
	Total     int64          `json:"total"`
	HasMore   bool           `json:"hasMore"`
}

// SearchQuery asks for documents whose normalized text contains every token.
type SearchQuery struct {
	Tokens     []string `json:"tokens"`
	CategoryID string   `json:"categoryId,omitempty"`
	Offset     int      `json:"offset"`
	Limit      int      `json:"limit"`
}
