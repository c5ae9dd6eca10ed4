package common

// Cookie names shared by the HTTP API and the network client. The access and
// refresh cookies are HttpOnly and scoped to the API prefix; the session flag
// cookie is script-readable and only signals that a session exists.
const (
	AccessCookieName      = "plainly_at"
	RefreshCookieName     = "plainly_rt"
	SessionFlagCookieName = "plainly_session"
)

// DefaultAPIPrefix is the path prefix the API is mounted under when the
// deployment does not override it.
const DefaultAPIPrefix = "/api"

// MigrationUserID is the fixed tenant assigned to legacy single-tenant rows
// that predate multi-tenancy and cannot be attributed to an owner.
const MigrationUserID int64 = 1

// LocalUserID is the anonymous tenant used in local-only mode.
const LocalUserID int64 = 0
