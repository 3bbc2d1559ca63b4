package globals

import "time"

// JwtSecret signs and verifies access tokens. main overrides it from
// VDI_JWT_SECRET before serving.
var JwtSecret = []byte("change-me-in-production")

// JwtExpire is the lifetime of issued tokens.
var JwtExpire = 24 * time.Hour

// Context keys
type ContextKey string

const UserIDKey ContextKey = "userId"
const RequestIDKey ContextKey = "requestId"

// RequestIDHeader carries the per-request id in both directions.
const RequestIDHeader = "X-Request-ID"
