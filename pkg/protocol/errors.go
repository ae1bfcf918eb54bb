package protocol

// Error codes carried in failed tool results.
const (
	ErrInvalidRequest     = "INVALID_REQUEST"     // caller input outside the contract
	ErrUnavailable        = "UNAVAILABLE"         // embedding provider or store unreachable; caller may retry
	ErrNotFound           = "NOT_FOUND"           // memory absent or owned by another project
	ErrResourceExhausted  = "RESOURCE_EXHAUSTED"  // rate limited
	ErrFailedPrecondition = "FAILED_PRECONDITION" // schema/dimension problem; retrying will not help
	ErrInternal           = "INTERNAL"
)
