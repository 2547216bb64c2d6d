package errs

// Error classes handled at the connection boundary. None of these are
// fatal to the process.
const (
	CodeProtocol    = 1001 // malformed frame: error frame back, connection stays open
	CodeAuth        = 1002 // invalid/expired token: close 1008
	CodeAuthTimeout = 1003 // auth window lapsed: close 1008, distinct reason
	CodePermission  = 1004 // unauthenticated message attempt: error frame, payload dropped
	CodeStore       = 1005 // persistence/history backend failure: logged only
	CodeTransport   = 1006 // socket read/write failure: connection removed
)

var (
	ErrProtocol    = NewCodeError(CodeProtocol, "malformed frame")
	ErrAuth        = NewCodeError(CodeAuth, "invalid token")
	ErrAuthTimeout = NewCodeError(CodeAuthTimeout, "authentication required")
	ErrPermission  = NewCodeError(CodePermission, "must authenticate first")
	ErrStore       = NewCodeError(CodeStore, "store unavailable")
	ErrTransport   = NewCodeError(CodeTransport, "transport failure")
)
