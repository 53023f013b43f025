package chat

// Close codes reported to the peer when a session is terminated. The
// 44xx range is application-defined; standard codes are used for
// shutdown and backpressure drops.
const (
	CloseAuthFailed  = 4401
	CloseNotMember   = 4403
	CloseIdleTimeout = 4408
	CloseSuperseded  = 4409
)

// closeReason pairs a close code with the text sent in the close frame.
type closeReason struct {
	code int
	text string
}

var (
	reasonNormal       = closeReason{code: 1000, text: ""}
	reasonGoingAway    = closeReason{code: 1001, text: "server shutting down"}
	reasonAuthFailed   = closeReason{code: CloseAuthFailed, text: "authentication failed"}
	reasonNotMember    = closeReason{code: CloseNotMember, text: "not a project member"}
	reasonIdleTimeout  = closeReason{code: CloseIdleTimeout, text: "idle timeout"}
	reasonSuperseded   = closeReason{code: CloseSuperseded, text: "superseded by a newer connection"}
	reasonSlowConsumer = closeReason{code: 1013, text: "send queue overflow"}
	reasonReadFailed   = closeReason{code: 1006, text: ""}
)
