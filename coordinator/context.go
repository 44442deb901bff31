package coordinator

// RequestContext carries what the broker knows about the client that sent a
// request.
type RequestContext struct {
	ClientID   string
	ClientHost string
	APIVersion int16
}
