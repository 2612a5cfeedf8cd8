package socket

// ConnectionCallbacks is implemented by the session-side collaborator
// that consumes events for one terminal handle. All methods are invoked
// from the server's connection goroutines; implementations must be safe
// to call concurrently with the owning goroutine's facade operations.
type ConnectionCallbacks interface {
	// OnReceivedInput is invoked with the payload of each text frame
	// received from the remote client.
	OnReceivedInput(input string)

	// OnConnectionOpened is invoked when a remote client connects for
	// the handle.
	OnConnectionOpened()

	// OnConnectionClosed is invoked when the remote client disconnects.
	OnConnectionClosed()
}

// NopCallbacks is a ConnectionCallbacks implementation that drops every
// event. Embed it to implement only the events of interest.
type NopCallbacks struct{}

func (NopCallbacks) OnReceivedInput(string) {}
func (NopCallbacks) OnConnectionOpened()    {}
func (NopCallbacks) OnConnectionClosed()    {}
