package connection

import (
	"fmt"

	errs "github.com/alexjbarnes/chat-sync/internal/errors"
)

// SourceKind says who ended a connection.
type SourceKind int

const (
	UserInitiated SourceKind = iota
	SystemInitiated
	NoPongReceived
	ServerInitiated
)

func (k SourceKind) String() string {
	switch k {
	case UserInitiated:
		return "user_initiated"
	case SystemInitiated:
		return "system_initiated"
	case NoPongReceived:
		return "no_pong_received"
	case ServerInitiated:
		return "server_initiated"
	}

	return "unknown"
}

// Source is the cause of a disconnection. Err is set for server
// initiated disconnections that carried an error.
type Source struct {
	Kind SourceKind
	Err  error
}

// ServerError returns the error sent by the server, if any.
func (s Source) ServerError() error {
	if s.Kind != ServerInitiated {
		return nil
	}

	return s.Err
}

// StateKind enumerates the transport lifecycle.
type StateKind int

const (
	Initialized StateKind = iota
	Connecting
	WaitingForConnectionID
	Connected
	Disconnecting
	Disconnected
)

func (k StateKind) String() string {
	switch k {
	case Initialized:
		return "initialized"
	case Connecting:
		return "connecting"
	case WaitingForConnectionID:
		return "waiting_for_connection_id"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Disconnected:
		return "disconnected"
	}

	return "unknown"
}

// State is the transport's connection state. ConnectionID is only set
// when Kind is Connected; Source only for Disconnecting and Disconnected.
type State struct {
	Kind         StateKind
	ConnectionID string
	Source       Source
}

func (s State) String() string {
	switch s.Kind {
	case Connected:
		return fmt.Sprintf("connected(%s)", s.ConnectionID)
	case Disconnecting, Disconnected:
		if err := s.Source.ServerError(); err != nil {
			return fmt.Sprintf("%s(%s: %v)", s.Kind, s.Source.Kind, err)
		}

		return fmt.Sprintf("%s(%s)", s.Kind, s.Source.Kind)
	}

	return s.Kind.String()
}

// Constructors for the common states.
func InitializedState() State             { return State{Kind: Initialized} }
func ConnectingState() State              { return State{Kind: Connecting} }
func WaitingForConnectionIDState() State  { return State{Kind: WaitingForConnectionID} }
func ConnectedState(id string) State      { return State{Kind: Connected, ConnectionID: id} }
func DisconnectingState(src Source) State { return State{Kind: Disconnecting, Source: src} }
func DisconnectedState(src Source) State  { return State{Kind: Disconnected, Source: src} }

// StatusKind is the consumer-facing connection status.
type StatusKind int

const (
	StatusInitialized StatusKind = iota
	StatusConnecting
	StatusConnected
	StatusDisconnecting
	StatusDisconnected
)

func (k StatusKind) String() string {
	switch k {
	case StatusInitialized:
		return "initialized"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusDisconnected:
		return "disconnected"
	}

	return "unknown"
}

// Status is derived from State. Err is only set for StatusDisconnected.
type Status struct {
	Kind StatusKind
	Err  error
}

func (s Status) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s(%v)", s.Kind, s.Err)
	}

	return s.Kind.String()
}

// StatusFor maps a transport state to the status consumers see. Any
// disconnection the user did not ask for reports connecting, because
// the transport will try again.
func StatusFor(s State) Status {
	switch s.Kind {
	case Initialized:
		return Status{Kind: StatusInitialized}
	case Connecting, WaitingForConnectionID:
		return Status{Kind: StatusConnecting}
	case Connected:
		return Status{Kind: StatusConnected}
	case Disconnecting:
		return Status{Kind: StatusDisconnecting}
	case Disconnected:
		if s.Source.Kind == UserInitiated {
			return Status{Kind: StatusDisconnected, Err: s.Source.Err}
		}

		return Status{Kind: StatusConnecting}
	}

	return Status{Kind: StatusInitialized}
}

// notifiesWaiters reports whether reaching s resolves connection-id
// waiters. A disconnection caused by a rejected token does not: a token
// refresh is expected to reconnect and produce an id.
func notifiesWaiters(s State) bool {
	switch s.Kind {
	case Connected:
		return true
	case Disconnected:
		return !errs.IsInvalidToken(s.Source.ServerError())
	}

	return false
}
