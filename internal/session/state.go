// SPDX-License-Identifier: MIT
/*
Package session implements the coordinators on both sides of the transport
boundary.

The capture coordinator owns the sample source handle, runs the frame ticker,
and answers control commands. The render bridge announces its presence,
tracks the peer's authoritative capture status, and exposes the latest frame
and features to renderers.

Both sides share one lifecycle:

	Disconnected -> AwaitingPeer -> Connected -> Capturing

with Capturing falling back to Connected on stop or capture error, and any
state falling back to Disconnected when the peer goes away. Neither side
assumes anything about peer startup order: the handshake is a periodic
re-announce that tolerates the peer appearing at an arbitrary later time.
*/
package session

// State is the session lifecycle position.
type State int

const (
	Disconnected State = iota
	AwaitingPeer
	Connected
	Capturing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AwaitingPeer:
		return "awaiting-peer"
	case Connected:
		return "connected"
	case Capturing:
		return "capturing"
	default:
		return "unknown"
	}
}
