package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Event names exchanged with the matchmaking server.
const (
	EventJoin          = "join"
	EventLeaveRoom     = "leaveRoom"
	EventMessage       = "message"
	EventOffer         = "offer"
	EventAnswer        = "answer"
	EventICECandidates = "ice-candidates"

	EventJoined    = "joined"
	EventSendOffer = "send-offer"
	EventUserCount = "user-count"

	// Synthesized locally from transport lifecycle.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Event is one inbound event with its raw JSON arguments.
type Event struct {
	Name string
	Args []json.RawMessage
}

// Decode unmarshals argument i into v.
func (e Event) Decode(i int, v any) error {
	if i >= len(e.Args) {
		return fmt.Errorf("%s: missing argument %d", e.Name, i)
	}
	if err := json.Unmarshal(e.Args[i], v); err != nil {
		return fmt.Errorf("%s: argument %d: %w", e.Name, i, err)
	}
	return nil
}

// Joined is the payload of the joined event.
type Joined struct {
	Room string `json:"room"`
}

// SessionDescription is the {type, sdp} object carried by offer and answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func FromWebRTC(d webrtc.SessionDescription) SessionDescription {
	return SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func (d SessionDescription) WebRTC() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

// Candidate uses pion's init struct; its JSON tags already match the browser
// RTCIceCandidateInit shape.
type Candidate = webrtc.ICECandidateInit

// DisconnectReason is the single argument of a synthesized disconnect event.
type DisconnectReason struct {
	Reason string `json:"reason"`
}
