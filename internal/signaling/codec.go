package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Engine.IO v4 packet types, the first byte of every websocket frame.
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// Socket.IO v5 packet types, the second byte of an Engine.IO message.
const (
	SocketConnect      byte = '0'
	SocketDisconnect   byte = '1'
	SocketEvent        byte = '2'
	SocketAck          byte = '3'
	SocketConnectError byte = '4'
)

var errMalformed = errors.New("malformed packet")

// Handshake is the payload of the Engine.IO open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

// Packet is a decoded frame. Socket is zero unless Engine is EngineMessage.
// Data has the namespace prefix removed.
type Packet struct {
	Engine byte
	Socket byte
	Data   []byte
}

// ParsePacket splits a websocket text frame into its Engine.IO and
// Socket.IO layers. Only the default namespace is supported.
func ParsePacket(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, errMalformed
	}
	p := Packet{Engine: frame[0], Data: frame[1:]}
	if p.Engine < EngineOpen || p.Engine > EngineNoop {
		return Packet{}, fmt.Errorf("%w: engine type %q", errMalformed, p.Engine)
	}
	if p.Engine != EngineMessage {
		return p, nil
	}
	if len(p.Data) == 0 {
		return Packet{}, fmt.Errorf("%w: empty message", errMalformed)
	}
	p.Socket, p.Data = p.Data[0], p.Data[1:]
	if p.Socket < SocketConnect || p.Socket > SocketConnectError {
		return Packet{}, fmt.Errorf("%w: socket type %q", errMalformed, p.Socket)
	}
	if len(p.Data) > 0 && p.Data[0] == '/' {
		if i := bytes.IndexByte(p.Data, ','); i >= 0 {
			p.Data = p.Data[i+1:]
		} else {
			p.Data = nil
		}
	}
	return p, nil
}

// EncodeEvent renders 42["name",args...].
func EncodeEvent(name string, args ...any) ([]byte, error) {
	body, err := json.Marshal(append([]any{name}, args...))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return append([]byte{EngineMessage, SocketEvent}, body...), nil
}

// ParseEvent decodes the data of a Socket.IO event packet. A leading ack id
// is skipped.
func ParseEvent(data []byte) (Event, error) {
	i := 0
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data[i:], &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(raw) == 0 {
		return Event{}, fmt.Errorf("%w: event without name", errMalformed)
	}
	var name string
	if err := json.Unmarshal(raw[0], &name); err != nil {
		return Event{}, fmt.Errorf("%w: event name: %v", errMalformed, err)
	}
	return Event{Name: name, Args: raw[1:]}, nil
}

// EncodeOpen renders the server's open packet.
func EncodeOpen(h Handshake) ([]byte, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return append([]byte{EngineOpen}, body...), nil
}
