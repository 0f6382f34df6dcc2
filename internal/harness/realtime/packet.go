package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EngineType is the Engine.IO (v4) packet type carried in the first byte of a frame.
type EngineType byte

// Engine.IO packet types.
const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// SocketType is the Socket.IO (v5) packet type carried inside an Engine.IO message.
type SocketType byte

// Socket.IO packet types.
const (
	SocketConnect      SocketType = '0'
	SocketDisconnect   SocketType = '1'
	SocketEvent        SocketType = '2'
	SocketAck          SocketType = '3'
	SocketConnectError SocketType = '4'
	SocketBinaryEvent  SocketType = '5'
	SocketBinaryAck    SocketType = '6'
)

var (
	errEmptyFrame        = errors.New("empty frame")
	errUnknownEngineType = errors.New("unknown engine.io packet type")
	errUnknownSocketType = errors.New("unknown socket.io packet type")
	errEventNotArray     = errors.New("event payload is not a non-empty array")
	errEventNameNotText  = errors.New("event name is not a string")
)

// EnginePacket is one decoded Engine.IO frame.
type EnginePacket struct {
	Type EngineType
	Data string
}

// Handshake is the payload of the Engine.IO open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Liveness is how long the client waits for any frame before treating the
// connection as dead.
func (h Handshake) Liveness() time.Duration {
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

// SocketPacket is one decoded Socket.IO packet.
type SocketPacket struct {
	Type      SocketType
	Namespace string
	AckID     *int
	Payload   json.RawMessage
}

// DecodeEngine splits a WebSocket text frame into its Engine.IO packet.
func DecodeEngine(frame string) (EnginePacket, error) {
	if frame == "" {
		return EnginePacket{}, errEmptyFrame
	}

	t := EngineType(frame[0])
	if t < EngineOpen || t > EngineNoop {
		return EnginePacket{}, fmt.Errorf("%w: %q", errUnknownEngineType, frame[0])
	}

	return EnginePacket{Type: t, Data: frame[1:]}, nil
}

// DecodeHandshake parses the open packet payload.
func DecodeHandshake(data string) (Handshake, error) {
	var h Handshake
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return Handshake{}, fmt.Errorf("decoding handshake: %w", err)
	}

	return h, nil
}

// DecodeSocket parses the Socket.IO packet carried by an Engine.IO message.
func DecodeSocket(data string) (SocketPacket, error) {
	if data == "" {
		return SocketPacket{}, errEmptyFrame
	}

	p := SocketPacket{Type: SocketType(data[0]), Namespace: "/"}
	if p.Type < SocketConnect || p.Type > SocketBinaryAck {
		return SocketPacket{}, fmt.Errorf("%w: %q", errUnknownSocketType, data[0])
	}

	rest := data[1:]

	// Binary packets carry an attachment count terminated by '-'.
	if p.Type == SocketBinaryEvent || p.Type == SocketBinaryAck {
		if idx := strings.IndexByte(rest, '-'); idx >= 0 {
			rest = rest[idx+1:]
		}
	}

	if strings.HasPrefix(rest, "/") {
		idx := strings.IndexByte(rest, ',')
		if idx < 0 {
			p.Namespace = rest
			return p, nil
		}

		p.Namespace = rest[:idx]
		rest = rest[idx+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}

	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return SocketPacket{}, fmt.Errorf("decoding ack id: %w", err)
		}

		p.AckID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		p.Payload = json.RawMessage(rest)
	}

	return p, nil
}

// EventArgs splits an EVENT payload into the event name and its arguments.
func (p SocketPacket) EventArgs() (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(p.Payload, &parts); err != nil || len(parts) == 0 {
		return "", nil, errEventNotArray
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, errEventNameNotText
	}

	return name, parts[1:], nil
}

// EncodeConnect builds the Socket.IO CONNECT frame for the default namespace.
// auth is sent as the handshake payload when non-nil.
func EncodeConnect(auth map[string]any) (string, error) {
	frame := string(EngineMessage) + string(SocketConnect)
	if auth == nil {
		return frame, nil
	}

	payload, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("encoding auth payload: %w", err)
	}

	return frame + string(payload), nil
}

// EncodeDisconnect builds the Socket.IO DISCONNECT frame.
func EncodeDisconnect() string {
	return string(EngineMessage) + string(SocketDisconnect)
}

// EncodeEvent builds a Socket.IO EVENT frame: 42["name",arg...].
func EncodeEvent(name string, args ...any) (string, error) {
	parts := make([]any, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)

	payload, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("encoding event %s: %w", name, err)
	}

	return string(EngineMessage) + string(SocketEvent) + string(payload), nil
}

// EncodePong answers an Engine.IO ping, echoing its probe data.
func EncodePong(data string) string {
	return string(EnginePong) + data
}
