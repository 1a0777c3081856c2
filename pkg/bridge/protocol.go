// Package bridge implements the line protocol used to reach a flash chip
// through a microcontroller UART.
//
// Every request and every response is one ASCII line terminated by '\n':
//
//	S                  -> Z <size>
//	R <addr> <n>       -> D <hex bytes>
//	W <addr> <hex>     -> K
//	E                  -> K
//	(any failure)      -> X <message>
//
// Addresses, lengths and sizes are decimal. A single read or write moves at
// most MaxChunk bytes; clients split larger transfers.
package bridge

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// MaxChunk is the largest payload carried by one request or response.
const MaxChunk = 256

// Op identifies a request.
type Op byte

const (
	OpSize  Op = 'S'
	OpRead  Op = 'R'
	OpWrite Op = 'W'
	OpErase Op = 'E'
)

// Kind identifies a response.
type Kind byte

const (
	KindSize  Kind = 'Z'
	KindData  Kind = 'D'
	KindOK    Kind = 'K'
	KindError Kind = 'X'
)

// Request is one host-to-device command.
type Request struct {
	Op   Op
	Addr uint32
	N    int    // bytes to read (OpRead)
	Data []byte // bytes to program (OpWrite)
}

// Response is one device-to-host reply.
type Response struct {
	Kind Kind
	Size uint32 // KindSize
	Data []byte // KindData
	Msg  string // KindError
}

// Err returns the device-side error carried by r, if any.
func (r Response) Err() error {
	if r.Kind == KindError {
		return fmt.Errorf("device error: %s", r.Msg)
	}
	return nil
}

// Format renders r as a protocol line including the trailing newline.
func (r Request) Format() string {
	switch r.Op {
	case OpRead:
		return fmt.Sprintf("R %d %d\n", r.Addr, r.N)
	case OpWrite:
		return fmt.Sprintf("W %d %s\n", r.Addr, hex.EncodeToString(r.Data))
	default:
		return string(r.Op) + "\n"
	}
}

// Format renders r as a protocol line including the trailing newline.
func (r Response) Format() string {
	switch r.Kind {
	case KindSize:
		return fmt.Sprintf("Z %d\n", r.Size)
	case KindData:
		return "D " + hex.EncodeToString(r.Data) + "\n"
	case KindError:
		// messages must stay on one line
		return "X " + strings.ReplaceAll(r.Msg, "\n", " ") + "\n"
	default:
		return "K\n"
	}
}

// ParseRequest parses one request line. Surrounding whitespace is ignored.
func ParseRequest(line string) (Request, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Request{}, fmt.Errorf("empty request")
	}
	if len(parts[0]) != 1 {
		return Request{}, fmt.Errorf("invalid op %q", parts[0])
	}

	req := Request{Op: Op(parts[0][0])}
	switch req.Op {
	case OpSize, OpErase:
		if len(parts) != 1 {
			return Request{}, fmt.Errorf("op %c takes no arguments", req.Op)
		}

	case OpRead:
		if len(parts) != 3 {
			return Request{}, fmt.Errorf("invalid read: expected 2 arguments, got %d", len(parts)-1)
		}
		addr, err := parseAddr(parts[1])
		if err != nil {
			return Request{}, err
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return Request{}, fmt.Errorf("invalid length: %w", err)
		}
		if n <= 0 || n > MaxChunk {
			return Request{}, fmt.Errorf("length out of range: %d (max %d)", n, MaxChunk)
		}
		req.Addr = addr
		req.N = n

	case OpWrite:
		if len(parts) != 3 {
			return Request{}, fmt.Errorf("invalid write: expected 2 arguments, got %d", len(parts)-1)
		}
		addr, err := parseAddr(parts[1])
		if err != nil {
			return Request{}, err
		}
		data, err := hex.DecodeString(parts[2])
		if err != nil {
			return Request{}, fmt.Errorf("invalid payload: %w", err)
		}
		if len(data) == 0 || len(data) > MaxChunk {
			return Request{}, fmt.Errorf("payload out of range: %d bytes (max %d)", len(data), MaxChunk)
		}
		req.Addr = addr
		req.Data = data

	default:
		return Request{}, fmt.Errorf("unknown op %q", parts[0])
	}

	return req, nil
}

// ParseResponse parses one response line.
func ParseResponse(line string) (Response, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Response{}, fmt.Errorf("empty response")
	}

	resp := Response{Kind: Kind(line[0])}
	rest := strings.TrimSpace(line[1:])

	switch resp.Kind {
	case KindOK:
		if rest != "" {
			return Response{}, fmt.Errorf("unexpected payload after K: %q", rest)
		}
	case KindSize:
		size, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return Response{}, fmt.Errorf("invalid size: %w", err)
		}
		resp.Size = uint32(size)
	case KindData:
		data, err := hex.DecodeString(rest)
		if err != nil {
			return Response{}, fmt.Errorf("invalid data: %w", err)
		}
		resp.Data = data
	case KindError:
		resp.Msg = rest
	default:
		return Response{}, fmt.Errorf("unknown response %q", line)
	}

	return resp, nil
}

func parseAddr(s string) (uint32, error) {
	addr, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address: %w", err)
	}
	return uint32(addr), nil
}
