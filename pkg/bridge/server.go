package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
)

// Target is the flash device exposed by the bridge.
type Target interface {
	Size() uint32
	ReadRange(ctx context.Context, addr uint32, n int) ([]byte, error)
	WriteSequential(ctx context.Context, addr uint32, data []byte) error
	EraseAll(ctx context.Context) error
}

// Handle executes one request line against dev and returns the response line.
func Handle(ctx context.Context, line string, dev Target) string {
	req, err := ParseRequest(line)
	if err != nil {
		return Response{Kind: KindError, Msg: err.Error()}.Format()
	}
	return Execute(ctx, req, dev).Format()
}

// Execute runs req against dev.
func Execute(ctx context.Context, req Request, dev Target) Response {
	switch req.Op {
	case OpSize:
		return Response{Kind: KindSize, Size: dev.Size()}

	case OpRead:
		data, err := dev.ReadRange(ctx, req.Addr, req.N)
		if err != nil {
			return Response{Kind: KindError, Msg: err.Error()}
		}
		return Response{Kind: KindData, Data: data}

	case OpWrite:
		if err := dev.WriteSequential(ctx, req.Addr, req.Data); err != nil {
			return Response{Kind: KindError, Msg: err.Error()}
		}
		return Response{Kind: KindOK}

	case OpErase:
		if err := dev.EraseAll(ctx); err != nil {
			return Response{Kind: KindError, Msg: err.Error()}
		}
		return Response{Kind: KindOK}
	}

	return Response{Kind: KindError, Msg: fmt.Sprintf("unknown op %q", req.Op)}
}

// Serve answers requests read from rw until ctx is done or rw is exhausted.
func Serve(ctx context.Context, rw io.ReadWriter, dev Target) error {
	scanner := bufio.NewScanner(rw)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read request: %w", err)
			}
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := Handle(ctx, line, dev)
		if strings.HasPrefix(resp, string(KindError)) {
			log.Printf("Bridge request '%s' failed: %s", line, strings.TrimSpace(resp[1:]))
		}
		if _, err := io.WriteString(rw, resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}
