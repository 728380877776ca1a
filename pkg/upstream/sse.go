package upstream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ClientGoneError marks a relay aborted because the downstream client
// stopped reading. The upstream may still have produced (and billed)
// tokens, so the caller should settle the ledger with whatever counts it
// accumulated before the disconnect.
type ClientGoneError struct {
	Cause error
}

func (e *ClientGoneError) Error() string {
	return fmt.Sprintf("client disconnected during stream: %v", e.Cause)
}

func (e *ClientGoneError) Unwrap() error {
	return e.Cause
}

// IsClientGone reports whether err is a downstream disconnect.
func IsClientGone(err error) bool {
	var cg *ClientGoneError
	return errors.As(err, &cg)
}

// FlushWriter wraps a response writer and flushes on demand, so stream
// events reach the client as they arrive rather than when a buffer fills.
type FlushWriter struct {
	w io.Writer
	f http.Flusher
}

// NewFlushWriter wraps w, detecting http.Flusher support.
func NewFlushWriter(w io.Writer) *FlushWriter {
	fw := &FlushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.f = f
	}
	return fw
}

func (fw *FlushWriter) Write(p []byte) (int, error) {
	return fw.w.Write(p)
}

// Flush pushes buffered bytes to the client if the writer supports it.
func (fw *FlushWriter) Flush() {
	if fw.f != nil {
		fw.f.Flush()
	}
}

var dataPrefix = []byte("data:")

// RelaySSE copies a server-sent-event stream from src to dst byte for byte,
// flushing at event boundaries (blank lines) and at end of stream. Each
// "data:" payload is also handed to tap for side-parsing; tap must not
// modify the slice, which is only valid for the duration of the call.
//
// Lines are read with ReadBytes rather than a Scanner so that arbitrarily
// large events pass through and the exact bytes, including any carriage
// returns, reach the client unchanged.
func RelaySSE(dst *FlushWriter, src io.Reader, tap func(data []byte)) error {
	reader := bufio.NewReaderSize(src, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if _, werr := dst.Write(line); werr != nil {
				return &ClientGoneError{Cause: werr}
			}
			if payload, ok := ssePayload(line); ok && tap != nil {
				tap(payload)
			}
			if isBlankLine(line) {
				dst.Flush()
			}
		}
		if err == io.EOF {
			dst.Flush()
			return nil
		}
		if err != nil {
			dst.Flush()
			return fmt.Errorf("reading upstream stream: %w", err)
		}
	}
}

// ssePayload extracts the payload of a "data:" line, stripping the field
// name, one optional leading space, and the line terminator.
func ssePayload(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := line[len(dataPrefix):]
	if len(payload) > 0 && payload[0] == ' ' {
		payload = payload[1:]
	}
	payload = bytes.TrimRight(payload, "\r\n")
	return payload, true
}

func isBlankLine(line []byte) bool {
	trimmed := bytes.TrimRight(line, "\r\n")
	return len(trimmed) == 0
}
