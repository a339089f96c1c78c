package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// DefaultMaxFrameBytes bounds the amount of unparsed input kept while waiting
// for the end of a frame.
const DefaultMaxFrameBytes = 10 * 1024 * 1024

// Framer turns an arbitrary chunked byte stream into complete frames and
// serializes outbound frames as newline-delimited JSON. A Framer is owned by
// a single reader and is not safe for concurrent Feed calls.
type Framer struct {
	buf        []byte
	discarding bool
	maxBytes   int
	logger     *zap.Logger
	session    ISession
	onError    func(*ProtocolError)
}

// NewFramer creates a Framer. maxBytes <= 0 selects DefaultMaxFrameBytes.
func NewFramer(logger *zap.Logger, maxBytes int) *Framer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &Framer{logger: logger, maxBytes: maxBytes}
}

// Buffered reports how many bytes are waiting for the rest of a line.
func (f *Framer) Buffered() int { return len(f.buf) }

// Feed appends chunk to the buffer and returns every frame completed by it.
// Input is split into newline-terminated lines; an unterminated tail stays
// buffered. A line that does not parse is logged as a ProtocolError and only
// that line is dropped.
func (f *Framer) Feed(chunk []byte) []*Message {
	var out []*Message
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			f.hold(chunk)
			break
		}
		line := chunk[:i]
		chunk = chunk[i+1:]
		if f.discarding {
			// rest of an oversized line
			f.discarding = false
			continue
		}
		if len(f.buf) > 0 {
			f.buf = append(f.buf, line...)
			line = f.buf
		}
		out = f.decodeLine(line, out)
		f.buf = f.buf[:0]
	}
	return out
}

func (f *Framer) hold(partial []byte) {
	if f.discarding {
		return
	}
	f.buf = append(f.buf, partial...)
	if len(f.buf) > f.maxBytes {
		f.report(&ProtocolError{
			Kind: ProtocolFrameTooLarge,
			Err:  fmt.Errorf("%d bytes buffered without a complete frame (limit %d)", len(f.buf), f.maxBytes),
		})
		f.buf = f.buf[:0]
		f.discarding = true
	}
}

// decodeLine parses every JSON value on one line. Values before a syntax
// error are kept.
func (f *Framer) decodeLine(line []byte, out []*Message) []*Message {
	dec := json.NewDecoder(bytes.NewReader(line))
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			f.report(&ProtocolError{Kind: ProtocolMalformedFrame, Err: err})
			return out
		}
		msgs, perr := ParseMessages(f.session, raw)
		if perr != nil {
			f.report(&ProtocolError{Kind: ProtocolInvalidMessage, Err: perr})
			continue
		}
		out = append(out, msgs...)
	}
}

// Serialize encodes msg as one newline-terminated JSON document.
func (f *Framer) Serialize(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return append(data, '\n'), nil
}

func (f *Framer) report(perr *ProtocolError) {
	f.logger.Warn("Discarding inbound data", zap.String("kind", string(perr.Kind)), zap.Error(perr))
	if f.onError != nil {
		f.onError(perr)
	}
}
