package framing

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Status classifies the result of an Extract call.
type Status int

const (
	// StatusPartial means the buffer holds the prefix of a JSON value
	// but not all of it yet; the caller should read more bytes and try
	// again.
	StatusPartial Status = iota
	// StatusOK means a complete JSON value was extracted and drained
	// from the buffer.
	StatusOK
	// StatusInvalid means the buffer's leading bytes are not a valid
	// JSON value and more data will not fix that; the connection should
	// receive a parse-error reply and be closed.
	StatusInvalid
)

// Extract pulls the next complete top-level JSON value out of b, if
// one is present. On StatusOK, the returned bytes are the exact value
// and the consumed prefix (plus any leading whitespace) has already
// been drained from b. On StatusPartial, b is left untouched. On
// StatusInvalid, b is left untouched so the caller can log its
// contents before closing the connection.
//
// The JSON parsing itself is delegated to encoding/json.Decoder; this
// function's job is purely the partial/invalid classification that
// lets a framing layer sit in front of a decoder built for whole
// documents, not a stream of them.
func Extract(b *Buffer) (json.RawMessage, Status) {
	data := b.AsSlice()
	if len(data) == 0 {
		return nil, StatusPartial
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var raw json.RawMessage
	err := dec.Decode(&raw)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, StatusPartial
		}
		if isUnexpectedEnd(err) {
			return nil, StatusPartial
		}
		return nil, StatusInvalid
	}

	offset := int(dec.InputOffset())
	frame := make(json.RawMessage, len(raw))
	copy(frame, raw)
	b.DrainPrefix(offset)
	return frame, StatusOK
}

// isUnexpectedEnd covers the json package's "unexpected end of JSON
// input" SyntaxError, which it returns instead of io.ErrUnexpectedEOF
// when a value is truncated mid-token (e.g. a partial string or
// number) rather than mid-whitespace.
func isUnexpectedEnd(err error) bool {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return se.Error() == "unexpected end of JSON input"
	}
	return false
}
