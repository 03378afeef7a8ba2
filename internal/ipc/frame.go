package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single message payload
const MaxFrameSize = 1 << 20

const headerSize = 4

var (
	// ErrFrameTooLarge is returned for a length prefix above MaxFrameSize
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrEmptyFrame is returned for a zero length prefix
	ErrEmptyFrame = errors.New("empty frame")
)

// ReadFrame reads one length-prefixed payload. A clean close before the
// header returns io.EOF; a close mid-frame returns io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	switch {
	case n == 0:
		return nil, &ProtocolError{Op: "read", Err: ErrEmptyFrame}
	case n > MaxFrameSize:
		return nil, &ProtocolError{Op: "read", Err: fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single write
func WriteFrame(w io.Writer, payload []byte) error {
	switch {
	case len(payload) == 0:
		return &ProtocolError{Op: "write", Err: ErrEmptyFrame}
	case len(payload) > MaxFrameSize:
		return &ProtocolError{Op: "write", Err: fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))}
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}
