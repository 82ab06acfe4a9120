// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ec

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
)

const (
	// maxPayload rejects frames larger than any sane queue dump.
	maxPayload = 16 << 20

	// compressThreshold: payloads this size and up are deflated.
	compressThreshold = 1024
)

// WritePacket frames and writes one packet. Payloads at or above the
// compression threshold are zlib-deflated. The accepts field always
// advertises zlib so the daemon may compress large queue responses.
func WritePacket(w io.Writer, p *Packet) error {
	payload := p.encodePayload()

	flags := flagBase | flagAccepts
	if len(payload) >= compressThreshold {
		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		if _, err := zw.Write(payload); err != nil {
			zw.Close()
			return errors.Wrap(err, "compress payload")
		}
		if err := zw.Close(); err != nil {
			return errors.Wrap(err, "compress payload")
		}
		if compressed.Len() < len(payload) {
			payload = compressed.Bytes()
			flags |= flagZlib
		}
	}

	header := make([]byte, 12, 12+len(payload))
	binary.BigEndian.PutUint32(header[0:], flags)
	binary.BigEndian.PutUint32(header[4:], flagZlib) // accepted flags
	binary.BigEndian.PutUint32(header[8:], uint32(len(payload)))

	if _, err := w.Write(append(header, payload...)); err != nil {
		return wrapIOErr(err, "write frame")
	}
	return nil
}

// ReadPacket reads and decodes one frame.
func ReadPacket(r io.Reader) (*Packet, error) {
	var word [4]byte
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, wrapIOErr(err, "read frame flags")
	}
	flags := binary.BigEndian.Uint32(word[:])

	if flags&^knownFlags != 0 {
		return nil, errors.Wrapf(domain.ErrProtocol, "unknown frame flags 0x%08x", flags)
	}
	if flags&flagUTF8Numbers != 0 {
		// never advertised in our accepts field
		return nil, errors.Wrap(domain.ErrProtocol, "peer sent utf-8 coded numbers")
	}

	if flags&flagAccepts != 0 {
		if _, err := io.ReadFull(r, word[:]); err != nil {
			return nil, wrapIOErr(err, "read accepts field")
		}
	}

	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, wrapIOErr(err, "read frame length")
	}
	length := binary.BigEndian.Uint32(word[:])
	if length > maxPayload {
		return nil, errors.Wrapf(domain.ErrProtocol, "frame length %d exceeds limit", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, wrapIOErr(err, "read frame payload")
	}

	if flags&flagZlib != 0 {
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrapf(domain.ErrProtocol, "inflate payload: %v", err)
		}
		inflated, err := io.ReadAll(io.LimitReader(zr, maxPayload+1))
		zr.Close()
		if err != nil {
			return nil, errors.Wrapf(domain.ErrProtocol, "inflate payload: %v", err)
		}
		if len(inflated) > maxPayload {
			return nil, errors.Wrap(domain.ErrProtocol, "inflated payload exceeds limit")
		}
		payload = inflated
	}

	return decodePayload(payload)
}

func wrapIOErr(err error, msg string) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrapf(domain.ErrTimeout, "%s: %v", msg, err)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(domain.ErrTransport, "%s: connection closed", msg)
	}
	return errors.Wrapf(domain.ErrTransport, "%s: %v", msg, err)
}
