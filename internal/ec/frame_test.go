// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ec

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/mulearr/internal/domain"
)

func TestFrameRoundTripSmall(t *testing.T) {
	t.Parallel()

	p := NewPacket(OpAuthReq,
		StringTag(TagClientName, "mulearr"),
		StringTag(TagClientVersion, "1.0.0"),
		U16Tag(TagProtocolVersion, ProtocolVersion),
	)

	var wire bytes.Buffer
	require.NoError(t, WritePacket(&wire, p))

	// small payloads stay uncompressed
	flags := binary.BigEndian.Uint32(wire.Bytes()[:4])
	assert.Zero(t, flags&flagZlib)
	assert.NotZero(t, flags&flagBase)
	assert.NotZero(t, flags&flagAccepts)

	got, err := ReadPacket(&wire)
	require.NoError(t, err)
	assert.Equal(t, p.Op, got.Op)
	assert.Equal(t, "mulearr", got.TagString(TagClientName))

	version, ok := got.TagUInt(TagProtocolVersion)
	require.True(t, ok)
	assert.Equal(t, uint64(ProtocolVersion), version)
}

func TestFrameRoundTripCompressed(t *testing.T) {
	t.Parallel()

	p := NewPacket(OpDownloadQueue)
	for i := 0; i < 100; i++ {
		p.AddTag(CustomTag(TagPartfile, nil).WithChildren(
			StringTag(TagPartfileName, strings.Repeat("a", 100)),
			U64Tag(TagPartfileSizeFull, uint64(i)),
		))
	}

	var wire bytes.Buffer
	require.NoError(t, WritePacket(&wire, p))

	flags := binary.BigEndian.Uint32(wire.Bytes()[:4])
	assert.NotZero(t, flags&flagZlib, "large payload should be compressed")

	got, err := ReadPacket(&wire)
	require.NoError(t, err)
	assert.Equal(t, p.Op, got.Op)
	assert.Len(t, got.Tags, 100)
	assert.Equal(t, strings.Repeat("a", 100), got.Tags[42].ChildString(TagPartfileName))
}

func TestReadPacketRejectsUnknownFlags(t *testing.T) {
	t.Parallel()

	var wire bytes.Buffer
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr[0:], flagBase|0x8000)
	binary.BigEndian.PutUint32(hdr[4:], 0)
	wire.Write(hdr)

	_, err := ReadPacket(&wire)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestReadPacketRejectsUTF8Numbers(t *testing.T) {
	t.Parallel()

	var wire bytes.Buffer
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr[0:], flagBase|flagUTF8Numbers)
	binary.BigEndian.PutUint32(hdr[4:], 0)
	wire.Write(hdr)

	_, err := ReadPacket(&wire)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestReadPacketRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	var wire bytes.Buffer
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr[0:], flagBase)
	binary.BigEndian.PutUint32(hdr[4:], maxPayload+1)
	wire.Write(hdr)

	_, err := ReadPacket(&wire)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestReadPacketTruncatedStream(t *testing.T) {
	t.Parallel()

	p := NewPacket(OpNoop)
	var wire bytes.Buffer
	require.NoError(t, WritePacket(&wire, p))

	// cut the frame short
	short := bytes.NewReader(wire.Bytes()[:wire.Len()-2])
	_, err := ReadPacket(short)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestReadPacketWithoutAcceptsField(t *testing.T) {
	t.Parallel()

	// the daemon may omit the accepts field
	p := NewPacket(OpAuthOK)
	payload := p.encodePayload()

	var wire bytes.Buffer
	hdr := make([]byte, 8)
	binary.BigEndian.PutUint32(hdr[0:], flagBase)
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(payload)))
	wire.Write(hdr)
	wire.Write(payload)

	got, err := ReadPacket(&wire)
	require.NoError(t, err)
	assert.Equal(t, OpAuthOK, got.Op)
}
