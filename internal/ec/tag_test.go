// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ec

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagValueAccessors(t *testing.T) {
	t.Parallel()

	u8 := U8Tag(TagDetailLevel, 3)
	assert.Equal(t, uint64(3), u8.UIntValue())

	u16 := U16Tag(TagProtocolVersion, 0x0204)
	assert.Equal(t, uint64(0x0204), u16.UIntValue())

	u32 := U32Tag(TagPartfileSpeed, 123456)
	assert.Equal(t, uint64(123456), u32.UIntValue())

	u64 := U64Tag(TagPartfileSizeFull, 1<<40)
	assert.Equal(t, uint64(1<<40), u64.UIntValue())

	s := StringTag(TagPartfileName, "linux.iso")
	assert.Equal(t, "linux.iso", s.StringValue())
	assert.Equal(t, byte(0), s.Value[len(s.Value)-1], "strings are NUL terminated")

	d := DoubleTag(TagSearchAvailability, 0.75)
	assert.InDelta(t, 0.75, d.DoubleValue(), 1e-9)

	addr := netip.MustParseAddrPort("10.1.2.3:4662")
	ip := IPv4Tag(TagClientUserIP, addr)
	got, ok := ip.IPv4Value()
	require.True(t, ok)
	assert.Equal(t, addr, got)

	h, err := HashTag(TagPartfileHash, "31d6cfe0d16ae931b73c59d7e0c089c0")
	require.NoError(t, err)
	assert.Equal(t, "31d6cfe0d16ae931b73c59d7e0c089c0", h.HashValue())

	_, err = HashTag(TagPartfileHash, "not-hex")
	assert.Error(t, err)
}

func TestTagChildLookup(t *testing.T) {
	t.Parallel()

	file := CustomTag(TagPartfile, nil).WithChildren(
		StringTag(TagPartfileName, "debian.iso"),
		U64Tag(TagPartfileSizeFull, 700),
		U8Tag(TagPartfileStopped, 1),
	)

	assert.Equal(t, "debian.iso", file.ChildString(TagPartfileName))

	size, ok := file.ChildUInt(TagPartfileSizeFull)
	require.True(t, ok)
	assert.Equal(t, uint64(700), size)

	assert.True(t, file.ChildBool(TagPartfileStopped))
	assert.Nil(t, file.Child(TagPartfileSpeed))

	_, ok = file.ChildUInt(TagPartfileSpeed)
	assert.False(t, ok)
}

func TestPacketPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashTag(TagPartfileHash, "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	p := NewPacket(OpDownloadQueue,
		CustomTag(TagPartfile, nil).WithChildren(
			hash,
			StringTag(TagPartfileName, "show.s01e01.mkv"),
			U64Tag(TagPartfileSizeFull, 1234567890),
			U64Tag(TagPartfileSizeDone, 123456789),
			U32Tag(TagPartfileSpeed, 50000),
			U8Tag(TagPartfileStatus, StatusReady),
			CustomTag(TagPartfilePartStatus, EncodeRLE([]byte{1, 1, 1, 0, 2})),
		),
		U8Tag(TagDetailLevel, DetailWeb),
	)

	decoded, err := decodePayload(p.encodePayload())
	require.NoError(t, err)

	assert.Equal(t, p.Op, decoded.Op)
	require.Len(t, decoded.Tags, 2)

	file := decoded.Tag(TagPartfile)
	require.NotNil(t, file)
	require.Len(t, file.Children, 7)
	assert.Equal(t, "show.s01e01.mkv", file.ChildString(TagPartfileName))
	assert.Equal(t, "0123456789abcdef0123456789abcdef", file.ChildHash(TagPartfileHash))

	status := DecodePartStatus(file.ChildBytes(TagPartfilePartStatus))
	assert.Equal(t, []byte{1, 1, 1, 0, 2}, status)

	lvl, ok := decoded.TagUInt(TagDetailLevel)
	require.True(t, ok)
	assert.Equal(t, uint64(DetailWeb), lvl)
}

func TestTagWithValueAndChildren(t *testing.T) {
	t.Parallel()

	// a tag may carry both children and its own value
	tag := U32Tag(TagConnState, 0x05).WithChildren(
		U32Tag(TagEd2kID, 9_000_000),
	)

	p := NewPacket(OpMiscData, tag)
	decoded, err := decodePayload(p.encodePayload())
	require.NoError(t, err)

	got := decoded.Tag(TagConnState)
	require.NotNil(t, got)
	assert.Equal(t, uint64(0x05), got.UIntValue())

	id, ok := got.ChildUInt(TagEd2kID)
	require.True(t, ok)
	assert.Equal(t, uint64(9_000_000), id)
}

func TestDecodeUnknownTagTypePreservesBytes(t *testing.T) {
	t.Parallel()

	raw := Tag{Name: 0x7abc, Type: 0xEE, Value: []byte{1, 2, 3, 4}}
	p := NewPacket(OpMiscData, raw)

	decoded, err := decodePayload(p.encodePayload())
	require.NoError(t, err)

	got := decoded.Tag(0x7abc)
	require.NotNil(t, got)
	assert.Equal(t, uint8(0xEE), got.Type)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.Value)
	assert.Equal(t, uint64(0), got.UIntValue())

	// and it re-encodes identically
	assert.Equal(t, p.encodePayload(), decoded.encodePayload())
}

func TestDecodePayloadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{OpNoop, 0}},
		{"truncated tag header", []byte{OpNoop, 0, 1, 0x02}},
		{
			// tag claims 100 value bytes, only 2 present
			"tag length exceeds payload",
			[]byte{OpNoop, 0, 1, 0x02, 0x02, TagTypeUInt16, 0, 0, 0, 100, 0xBE, 0xEF},
		},
		{
			// count says one tag but two follow
			"trailing bytes",
			append([]byte{OpNoop, 0, 1}, append(U8Tag(1, 1).mustEncode(), U8Tag(2, 2).mustEncode()...)...),
		},
		{
			// children flag set, zero-length body
			"children without count",
			[]byte{OpNoop, 0, 1, 0x02, 0x03, TagTypeCustom, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decodePayload(tt.data)
			assert.Error(t, err)
		})
	}
}

func (t Tag) mustEncode() []byte {
	var buf bytes.Buffer
	t.encodeTo(&buf)
	return buf.Bytes()
}
