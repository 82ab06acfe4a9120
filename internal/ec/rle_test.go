// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRLE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{
			name: "empty",
			in:   nil,
			want: []byte{},
		},
		{
			name: "isolated bytes pass through",
			in:   []byte{1, 2, 3},
			want: []byte{1, 2, 3},
		},
		{
			name: "run expands",
			in:   []byte{7, 7, 5},
			want: []byte{7, 7, 7, 7, 7},
		},
		{
			name: "zero count run expands to nothing",
			in:   []byte{7, 7, 0, 9},
			want: []byte{9},
		},
		{
			name: "mixed runs and literals",
			in:   []byte{1, 2, 2, 3, 4},
			want: []byte{1, 2, 2, 2, 4},
		},
		{
			name: "terminal pair of distinct bytes",
			in:   []byte{5, 9},
			want: []byte{5, 9},
		},
		{
			name: "terminal doubled byte degrades to two literals",
			in:   []byte{5, 5},
			want: []byte{5, 5},
		},
		{
			name: "run then terminal doubled byte",
			in:   []byte{1, 1, 3, 8, 8},
			want: []byte{1, 1, 1, 8, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodeRLE(tt.in))
		})
	}
}

func TestEncodeRLE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{
			name: "literals stay",
			in:   []byte{1, 2, 3},
			want: []byte{1, 2, 3},
		},
		{
			name: "pair becomes a run",
			in:   []byte{4, 4},
			want: []byte{4, 4, 2},
		},
		{
			name: "long run",
			in:   bytes.Repeat([]byte{9}, 100),
			want: []byte{9, 9, 100},
		},
		{
			name: "run longer than 255 splits into adjacent triples",
			in:   bytes.Repeat([]byte{3}, 300),
			want: []byte{3, 3, 255, 3, 3, 45},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, EncodeRLE(tt.in))
		})
	}
}

func TestRLERoundTrip(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		{},
		{0},
		{0, 0},
		{1, 2, 3, 4, 5},
		bytes.Repeat([]byte{0}, 1000),
		append(bytes.Repeat([]byte{1}, 256), 2, 3, 3, 3),
		{255, 255, 255, 0, 0, 7},
	}

	for _, p := range payloads {
		decoded := DecodeRLE(EncodeRLE(p))
		assert.Equal(t, append([]byte{}, p...), decoded)
	}

	// canonical encoded buffers survive decode+encode unchanged
	encoded := [][]byte{
		{1, 2, 3},
		{4, 4, 2},
		{9, 9, 255, 9, 9, 45},
		{1, 1, 3, 2, 5, 5, 10},
	}
	for _, e := range encoded {
		assert.Equal(t, e, EncodeRLE(DecodeRLE(e)))
	}
}

func TestDecodeU64List(t *testing.T) {
	t.Parallel()

	// two values laid out column-major: byte j of value i at i+j*size
	vals := []uint64{0x0102030405060708, 0xf1f2f3f4f5f6f7f8}
	raw := make([]byte, 16)
	for i, v := range vals {
		for j := 0; j < 8; j++ {
			raw[i+j*2] = byte(v >> (8 * j))
		}
	}

	got, err := DecodeU64List(EncodeRLE(raw))
	require.NoError(t, err)
	assert.Equal(t, vals, got)
}

func TestU64ListRoundTrip(t *testing.T) {
	t.Parallel()

	tests := [][]uint64{
		{},
		{0},
		{0, 9728000},
		{12345, 9728000, 19456000, 1 << 40},
	}

	for _, vals := range tests {
		got, err := DecodeU64List(EncodeU64List(vals))
		require.NoError(t, err)
		assert.Equal(t, append([]uint64{}, vals...), got)
	}
}

func TestDecodeU64ListBadWidth(t *testing.T) {
	t.Parallel()

	// expands to 3 bytes, not a multiple of 8
	_, err := DecodeU64List([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeRanges(t *testing.T) {
	t.Parallel()

	ranges := []Range{{Start: 0, End: 9728000}, {Start: 19456000, End: 20000000}}
	vals := make([]uint64, 0, 4)
	for _, r := range ranges {
		vals = append(vals, r.Start, r.End)
	}

	got, err := DecodeRanges(EncodeU64List(vals))
	require.NoError(t, err)
	assert.Equal(t, ranges, got)

	_, err = DecodeRanges(EncodeU64List([]uint64{1, 2, 3}))
	assert.Error(t, err)
}

func TestDecodePartStatus(t *testing.T) {
	t.Parallel()

	// 50 parts with one source, 3 parts with five
	encoded := EncodeRLE(append(bytes.Repeat([]byte{1}, 50), 5, 5, 5))
	parts := DecodePartStatus(encoded)
	require.Len(t, parts, 53)
	assert.Equal(t, uint8(1), parts[0])
	assert.Equal(t, uint8(5), parts[52])
}
