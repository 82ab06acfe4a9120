// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ec

import (
	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
)

// The daemon run-length codes part status, gap and request buffers
// inside custom tags. A doubled byte announces a run: [v,v,n] expands
// to n copies of v. Runs longer than 255 appear as adjacent triples.
//
// Decoding never fails: a doubled byte at the very end of the buffer,
// with no room left for a count, degrades to two literal bytes.

// DecodeRLE expands a run-length coded buffer.
func DecodeRLE(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for i := 0; i < len(data); {
		if i+1 < len(data) && data[i] == data[i+1] {
			if i+2 < len(data) {
				n := int(data[i+2])
				for k := 0; k < n; k++ {
					out = append(out, data[i])
				}
				i += 3
				continue
			}
			// truncated run marker, keep both literals
			out = append(out, data[i], data[i+1])
			i += 2
			continue
		}
		out = append(out, data[i])
		i++
	}
	return out
}

// EncodeRLE produces the canonical run-length coding: every maximal
// run of two or more bytes becomes a [v,v,n] triple, capped at 255 per
// triple.
func EncodeRLE(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		run := 1
		for i+run < len(data) && data[i+run] == data[i] && run < 255 {
			run++
		}
		if run == 1 {
			out = append(out, data[i])
		} else {
			out = append(out, data[i], data[i], byte(run))
		}
		i += run
	}
	return out
}

// DecodePartStatus expands a part status buffer into per-part source
// counts.
func DecodePartStatus(data []byte) []uint8 {
	return DecodeRLE(data)
}

// DecodeU64List expands a run-length coded uint64 array. The expanded
// bytes form a column-major matrix: byte j of value i sits at
// i + j*size, little-endian, where size is the value count.
func DecodeU64List(data []byte) ([]uint64, error) {
	raw := DecodeRLE(data)
	if len(raw)%8 != 0 {
		return nil, errors.Wrapf(domain.ErrProtocol, "u64 buffer expands to %d bytes, not a multiple of 8", len(raw))
	}

	size := len(raw) / 8
	vals := make([]uint64, size)
	for i := 0; i < size; i++ {
		var v uint64
		for j := 0; j < 8; j++ {
			v |= uint64(raw[i+j*size]) << (8 * j)
		}
		vals[i] = v
	}
	return vals, nil
}

// EncodeU64List is the inverse of DecodeU64List.
func EncodeU64List(vals []uint64) []byte {
	size := len(vals)
	raw := make([]byte, size*8)
	for i, v := range vals {
		for j := 0; j < 8; j++ {
			raw[i+j*size] = byte(v >> (8 * j))
		}
	}
	return EncodeRLE(raw)
}

// Range is a half-open [Start,End) byte range within a file.
type Range struct {
	Start uint64
	End   uint64
}

// DecodeRanges expands a gap or request buffer into byte ranges.
func DecodeRanges(data []byte) ([]Range, error) {
	vals, err := DecodeU64List(data)
	if err != nil {
		return nil, err
	}
	if len(vals)%2 != 0 {
		return nil, errors.Wrapf(domain.ErrProtocol, "range buffer holds %d values, expected pairs", len(vals))
	}

	ranges := make([]Range, 0, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		ranges = append(ranges, Range{Start: vals[i], End: vals[i+1]})
	}
	return ranges, nil
}
