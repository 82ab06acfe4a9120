// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package magnet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEd2kHash = "31d6cfe0d16ae931b73c59d7e0c089c0"

func TestParseMagnet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		uri     string
		want    Magnet
		wantErr bool
	}{
		{
			name: "full uri",
			uri:  "magnet:?xt=urn:btih:0000000031d6cfe0d16ae931b73c59d7e0c089c0&dn=linux.iso&xl=734003200",
			want: Magnet{
				InfoHash: "0000000031d6cfe0d16ae931b73c59d7e0c089c0",
				Name:     "linux.iso",
				Size:     734003200,
			},
		},
		{
			name: "uppercase btih normalized",
			uri:  "magnet:?xt=urn:btih:0000000031D6CFE0D16AE931B73C59D7E0C089C0",
			want: Magnet{InfoHash: "0000000031d6cfe0d16ae931b73c59d7e0c089c0"},
		},
		{
			name: "trackers collected",
			uri:  "magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa&tr=http%3A%2F%2Ftracker.example%2Fannounce&tr=udp%3A%2F%2Ft2.example%3A6969",
			want: Magnet{
				InfoHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
				Trackers: []string{"http://tracker.example/announce", "udp://t2.example:6969"},
			},
		},
		{
			name:    "missing btih",
			uri:     "magnet:?dn=linux.iso",
			wantErr: true,
		},
		{
			name:    "short btih",
			uri:     "magnet:?xt=urn:btih:abcdef",
			wantErr: true,
		},
		{
			name:    "not a magnet",
			uri:     "http://example.com/file.torrent",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMagnetStringRoundTrip(t *testing.T) {
	t.Parallel()

	m := Magnet{
		InfoHash: "0000000031d6cfe0d16ae931b73c59d7e0c089c0",
		Name:     "some file [2024].mkv",
		Size:     1234,
		Trackers: []string{"udp://tracker.example:6969/announce"},
	}

	parsed, err := Parse(m.String())
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
}

func TestParseEd2k(t *testing.T) {
	t.Parallel()

	link := "ed2k://|file|linux.iso|734003200|31D6CFE0D16AE931B73C59D7E0C089C0|/"
	got, err := ParseEd2k(link)
	require.NoError(t, err)
	assert.Equal(t, Ed2kLink{Name: "linux.iso", Size: 734003200, Hash: testEd2kHash}, got)
}

func TestParseEd2kWithExtraFields(t *testing.T) {
	t.Parallel()

	// AICH hash and trailing source hints are ignored
	link := "ed2k://|file|video.avi|123456|31D6CFE0D16AE931B73C59D7E0C089C0|h=ABCDEFGHIJKLMNOPQRSTUVWXYZ234567|/"
	got, err := ParseEd2k(link)
	require.NoError(t, err)
	assert.Equal(t, "video.avi", got.Name)
	assert.Equal(t, int64(123456), got.Size)
	assert.Equal(t, testEd2kHash, got.Hash)
}

func TestParseEd2kErrors(t *testing.T) {
	t.Parallel()

	for _, link := range []string{
		"magnet:?xt=urn:btih:aaaa",
		"ed2k://|server|1.2.3.4|4661|/",
		"ed2k://|file|name|notasize|31D6CFE0D16AE931B73C59D7E0C089C0|/",
		"ed2k://|file|name|100|tooshort|/",
	} {
		_, err := ParseEd2k(link)
		assert.Error(t, err, link)
	}
}

func TestEd2kLinkStringRoundTrip(t *testing.T) {
	t.Parallel()

	l := Ed2kLink{Name: "weird|name 100%.iso", Size: 42, Hash: testEd2kHash}
	s := l.String()
	assert.True(t, strings.HasPrefix(s, "ed2k://|file|"))
	assert.Contains(t, s, strings.ToUpper(testEd2kHash))

	parsed, err := ParseEd2k(s)
	require.NoError(t, err)
	assert.Equal(t, l, parsed)
}

func TestHashTransforms(t *testing.T) {
	t.Parallel()

	padded := PadEd2kHash(testEd2kHash)
	assert.Len(t, padded, 40)
	assert.True(t, strings.HasPrefix(padded, "00000000"))

	back, err := Ed2kFromInfoHash(padded)
	require.NoError(t, err)
	assert.Equal(t, testEd2kHash, back)

	synth := SynthesizeInfoHash(testEd2kHash, "linux.iso")
	assert.Len(t, synth, 40)
	assert.Equal(t, testEd2kHash+"00000009", synth)

	back, err = Ed2kFromInfoHash(synth)
	require.NoError(t, err)
	assert.Equal(t, testEd2kHash, back)

	_, err = Ed2kFromInfoHash("zz")
	assert.Error(t, err)
}

func TestIsHexHash(t *testing.T) {
	t.Parallel()

	assert.True(t, IsHexHash(testEd2kHash, 32))
	assert.True(t, IsHexHash(strings.ToUpper(testEd2kHash), 32))
	assert.False(t, IsHexHash(testEd2kHash, 40))
	assert.False(t, IsHexHash("31d6cfe0d16ae931b73c59d7e0c089cg", 32))
}
