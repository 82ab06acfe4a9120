// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

type encoding int

const (
	encodingNone encoding = iota
	encodingGzip
	encodingBrotli
	encodingZstd
	encodingDeflate
)

// SelectiveCompress compresses compressible responses that grow past
// minSize, negotiating zstd/brotli/gzip/deflate from Accept-Encoding.
// Small bodies (snapshot frames, Ok. responses) pass through
// untouched: for them the encoder setup costs more than the wire
// savings.
func SelectiveCompress(minSize, level int, preferZstd, preferBrotli bool) func(http.Handler) http.Handler {
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	if minSize < 0 {
		minSize = 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enc := negotiate(r.Header.Get("Accept-Encoding"), preferZstd, preferBrotli)
			if enc == encodingNone {
				next.ServeHTTP(w, r)
				return
			}

			lazy := &lazyCompressWriter{
				ResponseWriter: w,
				encoding:       enc,
				minSize:        minSize,
				baseLevel:      level,
			}
			w.Header().Set("Vary", "Accept-Encoding")

			next.ServeHTTP(lazy, r)

			if lazy.out != nil {
				lazy.close()
			}
		})
	}
}

// lazyCompressWriter defers the encoder decision until enough bytes
// have been written to clear the threshold, so the Content-Encoding
// header is only set when compression actually happens.
type lazyCompressWriter struct {
	http.ResponseWriter

	encoding  encoding
	minSize   int
	baseLevel int

	out         io.Writer
	written     int
	wroteHeader bool
	decided     bool
}

func (w *lazyCompressWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	// Content-Length is wrong once the body is re-encoded
	if w.written == 0 {
		w.Header().Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *lazyCompressWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.written += len(data)

	if !w.decided && w.written >= w.minSize {
		w.decided = true
		if w.compressible() {
			if err := w.startEncoder(); err != nil {
				w.out = w.ResponseWriter
			}
		} else {
			w.out = w.ResponseWriter
		}
	}
	if w.out == nil {
		w.out = w.ResponseWriter
	}
	return w.out.Write(data)
}

func (w *lazyCompressWriter) compressible() bool {
	ct := w.Header().Get("Content-Type")
	return strings.Contains(ct, "text/") ||
		strings.Contains(ct, "application/json") ||
		strings.Contains(ct, "application/xml") ||
		strings.Contains(ct, "application/javascript")
}

// effectiveLevel scales the configured level with the observed body
// size: big payloads (full item snapshots) are worth the extra CPU,
// small ones are not.
func (w *lazyCompressWriter) effectiveLevel() int {
	switch {
	case w.written < 10<<10:
		return max(w.baseLevel-2, 1)
	case w.written < 100<<10:
		return w.baseLevel
	default:
		return min(w.baseLevel+2, 9)
	}
}

func (w *lazyCompressWriter) startEncoder() error {
	level := w.effectiveLevel()

	switch w.encoding {
	case encodingZstd:
		enc, err := zstd.NewWriter(w.ResponseWriter, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return err
		}
		w.Header().Set("Content-Encoding", "zstd")
		w.out = enc

	case encodingBrotli:
		w.Header().Set("Content-Encoding", "br")
		w.out = brotli.NewWriterLevel(w.ResponseWriter, level)

	case encodingGzip:
		gz, err := gzip.NewWriterLevel(w.ResponseWriter, level)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.out = gz

	case encodingDeflate:
		fw, err := flate.NewWriter(w.ResponseWriter, level)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Encoding", "deflate")
		w.out = fw
	}
	return nil
}

func (w *lazyCompressWriter) Flush() {
	if f, ok := w.out.(interface{ Flush() error }); ok {
		f.Flush() //nolint:errcheck // flush failure surfaces on Close
	} else if f, ok := w.out.(http.Flusher); ok {
		f.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *lazyCompressWriter) close() {
	if c, ok := w.out.(io.Closer); ok {
		c.Close() //nolint:errcheck // response is already committed
	}
}

// negotiate picks the strongest encoding the client accepts, in the
// order zstd > brotli > gzip > deflate.
func negotiate(acceptEncoding string, preferZstd, preferBrotli bool) encoding {
	q := acceptedEncodings(acceptEncoding)

	if preferZstd && q["zstd"] > 0 {
		return encodingZstd
	}
	if preferBrotli && q["br"] > 0 {
		return encodingBrotli
	}
	if q["gzip"] > 0 {
		return encodingGzip
	}
	if q["deflate"] > 0 {
		return encodingDeflate
	}
	return encodingNone
}

// acceptedEncodings parses Accept-Encoding into quality weights. A
// value listed without q defaults to 1; unparsable q values count as
// accepted.
func acceptedEncodings(header string) map[string]float64 {
	weights := make(map[string]float64)
	if header == "" {
		return weights
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name := part
		weight := 1.0
		if idx := strings.Index(part, ";q="); idx != -1 {
			name = strings.TrimSpace(part[:idx])
			if q, err := strconv.ParseFloat(strings.TrimSpace(part[idx+3:]), 64); err == nil {
				weight = q
			}
		}

		if name == "*" {
			for _, enc := range []string{"zstd", "br", "gzip", "deflate"} {
				if _, explicit := weights[enc]; !explicit {
					weights[enc] = weight
				}
			}
			continue
		}
		weights[name] = weight
	}
	return weights
}
