// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package rtorrent

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
)

// writeSCGIRequest frames one request body in SCGI netstring form.
// rtorrent only looks at CONTENT_LENGTH and the mandatory SCGI marker.
func writeSCGIRequest(conn net.Conn, body []byte) error {
	var headers bytes.Buffer
	headers.WriteString("CONTENT_LENGTH")
	headers.WriteByte(0)
	headers.WriteString(strconv.Itoa(len(body)))
	headers.WriteByte(0)
	headers.WriteString("SCGI")
	headers.WriteByte(0)
	headers.WriteString("1")
	headers.WriteByte(0)

	var frame bytes.Buffer
	fmt.Fprintf(&frame, "%d:", headers.Len())
	frame.Write(headers.Bytes())
	frame.WriteByte(',')
	frame.Write(body)

	if _, err := conn.Write(frame.Bytes()); err != nil {
		return errors.Wrapf(domain.ErrTransport, "write scgi request: %v", err)
	}
	return nil
}

// readSCGIResponse strips the CGI-style header block and returns the
// XML payload. rtorrent closes the connection after one exchange, so
// the body runs to EOF.
func readSCGIResponse(conn net.Conn) ([]byte, error) {
	r := bufio.NewReader(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(domain.ErrTransport, "read scgi response headers: %v", err)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrTransport, "read scgi response body: %v", err)
	}
	return body, nil
}
