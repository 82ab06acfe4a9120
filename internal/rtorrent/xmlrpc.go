// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package rtorrent

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
)

// marshalCall renders an XML-RPC methodCall. Supported parameter types
// cover the rtorrent command surface: strings, integers and raw
// torrent bodies (base64).
func marshalCall(method string, params ...any) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&b, []byte(method)); err != nil {
		return nil, errors.Wrap(err, "escape method name")
	}
	b.WriteString("</methodName><params>")

	for _, p := range params {
		b.WriteString("<param><value>")
		if err := marshalValue(&b, p); err != nil {
			return nil, err
		}
		b.WriteString("</value></param>")
	}

	b.WriteString("</params></methodCall>")
	return b.Bytes(), nil
}

func marshalValue(b *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case string:
		b.WriteString("<string>")
		if err := xml.EscapeText(b, []byte(t)); err != nil {
			return errors.Wrap(err, "escape string param")
		}
		b.WriteString("</string>")
	case int:
		fmt.Fprintf(b, "<i8>%d</i8>", t)
	case int64:
		fmt.Fprintf(b, "<i8>%d</i8>", t)
	case bool:
		n := 0
		if t {
			n = 1
		}
		fmt.Fprintf(b, "<boolean>%d</boolean>", n)
	case []byte:
		b.WriteString("<base64>")
		b.WriteString(base64.StdEncoding.EncodeToString(t))
		b.WriteString("</base64>")
	default:
		return errors.Errorf("unsupported xmlrpc param type %T", v)
	}
	return nil
}

// value is one decoded XML-RPC value. Exactly one field is populated;
// Kind records which.
type value struct {
	Kind   valueKind
	Str    string
	IntVal int64
	Bytes  []byte
	Array  []value
	Struct map[string]value
}

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindBytes
	kindArray
	kindStruct
)

// String coerces the value to a string. rtorrent is loose about
// returning integers where strings are documented and vice versa.
func (v value) String() string {
	switch v.Kind {
	case kindString:
		return v.Str
	case kindInt:
		return strconv.FormatInt(v.IntVal, 10)
	case kindBytes:
		return string(v.Bytes)
	}
	return ""
}

// Int coerces the value to an int64, parsing decimal strings.
func (v value) Int() int64 {
	switch v.Kind {
	case kindInt:
		return v.IntVal
	case kindString:
		n, _ := strconv.ParseInt(v.Str, 10, 64)
		return n
	}
	return 0
}

// fault is an XML-RPC level failure returned by rtorrent.
type fault struct {
	Code   int64
	Reason string
}

func (f *fault) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.Reason)
}

// parseResponse decodes a methodResponse into its single value, or a
// *fault wrapped in ErrBadRequest when rtorrent rejected the call.
func parseResponse(data []byte) (value, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var inFault bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return value{}, errors.Wrapf(domain.ErrProtocol, "parse xmlrpc response: %v", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "methodResponse", "params", "param":
			continue
		case "fault":
			inFault = true
		case "value":
			v, err := parseValue(dec, start)
			if err != nil {
				return value{}, err
			}
			if inFault {
				f := &fault{
					Code:   v.Struct["faultCode"].Int(),
					Reason: v.Struct["faultString"].String(),
				}
				return value{}, errors.Wrapf(domain.ErrBadRequest, "%v", f)
			}
			return v, nil
		default:
			if err := dec.Skip(); err != nil {
				return value{}, errors.Wrapf(domain.ErrProtocol, "parse xmlrpc response: %v", err)
			}
		}
	}
}

// parseValue consumes one <value> element. A value with no type child
// is a bare string per the XML-RPC spec.
func parseValue(dec *xml.Decoder, start xml.StartElement) (value, error) {
	var (
		v       value
		bare    bytes.Buffer
		typed   bool
		decoded bool
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			return value{}, errors.Wrapf(domain.ErrProtocol, "parse xmlrpc value: %v", err)
		}

		switch t := tok.(type) {
		case xml.CharData:
			bare.Write(t)
		case xml.StartElement:
			typed = true
			switch t.Name.Local {
			case "string":
				text, err := elementText(dec)
				if err != nil {
					return value{}, err
				}
				v = value{Kind: kindString, Str: text}
			case "i4", "i8", "int", "boolean":
				text, err := elementText(dec)
				if err != nil {
					return value{}, err
				}
				n, err := strconv.ParseInt(text, 10, 64)
				if err != nil {
					return value{}, errors.Wrapf(domain.ErrProtocol, "invalid xmlrpc integer %q", text)
				}
				v = value{Kind: kindInt, IntVal: n}
			case "base64":
				text, err := elementText(dec)
				if err != nil {
					return value{}, err
				}
				raw, err := base64.StdEncoding.DecodeString(text)
				if err != nil {
					return value{}, errors.Wrapf(domain.ErrProtocol, "invalid xmlrpc base64: %v", err)
				}
				v = value{Kind: kindBytes, Bytes: raw}
			case "array":
				arr, err := parseArray(dec)
				if err != nil {
					return value{}, err
				}
				v = value{Kind: kindArray, Array: arr}
			case "struct":
				members, err := parseStruct(dec)
				if err != nil {
					return value{}, err
				}
				v = value{Kind: kindStruct, Struct: members}
			default:
				if err := dec.Skip(); err != nil {
					return value{}, errors.Wrapf(domain.ErrProtocol, "parse xmlrpc value: %v", err)
				}
			}
			decoded = true
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				if !typed {
					return value{Kind: kindString, Str: bare.String()}, nil
				}
				if !decoded {
					return value{}, errors.Wrap(domain.ErrProtocol, "empty xmlrpc value")
				}
				return v, nil
			}
		}
	}
}

func parseArray(dec *xml.Decoder) ([]value, error) {
	var values []value
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrapf(domain.ErrProtocol, "parse xmlrpc array: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				v, err := parseValue(dec, t)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return values, nil
			}
		}
	}
}

func parseStruct(dec *xml.Decoder) (map[string]value, error) {
	members := make(map[string]value)
	var name string

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrapf(domain.ErrProtocol, "parse xmlrpc struct: %v", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				name, err = elementText(dec)
				if err != nil {
					return nil, err
				}
			case "value":
				v, err := parseValue(dec, t)
				if err != nil {
					return nil, err
				}
				members[name] = v
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return members, nil
			}
		}
	}
}

func elementText(dec *xml.Decoder) (string, error) {
	var b bytes.Buffer
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", errors.Wrapf(domain.ErrProtocol, "parse xmlrpc text: %v", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			return b.String(), nil
		}
	}
}
