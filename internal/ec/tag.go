// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/autobrr/mulearr/internal/domain"
)

// maxTagDepth bounds nesting when decoding hostile payloads.
const maxTagDepth = 64

// Tag is one node of an EC tag tree. Value holds the raw value bytes
// exactly as they appear on the wire; nodes with unknown types keep
// their bytes so a decode/encode round trip never drops data.
type Tag struct {
	Name     uint16
	Type     uint8
	Value    []byte
	Children []Tag
}

// U8Tag builds a uint8 tag.
func U8Tag(name uint16, v uint8) Tag {
	return Tag{Name: name, Type: TagTypeUInt8, Value: []byte{v}}
}

// U16Tag builds a uint16 tag.
func U16Tag(name uint16, v uint16) Tag {
	value := make([]byte, 2)
	binary.BigEndian.PutUint16(value, v)
	return Tag{Name: name, Type: TagTypeUInt16, Value: value}
}

// U32Tag builds a uint32 tag.
func U32Tag(name uint16, v uint32) Tag {
	value := make([]byte, 4)
	binary.BigEndian.PutUint32(value, v)
	return Tag{Name: name, Type: TagTypeUInt32, Value: value}
}

// U64Tag builds a uint64 tag.
func U64Tag(name uint16, v uint64) Tag {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, v)
	return Tag{Name: name, Type: TagTypeUInt64, Value: value}
}

// StringTag builds a NUL-terminated UTF-8 string tag.
func StringTag(name uint16, s string) Tag {
	value := make([]byte, 0, len(s)+1)
	value = append(value, s...)
	value = append(value, 0)
	return Tag{Name: name, Type: TagTypeString, Value: value}
}

// DoubleTag builds a double tag. Doubles travel as ASCII text.
func DoubleTag(name uint16, v float64) Tag {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	value := append([]byte(s), 0)
	return Tag{Name: name, Type: TagTypeDouble, Value: value}
}

// IPv4Tag builds an address tag: four IP bytes then the port.
func IPv4Tag(name uint16, addr netip.AddrPort) Tag {
	value := make([]byte, 6)
	ip4 := addr.Addr().As4()
	copy(value, ip4[:])
	binary.BigEndian.PutUint16(value[4:], addr.Port())
	return Tag{Name: name, Type: TagTypeIPv4, Value: value}
}

// HashTag builds a 16-byte hash tag from a 32-hex string.
func HashTag(name uint16, hexHash string) (Tag, error) {
	raw, err := hex.DecodeString(hexHash)
	if err != nil || len(raw) != 16 {
		return Tag{}, errors.Wrapf(domain.ErrBadRequest, "invalid ed2k hash %q", hexHash)
	}
	return Tag{Name: name, Type: TagTypeHash16, Value: raw}, nil
}

// CustomTag builds an opaque byte tag, used for RLE-coded buffers.
func CustomTag(name uint16, data []byte) Tag {
	return Tag{Name: name, Type: TagTypeCustom, Value: data}
}

// WithChildren returns a copy of t carrying the given children.
func (t Tag) WithChildren(children ...Tag) Tag {
	t.Children = append(t.Children, children...)
	return t
}

// UIntValue decodes a numeric value of any width. Non-numeric tags
// yield zero.
func (t *Tag) UIntValue() uint64 {
	switch t.Type {
	case TagTypeUInt8:
		if len(t.Value) >= 1 {
			return uint64(t.Value[0])
		}
	case TagTypeUInt16:
		if len(t.Value) >= 2 {
			return uint64(binary.BigEndian.Uint16(t.Value))
		}
	case TagTypeUInt32:
		if len(t.Value) >= 4 {
			return uint64(binary.BigEndian.Uint32(t.Value))
		}
	case TagTypeUInt64:
		if len(t.Value) >= 8 {
			return binary.BigEndian.Uint64(t.Value)
		}
	}
	return 0
}

// StringValue decodes a string value, dropping the trailing NUL.
func (t *Tag) StringValue() string {
	if t.Type != TagTypeString && t.Type != TagTypeDouble {
		return ""
	}
	return strings.TrimRight(string(t.Value), "\x00")
}

// DoubleValue decodes a double value.
func (t *Tag) DoubleValue() float64 {
	if t.Type != TagTypeDouble {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimRight(string(t.Value), "\x00"), 64)
	if err != nil {
		return 0
	}
	return v
}

// HashValue returns the 32-hex lowercase form of a hash tag.
func (t *Tag) HashValue() string {
	if t.Type != TagTypeHash16 || len(t.Value) != 16 {
		return ""
	}
	return hex.EncodeToString(t.Value)
}

// IPv4Value decodes an address tag.
func (t *Tag) IPv4Value() (netip.AddrPort, bool) {
	if t.Type != TagTypeIPv4 || len(t.Value) != 6 {
		return netip.AddrPort{}, false
	}
	addr := netip.AddrFrom4([4]byte(t.Value[:4]))
	port := binary.BigEndian.Uint16(t.Value[4:])
	return netip.AddrPortFrom(addr, port), true
}

// BoolValue treats any non-zero numeric value as true.
func (t *Tag) BoolValue() bool {
	return t.UIntValue() != 0
}

// Child returns the first direct child with the given name.
func (t *Tag) Child(name uint16) *Tag {
	for i := range t.Children {
		if t.Children[i].Name == name {
			return &t.Children[i]
		}
	}
	return nil
}

// ChildUInt returns a child's numeric value when present.
func (t *Tag) ChildUInt(name uint16) (uint64, bool) {
	if c := t.Child(name); c != nil {
		return c.UIntValue(), true
	}
	return 0, false
}

// ChildString returns a child's string value or "".
func (t *Tag) ChildString(name uint16) string {
	if c := t.Child(name); c != nil {
		return c.StringValue()
	}
	return ""
}

// ChildHash returns a child's hash value or "".
func (t *Tag) ChildHash(name uint16) string {
	if c := t.Child(name); c != nil {
		return c.HashValue()
	}
	return ""
}

// ChildBytes returns a child's raw value bytes or nil.
func (t *Tag) ChildBytes(name uint16) []byte {
	if c := t.Child(name); c != nil {
		return c.Value
	}
	return nil
}

// ChildBool returns a child's boolean value.
func (t *Tag) ChildBool(name uint16) bool {
	if c := t.Child(name); c != nil {
		return c.BoolValue()
	}
	return false
}

// encodedLen is the on-wire size of the tag including its header.
func (t *Tag) encodedLen() int {
	n := 2 + 1 + 4 + len(t.Value) // name + type + length + value
	if len(t.Children) > 0 {
		n += 2
		for i := range t.Children {
			n += t.Children[i].encodedLen()
		}
	}
	return n
}

// bodyLen is the value of the length field: everything after it.
func (t *Tag) bodyLen() int {
	n := len(t.Value)
	if len(t.Children) > 0 {
		n += 2
		for i := range t.Children {
			n += t.Children[i].encodedLen()
		}
	}
	return n
}

func (t *Tag) encodeTo(buf *bytes.Buffer) {
	wireName := t.Name << 1
	if len(t.Children) > 0 {
		wireName |= 1
	}

	var header [7]byte
	binary.BigEndian.PutUint16(header[0:], wireName)
	header[2] = t.Type
	binary.BigEndian.PutUint32(header[3:], uint32(t.bodyLen()))
	buf.Write(header[:])

	if len(t.Children) > 0 {
		var count [2]byte
		binary.BigEndian.PutUint16(count[:], uint16(len(t.Children)))
		buf.Write(count[:])
		for i := range t.Children {
			t.Children[i].encodeTo(buf)
		}
	}

	buf.Write(t.Value)
}

// decodeTag parses one tag starting at data[off], returning the node
// and the offset just past it.
func decodeTag(data []byte, off, depth int) (Tag, int, error) {
	if depth > maxTagDepth {
		return Tag{}, off, errors.Wrap(domain.ErrProtocol, "tag tree too deep")
	}
	if off+7 > len(data) {
		return Tag{}, off, errors.Wrapf(domain.ErrProtocol, "truncated tag header at offset %d", off)
	}

	wireName := binary.BigEndian.Uint16(data[off:])
	hasChildren := wireName&1 == 1
	tag := Tag{
		Name: wireName >> 1,
		Type: data[off+2],
	}
	bodyLen := int(binary.BigEndian.Uint32(data[off+3:]))
	off += 7

	if off+bodyLen > len(data) {
		return Tag{}, off, errors.Wrapf(domain.ErrProtocol, "tag 0x%04x length %d exceeds payload", tag.Name, bodyLen)
	}
	end := off + bodyLen

	if hasChildren {
		if bodyLen < 2 {
			return Tag{}, off, errors.Wrapf(domain.ErrProtocol, "tag 0x%04x has children but no count", tag.Name)
		}
		count := int(binary.BigEndian.Uint16(data[off:]))
		off += 2

		tag.Children = make([]Tag, 0, count)
		for i := 0; i < count; i++ {
			child, next, err := decodeTag(data, off, depth+1)
			if err != nil {
				return Tag{}, off, err
			}
			if next > end {
				return Tag{}, off, errors.Wrapf(domain.ErrProtocol, "tag 0x%04x child overruns parent", tag.Name)
			}
			tag.Children = append(tag.Children, child)
			off = next
		}
	}

	tag.Value = data[off:end:end]
	return tag, end, nil
}

// Packet is one EC message: an opcode with its tag tree.
type Packet struct {
	Op   uint8
	Tags []Tag
}

// NewPacket builds a packet.
func NewPacket(op uint8, tags ...Tag) *Packet {
	return &Packet{Op: op, Tags: tags}
}

// AddTag appends tags to the packet.
func (p *Packet) AddTag(tags ...Tag) {
	p.Tags = append(p.Tags, tags...)
}

// Tag returns the first top-level tag with the given name.
func (p *Packet) Tag(name uint16) *Tag {
	for i := range p.Tags {
		if p.Tags[i].Name == name {
			return &p.Tags[i]
		}
	}
	return nil
}

// TagUInt returns a top-level tag's numeric value when present.
func (p *Packet) TagUInt(name uint16) (uint64, bool) {
	if t := p.Tag(name); t != nil {
		return t.UIntValue(), true
	}
	return 0, false
}

// TagString returns a top-level tag's string value or "".
func (p *Packet) TagString(name uint16) string {
	if t := p.Tag(name); t != nil {
		return t.StringValue()
	}
	return ""
}

// encodePayload renders opcode, tag count and tags.
func (p *Packet) encodePayload() []byte {
	size := 3
	for i := range p.Tags {
		size += p.Tags[i].encodedLen()
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.WriteByte(p.Op)

	var count [2]byte
	binary.BigEndian.PutUint16(count[:], uint16(len(p.Tags)))
	buf.Write(count[:])

	for i := range p.Tags {
		p.Tags[i].encodeTo(buf)
	}
	return buf.Bytes()
}

// decodePayload parses opcode, tag count and tags.
func decodePayload(data []byte) (*Packet, error) {
	if len(data) < 3 {
		return nil, errors.Wrap(domain.ErrProtocol, "payload shorter than packet header")
	}

	p := &Packet{Op: data[0]}
	count := int(binary.BigEndian.Uint16(data[1:]))

	off := 3
	p.Tags = make([]Tag, 0, count)
	for i := 0; i < count; i++ {
		tag, next, err := decodeTag(data, off, 0)
		if err != nil {
			return nil, err
		}
		p.Tags = append(p.Tags, tag)
		off = next
	}

	if off != len(data) {
		return nil, errors.Wrapf(domain.ErrProtocol, "%d trailing bytes after %d tags", len(data)-off, count)
	}
	return p, nil
}
