// Package epath encodes CIP EPATHs: logical class/instance/attribute
// segments and ANSI extended symbolic segments for tag names.
package epath

import (
	"fmt"
	"strconv"

	"github.com/tturner/eipcore/internal/cip/codec"
)

// Segment type bytes.
const (
	SegmentClassID     = 0x20
	SegmentInstanceID  = 0x24
	SegmentMemberID    = 0x28
	SegmentAttributeID = 0x30
	SegmentSymbolic    = 0x91
)

// MaxSymbolLen is the longest name a symbolic segment can carry.
const MaxSymbolLen = 0xFF

// Path is an encoded, word-aligned EPATH without its size prefix.
type Path []byte

// WordLen is the path size in 16-bit words.
func (p Path) WordLen() uint8 {
	return uint8(len(p) / 2)
}

// Encode prefixes the path with its word count, the self-delimiting form
// embedded in a Message Router request.
func (p Path) Encode() []byte {
	out := make([]byte, 0, 1+len(p))
	out = append(out, p.WordLen())
	return append(out, p...)
}

// Builder accumulates segments. The first error sticks and is returned by
// Build.
type Builder struct {
	path Path
	err  error
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Class appends a class segment.
func (b *Builder) Class(id uint16) *Builder {
	return b.logical(SegmentClassID, uint32(id))
}

// Instance appends an instance segment.
func (b *Builder) Instance(id uint32) *Builder {
	return b.logical(SegmentInstanceID, id)
}

// Attribute appends an attribute segment.
func (b *Builder) Attribute(id uint16) *Builder {
	return b.logical(SegmentAttributeID, uint32(id))
}

// Member appends an element (array index) segment.
func (b *Builder) Member(index uint32) *Builder {
	return b.logical(SegmentMemberID, index)
}

// Symbol appends one symbolic segment per dotted component of tag, with a
// member segment for every "[n]" index. "Program:Main" stays one segment.
func (b *Builder) Symbol(tag string) *Builder {
	if b.err != nil {
		return b
	}
	parts, err := splitTag(tag)
	if err != nil {
		b.err = err
		return b
	}
	for _, part := range parts {
		if part.isIndex {
			b.Member(part.index)
			continue
		}
		if len(part.name) > MaxSymbolLen {
			b.err = fmt.Errorf("symbolic segment %q exceeds %d bytes", part.name, MaxSymbolLen)
			return b
		}
		b.path = append(b.path, SegmentSymbolic, byte(len(part.name)))
		b.path = append(b.path, part.name...)
		if len(part.name)%2 != 0 {
			b.path = append(b.path, 0x00)
		}
	}
	return b
}

// Build returns a copy of the accumulated path.
func (b *Builder) Build() (Path, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.path) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return append(Path(nil), b.path...), nil
}

// logical appends the smallest padded logical segment holding value.
func (b *Builder) logical(segment byte, value uint32) *Builder {
	if b.err != nil {
		return b
	}
	switch {
	case value <= 0xFF:
		b.path = append(b.path, segment, byte(value))
	case value <= 0xFFFF:
		b.path = append(b.path, segment|0x01, 0x00)
		b.path = codec.AppendUint16(b.path, uint16(value))
	default:
		b.path = append(b.path, segment|0x02, 0x00)
		b.path = codec.AppendUint32(b.path, value)
	}
	return b
}

// Logical encodes a class/instance/attribute path with its size prefix.
func Logical(class uint16, instance uint32, attribute uint16) []byte {
	path, _ := New().Class(class).Instance(instance).Attribute(attribute).Build()
	return path.Encode()
}

// Symbolic encodes a tag name path with its size prefix.
func Symbolic(tag string) ([]byte, error) {
	path, err := New().Symbol(tag).Build()
	if err != nil {
		return nil, err
	}
	return path.Encode(), nil
}

type tagPart struct {
	name    string
	index   uint32
	isIndex bool
}

// splitTag splits "Program:Main.Tag[5,2].Member" into names and indices.
func splitTag(tag string) ([]tagPart, error) {
	var parts []tagPart
	start := 0
	flush := func(end int) {
		if end > start {
			parts = append(parts, tagPart{name: tag[start:end]})
		}
	}
	for i := 0; i < len(tag); i++ {
		switch tag[i] {
		case '.':
			flush(i)
			start = i + 1
		case '[':
			flush(i)
			end := i + 1
			for end < len(tag) && tag[end] != ']' {
				end++
			}
			if end == len(tag) {
				return nil, fmt.Errorf("tag %q: unterminated index", tag)
			}
			indices, err := parseIndices(tag[i+1 : end])
			if err != nil {
				return nil, fmt.Errorf("tag %q: %w", tag, err)
			}
			for _, idx := range indices {
				parts = append(parts, tagPart{index: idx, isIndex: true})
			}
			i = end
			start = end + 1
		}
	}
	flush(len(tag))
	if len(parts) == 0 || parts[0].isIndex {
		return nil, fmt.Errorf("tag %q: missing name", tag)
	}
	return parts, nil
}

func parseIndices(s string) ([]uint32, error) {
	var out []uint32
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ',' {
			continue
		}
		v, err := strconv.ParseUint(s[start:i], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", s[start:i])
		}
		out = append(out, uint32(v))
		start = i + 1
	}
	return out, nil
}
