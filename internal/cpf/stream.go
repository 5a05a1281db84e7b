package cpf

import (
	"io"
	"iter"

	"github.com/tturner/eipcore/internal/cip/codec"
	"github.com/tturner/eipcore/internal/errors"
)

// Stream decodes items one at a time straight out of a borrowed buffer.
// It never reads past the declared item count and does not check for
// trailing bytes, so callers may stop early.
type Stream struct {
	r     *codec.Reader
	total int
	read  int
	err   error
}

// NewStream reads the item count from buf.
func NewStream(buf []byte) (*Stream, error) {
	r := codec.NewReader(buf)
	count, err := r.Uint16("common packet item count")
	if err != nil {
		return nil, err
	}
	return &Stream{r: r, total: int(count)}, nil
}

// Len returns the declared item count.
func (s *Stream) Len() int {
	return s.total
}

// Remaining returns how many declared items have not been pulled yet.
func (s *Stream) Remaining() int {
	return s.total - s.read
}

// Done reports whether every declared item has been pulled.
func (s *Stream) Done() bool {
	return s.read >= s.total
}

// Next decodes the next item. It returns io.EOF once the declared count is
// exhausted. Errors are sticky.
func (s *Stream) Next() (Item, error) {
	if s.err != nil {
		return Item{}, s.err
	}
	if s.Done() {
		return Item{}, io.EOF
	}
	if s.r.Len() < 4 {
		s.err = errors.DataFormat("common packet item %d: truncated header, have %d bytes", s.read, s.r.Len())
		return Item{}, s.err
	}
	typeCode, _ := s.r.Uint16("item type code")
	length, _ := s.r.Uint16("item length")
	data, err := s.r.Bytes("item data", int(length))
	if err != nil {
		s.err = errors.DataFormat("common packet item %d: length %d exceeds remaining %d bytes", s.read, length, s.r.Len())
		return Item{}, s.err
	}
	s.read++
	return Item{TypeCode: typeCode, Data: data}, nil
}

// All yields the remaining items. Iteration stops after the first error.
func (s *Stream) All() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for {
			item, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(item, err) || err != nil {
				return
			}
		}
	}
}
