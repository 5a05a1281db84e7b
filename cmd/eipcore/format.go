package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/tturner/eipcore/internal/cip/protocol"
)

// printValue writes the type, length, raw bytes and, for elementary types,
// the decoded elements.
func printValue(w io.Writer, tag string, dataType protocol.DataType, data []byte) {
	fmt.Fprintf(w, "%s: %s (0x%04X), %d bytes\n", tag, dataType, uint16(dataType), len(data))
	if len(data) > 0 {
		fmt.Fprintf(w, "  raw: % x\n", data)
	}
	if values := decodeElements(dataType, data); len(values) > 0 {
		fmt.Fprintf(w, "  value: %s\n", strings.Join(values, ", "))
	}
}

// decodeElements renders each element of an elementary type. It returns
// nil for structures, strings and data that is not a whole number of
// elements.
func decodeElements(dataType protocol.DataType, data []byte) []string {
	size := elementSize(dataType)
	if size == 0 || len(data) == 0 || len(data)%size != 0 {
		return nil
	}
	out := make([]string, 0, len(data)/size)
	for off := 0; off < len(data); off += size {
		b := data[off : off+size]
		switch dataType {
		case protocol.TypeBOOL:
			out = append(out, strconv.FormatBool(b[0] != 0))
		case protocol.TypeSINT:
			out = append(out, strconv.Itoa(int(int8(b[0]))))
		case protocol.TypeINT:
			out = append(out, strconv.Itoa(int(int16(binary.LittleEndian.Uint16(b)))))
		case protocol.TypeDINT:
			out = append(out, strconv.Itoa(int(int32(binary.LittleEndian.Uint32(b)))))
		case protocol.TypeLINT:
			out = append(out, strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10))
		case protocol.TypeDWORD:
			out = append(out, fmt.Sprintf("0x%08X", binary.LittleEndian.Uint32(b)))
		case protocol.TypeREAL:
			out = append(out, strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32))
		case protocol.TypeLREAL:
			out = append(out, strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)), 'g', -1, 64))
		}
	}
	return out
}

func elementSize(dataType protocol.DataType) int {
	switch dataType {
	case protocol.TypeBOOL, protocol.TypeSINT:
		return 1
	case protocol.TypeINT:
		return 2
	case protocol.TypeDINT, protocol.TypeREAL, protocol.TypeDWORD:
		return 4
	case protocol.TypeLINT, protocol.TypeLREAL:
		return 8
	default:
		return 0
	}
}
