package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType is a CIP elementary data type code as carried by tag services.
type DataType uint16

const (
	TypeBOOL  DataType = 0x00C1
	TypeSINT  DataType = 0x00C2
	TypeINT   DataType = 0x00C3
	TypeDINT  DataType = 0x00C4
	TypeLINT  DataType = 0x00C5
	TypeREAL  DataType = 0x00CA
	TypeLREAL DataType = 0x00CB
	TypeDWORD DataType = 0x00D3
	TypeSTR   DataType = 0x00D0

	// TypeStructHandle prefixes a structure handle in tag replies.
	TypeStructHandle DataType = 0x02A0
)

func (dt DataType) String() string {
	switch dt {
	case TypeBOOL:
		return "BOOL"
	case TypeSINT:
		return "SINT"
	case TypeINT:
		return "INT"
	case TypeDINT:
		return "DINT"
	case TypeLINT:
		return "LINT"
	case TypeREAL:
		return "REAL"
	case TypeLREAL:
		return "LREAL"
	case TypeDWORD:
		return "DWORD"
	case TypeSTR:
		return "STRING"
	case TypeStructHandle:
		return "STRUCT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%04X)", uint16(dt))
	}
}

// ParseDataType parses a data type from a hex/decimal code or an alias name.
func ParseDataType(input string) (DataType, error) {
	clean := strings.TrimSpace(input)
	if clean == "" {
		return 0, fmt.Errorf("data type is required")
	}
	if val, err := strconv.ParseUint(clean, 0, 16); err == nil {
		return DataType(val), nil
	}
	switch strings.ToUpper(clean) {
	case "BOOL":
		return TypeBOOL, nil
	case "SINT":
		return TypeSINT, nil
	case "INT":
		return TypeINT, nil
	case "DINT":
		return TypeDINT, nil
	case "LINT":
		return TypeLINT, nil
	case "REAL":
		return TypeREAL, nil
	case "LREAL":
		return TypeLREAL, nil
	case "DWORD":
		return TypeDWORD, nil
	case "STRING":
		return TypeSTR, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", input)
	}
}
