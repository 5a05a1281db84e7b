package protocol

// CIP Message Router service codes and request encoding.

import "fmt"

// ServiceCode identifies a CIP service.
type ServiceCode uint8

// ReplyMask is set on the service code echoed in every reply.
const ReplyMask ServiceCode = 0x80

// Service codes used by the messaging core. Template reads reuse ReadTag
// against the template object.
const (
	ServiceGetAttributeAll     ServiceCode = 0x01
	ServiceGetAttributeSingle  ServiceCode = 0x0E
	ServiceSetAttributeSingle  ServiceCode = 0x10
	ServiceReadTag             ServiceCode = 0x4C
	ServiceWriteTag            ServiceCode = 0x4D
	ServiceReadModifyWrite     ServiceCode = 0x4E
	ServiceReadTagFragmented   ServiceCode = 0x52
	ServiceWriteTagFragmented  ServiceCode = 0x53
	ServiceTemplateRead        ServiceCode = ServiceReadTag
	ServiceGetInstanceAttrList ServiceCode = 0x55
)

// Reply returns the service code a device echoes for s.
func (s ServiceCode) Reply() ServiceCode {
	return s | ReplyMask
}

// IsReply reports whether the reply bit is set.
func (s ServiceCode) IsReply() bool {
	return s&ReplyMask != 0
}

func (s ServiceCode) String() string {
	base := s &^ ReplyMask
	name := "Service"
	switch base {
	case ServiceGetAttributeAll:
		name = "Get_Attribute_All"
	case ServiceGetAttributeSingle:
		name = "Get_Attribute_Single"
	case ServiceSetAttributeSingle:
		name = "Set_Attribute_Single"
	case ServiceReadTag:
		name = "Read_Tag"
	case ServiceWriteTag:
		name = "Write_Tag"
	case ServiceReadModifyWrite:
		name = "Read_Modify_Write_Tag"
	case ServiceReadTagFragmented:
		name = "Read_Tag_Fragmented"
	case ServiceWriteTagFragmented:
		name = "Write_Tag_Fragmented"
	case ServiceGetInstanceAttrList:
		name = "Get_Instance_Attribute_List"
	}
	if s.IsReply() {
		return fmt.Sprintf("%s(0x%02X) reply", name, uint8(base))
	}
	return fmt.Sprintf("%s(0x%02X)", name, uint8(base))
}

// EncodeRequest builds a Message Router request body. path must already be
// self-delimiting (word-count prefix included); it is embedded verbatim.
func EncodeRequest(service ServiceCode, path, payload []byte) []byte {
	return AppendRequest(make([]byte, 0, 1+len(path)+len(payload)), service, path, payload)
}

// AppendRequest appends a request body to dst.
func AppendRequest(dst []byte, service ServiceCode, path, payload []byte) []byte {
	dst = append(dst, byte(service))
	dst = append(dst, path...)
	return append(dst, payload...)
}
