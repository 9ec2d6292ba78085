package chidb

import (
	"fmt"

	"github.com/msAlcantara/chidb/chidberr"
)

// Record codec, grounded on dynajoe-tinydb's Field/Record shape, but
// generalized to the exact wire layout of spec.md §3: a one-byte
// header length (counting itself), one type code per column, then the
// concatenated column payload bytes back to back.
//
// Type codes: 0 is NULL (no payload bytes), 1 is a big-endian int8
// (still one payload byte, matching the on-disk width rather than the
// in-memory Go type), 2 is a big-endian int16, 4 is a big-endian
// int32, and any odd code >= 13 is text of length (code-13)/2.

// Field is a single typed column value. Data is one of nil, int8,
// int16, int32, or string; any other dynamic type is a programming
// error caught at encode time.
type Field struct {
	Data interface{}
}

// NewNullField builds a NULL field.
func NewNullField() *Field { return &Field{Data: nil} }

// NewInt8Field builds an int8 field.
func NewInt8Field(v int8) *Field { return &Field{Data: v} }

// NewInt16Field builds an int16 field.
func NewInt16Field(v int16) *Field { return &Field{Data: v} }

// NewInt32Field builds an int32 field.
func NewInt32Field(v int32) *Field { return &Field{Data: v} }

// NewTextField builds a text field.
func NewTextField(v string) *Field { return &Field{Data: v} }

// IsNull reports whether the field holds SQL NULL.
func (f *Field) IsNull() bool { return f.Data == nil }

// Record is an ordered tuple of fields, matching the payload of a
// table-leaf cell once serialized.
type Record struct {
	Fields []*Field
}

// NewRecord builds a record from its fields in column order.
func NewRecord(fields ...*Field) *Record {
	return &Record{Fields: fields}
}

const (
	recordTypeNull  = 0
	recordTypeInt8  = 1
	recordTypeInt16 = 2
	recordTypeInt32 = 4
	textTypeBase    = 13
)

func textTypeCode(length int) byte {
	return byte(textTypeBase + 2*length)
}

// fieldWire returns the field's type code and encoded payload bytes.
func fieldWire(f *Field) (byte, []byte, error) {
	switch v := f.Data.(type) {
	case nil:
		return recordTypeNull, nil, nil
	case int8:
		return recordTypeInt8, []byte{byte(v)}, nil
	case int16:
		buf := make([]byte, 2)
		putUint16be(buf, uint16(v))
		return recordTypeInt16, buf, nil
	case int32:
		buf := make([]byte, 4)
		putUint32be(buf, uint32(v))
		return recordTypeInt32, buf, nil
	case string:
		return textTypeCode(len(v)), []byte(v), nil
	default:
		return 0, nil, fmt.Errorf("%w: unsupported record field type %T", chidberr.ErrMisuse, v)
	}
}

// Bytes serializes the record to its exact on-disk layout: a one-byte
// header length (including itself), the per-column type codes, then
// the concatenated payload bytes.
func (r *Record) Bytes() ([]byte, error) {
	typeCodes := make([]byte, 0, len(r.Fields))
	var payload []byte

	for _, f := range r.Fields {
		code, data, err := fieldWire(f)
		if err != nil {
			return nil, err
		}
		typeCodes = append(typeCodes, code)
		payload = append(payload, data...)
	}

	headerLen := 1 + len(typeCodes)
	if headerLen > 0xFF {
		return nil, fmt.Errorf("%w: record header of %d columns overflows a one-byte length", chidberr.ErrMisuse, len(typeCodes))
	}

	buf := make([]byte, 0, headerLen+len(payload))
	buf = append(buf, byte(headerLen))
	buf = append(buf, typeCodes...)
	buf = append(buf, payload...)
	return buf, nil
}

// ParseRecord decodes a record from a table-leaf cell payload.
func ParseRecord(buf []byte) (*Record, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("%w: empty record buffer", chidberr.ErrCorruptHeader)
	}

	headerLen := int(buf[0])
	if headerLen < 1 || headerLen > len(buf) {
		return nil, fmt.Errorf("%w: record header length %d exceeds buffer of %d bytes", chidberr.ErrCorruptHeader, headerLen, len(buf))
	}

	typeCodes := buf[1:headerLen]
	payload := buf[headerLen:]

	fields := make([]*Field, 0, len(typeCodes))
	offset := 0
	for _, code := range typeCodes {
		switch {
		case code == recordTypeNull:
			fields = append(fields, NewNullField())

		case code == recordTypeInt8:
			if offset+1 > len(payload) {
				return nil, fmt.Errorf("%w: record payload truncated reading int8", chidberr.ErrCorruptHeader)
			}
			fields = append(fields, NewInt8Field(int8(payload[offset])))
			offset++

		case code == recordTypeInt16:
			if offset+2 > len(payload) {
				return nil, fmt.Errorf("%w: record payload truncated reading int16", chidberr.ErrCorruptHeader)
			}
			fields = append(fields, NewInt16Field(int16(getUint16be(payload[offset:offset+2]))))
			offset += 2

		case code == recordTypeInt32:
			if offset+4 > len(payload) {
				return nil, fmt.Errorf("%w: record payload truncated reading int32", chidberr.ErrCorruptHeader)
			}
			fields = append(fields, NewInt32Field(int32(getUint32be(payload[offset:offset+4]))))
			offset += 4

		case code >= textTypeBase && code%2 == 1:
			n := int(code-textTypeBase) / 2
			if offset+n > len(payload) {
				return nil, fmt.Errorf("%w: record payload truncated reading text", chidberr.ErrCorruptHeader)
			}
			fields = append(fields, NewTextField(string(payload[offset:offset+n])))
			offset += n

		default:
			return nil, fmt.Errorf("%w: invalid record column type code %d", chidberr.ErrCorruptHeader, code)
		}
	}

	return &Record{Fields: fields}, nil
}
