package chidb

import "fmt"

// indexCellLiteral is the fixed 4-byte marker that precedes the
// keyIdx/keyPk pair in both index-cell variants.
var indexCellLiteral = [4]byte{0x0B, 0x03, 0x04, 0x04}

// BTreeCell is the in-memory sum type over the four on-disk cell
// shapes. Every variant carries a "key" used for ordering within a
// node: the table key for table cells, and keyIdx for index cells
// (the indexed field's value — see DESIGN.md for the duplicate-policy
// rationale that follows from this choice).
type BTreeCell struct {
	typ BTreeNodeType
	key uint32

	// childPage is valid for InternalTable and InternalIndex cells.
	childPage uint32

	// size/data are valid for LeafTable cells.
	size uint32
	data []byte

	// keyPk is valid for InternalIndex and LeafIndex cells: the
	// primary key of the row the indexed value belongs to.
	keyPk uint32
}

// NewTableInternalCell builds a table-internal cell.
func NewTableInternalCell(childPage, key uint32) *BTreeCell {
	return &BTreeCell{typ: InternalTable, childPage: childPage, key: key}
}

// NewTableLeafCell builds a table-leaf cell.
func NewTableLeafCell(key uint32, data []byte) *BTreeCell {
	return &BTreeCell{typ: LeafTable, key: key, size: uint32(len(data)), data: data}
}

// NewIndexInternalCell builds an index-internal cell.
func NewIndexInternalCell(childPage, keyIdx, keyPk uint32) *BTreeCell {
	return &BTreeCell{typ: InternalIndex, childPage: childPage, key: keyIdx, keyPk: keyPk}
}

// NewIndexLeafCell builds an index-leaf cell.
func NewIndexLeafCell(keyIdx, keyPk uint32) *BTreeCell {
	return &BTreeCell{typ: LeafIndex, key: keyIdx, keyPk: keyPk}
}

// Key returns the cell's ordering key (table key, or keyIdx for index cells).
func (c *BTreeCell) Key() uint32 { return c.key }

// ChildPage returns the internal cell's child page.
func (c *BTreeCell) ChildPage() uint32 { return c.childPage }

// Data returns the table-leaf cell's payload.
func (c *BTreeCell) Data() []byte { return c.data }

// KeyPk returns the index cell's primary-key reference.
func (c *BTreeCell) KeyPk() uint32 { return c.keyPk }

// Size returns the number of cell bytes this cell occupies on disk.
func (c *BTreeCell) Size() uint16 {
	switch c.typ {
	case InternalTable:
		return 8
	case LeafTable:
		return 8 + uint16(c.size)
	case InternalIndex:
		return 16
	case LeafIndex:
		return 12
	}
	return 0
}

// Bytes serializes the cell to its on-disk representation.
func (c *BTreeCell) Bytes() ([]byte, error) {
	switch c.typ {
	case InternalTable:
		buf := make([]byte, 8)
		putUint32be(buf[0:4], c.childPage)
		putVarint32(buf[4:8], c.key)
		return buf, nil

	case LeafTable:
		buf := make([]byte, 8+len(c.data))
		putVarint32(buf[0:4], c.size)
		putVarint32(buf[4:8], c.key)
		copy(buf[8:], c.data)
		return buf, nil

	case InternalIndex:
		buf := make([]byte, 16)
		putUint32be(buf[0:4], c.childPage)
		copy(buf[4:8], indexCellLiteral[:])
		putUint32be(buf[8:12], c.key)
		putUint32be(buf[12:16], c.keyPk)
		return buf, nil

	case LeafIndex:
		buf := make([]byte, 12)
		copy(buf[0:4], indexCellLiteral[:])
		putUint32be(buf[4:8], c.key)
		putUint32be(buf[8:12], c.keyPk)
		return buf, nil
	}

	return nil, fmt.Errorf("invalid cell type %v", c.typ)
}

// parseCell decodes a cell of the given node type starting at buf[0].
// buf may be longer than the cell; only the cell's own prefix is read.
func parseCell(typ BTreeNodeType, buf []byte) (*BTreeCell, error) {
	switch typ {
	case InternalTable:
		childPage := getUint32be(buf[0:4])
		key, _ := getVarint32(buf[4:8])
		return &BTreeCell{typ: typ, childPage: childPage, key: key}, nil

	case LeafTable:
		size, _ := getVarint32(buf[0:4])
		key, _ := getVarint32(buf[4:8])
		data := make([]byte, size)
		copy(data, buf[8:8+size])
		return &BTreeCell{typ: typ, key: key, size: size, data: data}, nil

	case InternalIndex:
		childPage := getUint32be(buf[0:4])
		keyIdx := getUint32be(buf[8:12])
		keyPk := getUint32be(buf[12:16])
		return &BTreeCell{typ: typ, childPage: childPage, key: keyIdx, keyPk: keyPk}, nil

	case LeafIndex:
		keyIdx := getUint32be(buf[4:8])
		keyPk := getUint32be(buf[8:12])
		return &BTreeCell{typ: typ, key: keyIdx, keyPk: keyPk}, nil
	}

	return nil, fmt.Errorf("invalid cell type %v", typ)
}
