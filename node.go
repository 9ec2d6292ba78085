package chidb

import (
	"fmt"
	"sort"

	"github.com/msAlcantara/chidb/chidberr"
)

// BTreeNodeType distinguishes the four on-disk node variants.
type BTreeNodeType byte

const (
	InternalTable BTreeNodeType = 0x05
	LeafTable     BTreeNodeType = 0x0D
	InternalIndex BTreeNodeType = 0x02
	LeafIndex     BTreeNodeType = 0x0A
)

// BTreeNodeTypeFromByte validates a raw type byte.
func BTreeNodeTypeFromByte(b byte) (BTreeNodeType, error) {
	switch BTreeNodeType(b) {
	case InternalTable, LeafTable, InternalIndex, LeafIndex:
		return BTreeNodeType(b), nil
	}
	return 0, fmt.Errorf("invalid btree node type %#x", b)
}

// Value returns the byte representation of the node type.
func (n BTreeNodeType) Value() byte { return byte(n) }

func (n BTreeNodeType) String() string {
	switch n {
	case InternalTable:
		return "internal table"
	case LeafTable:
		return "leaf table"
	case InternalIndex:
		return "internal index"
	case LeafIndex:
		return "leaf index"
	}
	return "<invalid type>"
}

// IsInternal reports whether the type carries a right_page pointer.
func (n BTreeNodeType) IsInternal() bool {
	return n == InternalTable || n == InternalIndex
}

// IsTable reports whether the type belongs to the table B-tree family.
func (n BTreeNodeType) IsTable() bool {
	return n == InternalTable || n == LeafTable
}

// leafHeaderSize is the node header size (type, free_offset,
// cells_offset, n_cells, pad) shared by every variant.
const leafHeaderSize = 8

// internalHeaderSize adds the 4-byte right_page field.
const internalHeaderSize = 12

// headerSize returns this node type's header width within the node
// region (i.e. relative to the start of page.Read(), which already
// skips the 100-byte file header on page 1).
func (n BTreeNodeType) headerSize() uint16 {
	if n.IsInternal() {
		return internalHeaderSize
	}
	return leafHeaderSize
}

// fixedCellSize returns the fixed on-disk size for every cell of this node
// type, except table-leaf, whose size also depends on payload length.
func (n BTreeNodeType) fixedCellSize() (uint16, bool) {
	switch n {
	case InternalTable:
		return 8, true
	case InternalIndex:
		return 16, true
	case LeafIndex:
		return 12, true
	}
	return 0, false
}

// BTreeNode is an in-memory, parsed view over a page's node region. It
// borrows the page's bytes: the cell offset array and the cells
// themselves are read/written directly against the underlying page,
// while the header scalars (type, freeOffset, nCells, cellsOffset,
// rightPage) are cached here and must be flushed with WriteNode before
// the page is released.
//
// Two coordinate systems coexist on a single page, matching the wire
// format's own inconsistency: free_offset and n_cells are local to the
// node header (so an empty page-1 root records free_offset=8, not
// 108), while cells_offset and every cell offset array entry are
// absolute, page-start-relative byte positions, since cell content is
// always anchored against the page's full physical size regardless of
// where its header happens to start. Invariants that compare the two
// (e.g. free_offset <= cells_offset) must first add the node's own
// Offset() to free_offset.
type BTreeNode struct {
	page *MemPage
	typ  BTreeNodeType

	// nodeOffset is page.Offset(): 100 on page 1, 0 elsewhere.
	nodeOffset uint16

	// freeOffset is the offset of the first free byte after the cell
	// offset array, local to nodeOffset.
	freeOffset uint16

	// nCells is the number of cells currently stored.
	nCells uint16

	// cellsOffset is the absolute offset of the lowest byte occupied
	// by a cell, measured from the start of the page.
	cellsOffset uint16

	// rightPage is valid only for internal nodes.
	rightPage uint32
}

// newBlankNode builds the in-memory state of a freshly initialized,
// empty node of the given type over an already-allocated page.
func newBlankNode(page *MemPage, typ BTreeNodeType) *BTreeNode {
	return &BTreeNode{
		page:        page,
		typ:         typ,
		nodeOffset:  page.Offset(),
		freeOffset:  typ.headerSize(),
		nCells:      0,
		cellsOffset: uint16(len(page.Data())),
		rightPage:   0,
	}
}

// parseNode parses a BTreeNode view from a page's raw bytes.
func parseNode(page *MemPage) (*BTreeNode, error) {
	data := page.Read()
	if len(data) < leafHeaderSize {
		return nil, fmt.Errorf("%w: page too small for a node header", chidberr.ErrIO)
	}

	typ, err := BTreeNodeTypeFromByte(data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chidberr.ErrIO, err)
	}

	node := &BTreeNode{
		page:        page,
		typ:         typ,
		nodeOffset:  page.Offset(),
		freeOffset:  getUint16be(data[1:3]),
		cellsOffset: getUint16be(data[3:5]),
		nCells:      getUint16be(data[5:7]),
	}
	if typ.IsInternal() {
		node.rightPage = getUint32be(data[8:12])
	}

	return node, nil
}

// Type returns the node's variant.
func (n *BTreeNode) Type() BTreeNodeType { return n.typ }

// NCells returns the number of cells stored in the node.
func (n *BTreeNode) NCells() uint16 { return n.nCells }

// RightPage returns the rightmost child page (internal nodes only).
func (n *BTreeNode) RightPage() uint32 { return n.rightPage }

// SetRightPage sets the rightmost child page (internal nodes only).
func (n *BTreeNode) SetRightPage(npage uint32) { n.rightPage = npage }

// PageNumber returns the page number backing this node view.
func (n *BTreeNode) PageNumber() uint32 { return n.page.Number() }

// writeHeader serializes the cached header scalars back into the
// page's buffer. It does not touch the cell offset array or cells,
// which are already mutated in place on the page.
func (n *BTreeNode) writeHeader() error {
	data := n.page.Read()

	data[0] = n.typ.Value()
	putUint16be(data[1:3], n.freeOffset)
	putUint16be(data[3:5], n.cellsOffset)
	putUint16be(data[5:7], n.nCells)
	data[7] = 0
	if n.typ.IsInternal() {
		putUint32be(data[8:12], n.rightPage)
	}

	return n.page.Write(data)
}

// cellOffsetArray returns the raw cell offset array bytes, n_cells
// entries of 2 bytes each, in on-disk (sorted) order.
func (n *BTreeNode) cellOffsetArray() []byte {
	data := n.page.Read()
	start := n.typ.headerSize()
	return data[start : start+2*n.nCells]
}

// cellOffsetAt returns the absolute, page-start-relative byte offset
// of the nCell-th cell per the offset array.
func (n *BTreeNode) cellOffsetAt(nCell uint16) (uint16, error) {
	if nCell >= n.nCells {
		return 0, fmt.Errorf("%w: cell %d (have %d cells)", chidberr.ErrCellNo, nCell, n.nCells)
	}
	arr := n.cellOffsetArray()
	return getUint16be(arr[2*nCell : 2*nCell+2]), nil
}

// freeBytes reports the size of the contiguous free region between
// the offset array and the cell area. free_offset is local to the
// node header, so it is shifted into the same absolute coordinate
// system as cellsOffset before the comparison.
func (n *BTreeNode) freeBytes() int {
	absoluteFreeStart := int(n.nodeOffset) + int(n.freeOffset)
	return int(n.cellsOffset) - absoluteFreeStart
}

// hasRoomFor reports whether a cell of cellSize bytes (plus its
// 2-byte offset-array entry) fits in the node's free region.
func (n *BTreeNode) hasRoomFor(cellSize uint16) bool {
	return n.freeBytes() >= int(cellSize)+2
}

// GetCell reads and parses the nCell-th cell. Cell offsets are
// absolute, so the cell is read from the page's full buffer rather
// than the node-region-relative view.
func (n *BTreeNode) GetCell(nCell uint16) (*BTreeCell, error) {
	offset, err := n.cellOffsetAt(nCell)
	if err != nil {
		return nil, err
	}
	data := n.page.Data()
	return parseCell(n.typ, data[offset:])
}

// InsertCell inserts cell at logical position nCell (0-based position
// within the sorted offset array), per §4.2.3:
//  1. write the cell bytes at the top of the cell area
//  2. shrink cellsOffset
//  3. shift offset-array entries [nCell, nCells) right by one slot
//  4. write the new entry at position nCell
//  5. bump nCells and freeOffset
//
// Callers must have already verified hasRoomFor(cell size).
func (n *BTreeNode) InsertCell(nCell uint16, cell *BTreeCell) error {
	if nCell > n.nCells {
		return fmt.Errorf("%w: insert position %d beyond %d cells", chidberr.ErrCellNo, nCell, n.nCells)
	}

	raw, err := cell.Bytes()
	if err != nil {
		return err
	}

	newCellsOffset := n.cellsOffset - uint16(len(raw))
	if err := n.page.WriteAbsAt(raw, newCellsOffset); err != nil {
		return err
	}

	arrStart := n.typ.headerSize()
	oldArr := append([]byte(nil), n.cellOffsetArray()...)

	newArr := make([]byte, 0, len(oldArr)+2)
	newArr = append(newArr, oldArr[:2*nCell]...)
	entry := make([]byte, 2)
	putUint16be(entry, newCellsOffset)
	newArr = append(newArr, entry...)
	newArr = append(newArr, oldArr[2*nCell:]...)

	if err := n.page.WriteAt(newArr, arrStart); err != nil {
		return err
	}

	n.cellsOffset = newCellsOffset
	n.nCells++
	n.freeOffset += 2

	return nil
}

// findInsertPosition returns the first index i such that the key
// stored in cell i is >= key (spec.md's "key <= cell.key" descent
// rule, tie-breaking equal keys to the left), by binary search over
// the sorted cell offset array.
func (n *BTreeNode) findInsertPosition(key uint32) (uint16, error) {
	pos := sort.Search(int(n.nCells), func(i int) bool {
		c, err := n.GetCell(uint16(i))
		if err != nil {
			return true
		}
		return key <= c.key
	})
	return uint16(pos), nil
}
