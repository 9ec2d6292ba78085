package chidb

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/msAlcantara/chidb/chidberr"
)

// BTree represents a B-Tree file: a pointer to a Pager, which it uses
// to access pages on disk. It owns nothing persistent beyond pointing
// at root page numbers supplied by callers.
type BTree struct {
	pager *Pager
	log   *logrus.Logger
}

// Open opens a database file and verifies the file header. If the
// file is empty, it initializes the header using the pager's page size
// (DefaultPageSize unless WithPageSize overrides it) and creates an
// empty table-leaf node in page 1.
func Open(filename string, opts ...PagerOption) (*BTree, error) {
	pager, err := OpenPager(filename, opts...)
	if err != nil {
		return nil, err
	}
	bt := &BTree{pager: pager, log: discardLogger()}

	isEmpty, err := pager.IsEmpty()
	if err != nil {
		return nil, err
	}

	if isEmpty {
		if err := bt.initializeHeader(); err != nil {
			return nil, err
		}
		npage, err := bt.NewNode(LeafTable)
		if err != nil {
			return nil, err
		}
		if npage != 1 {
			return nil, fmt.Errorf("%w: expected root page to be 1, got %d", chidberr.ErrIO, npage)
		}
		return bt, nil
	}

	if err := bt.validateHeader(); err != nil {
		return nil, err
	}
	return bt, nil
}

// SetLogger attaches a structured logger used for split/insert tracing.
func (b *BTree) SetLogger(log *logrus.Logger) { b.log = log }

// Close closes the btree's pager.
func (b *BTree) Close() error {
	return b.pager.Close()
}

func (b *BTree) initializeHeader() error {
	header := DefaultFileHeader(b.pager.PageSize())
	raw, err := header.Bytes()
	if err != nil {
		return err
	}
	return b.pager.WriteHeader(raw)
}

func (b *BTree) validateHeader() error {
	raw, err := b.pager.ReadHeader()
	if err != nil {
		return err
	}
	header, err := ParseFileHeader(raw)
	if err != nil {
		return err
	}
	return b.pager.SetPageSize(header.PageSize)
}

// ReadHeader returns the parsed file header.
func (b *BTree) ReadHeader() (FileHeader, error) {
	raw, err := b.pager.ReadHeader()
	if err != nil {
		return FileHeader{}, err
	}
	return ParseFileHeader(raw)
}

// TotalPages returns the number of pages currently allocated in the
// underlying file.
func (b *BTree) TotalPages() uint32 {
	return b.pager.TotalPages()
}

// NewNode allocates a new page in the file and initializes it as an
// empty B-Tree node of the given type, returning its page number.
func (b *BTree) NewNode(typ BTreeNodeType) (uint32, error) {
	npage, err := b.pager.AllocatePage()
	if err != nil {
		return 0, err
	}
	if err := b.InitEmptyNode(npage, typ); err != nil {
		return 0, err
	}
	return npage, nil
}

// InitEmptyNode initializes an already-allocated page to contain an
// empty B-Tree node of the given type.
func (b *BTree) InitEmptyNode(npage uint32, typ BTreeNodeType) error {
	page, err := b.pager.ReadPage(npage)
	if err != nil {
		return err
	}
	node := newBlankNode(page, typ)
	if err := node.writeHeader(); err != nil {
		return err
	}
	if err := b.pager.WritePage(page); err != nil {
		return err
	}
	return b.pager.ReleaseMemPage(page)
}

// GetNodeByPage loads a B-Tree node view from a page on disk. Changes
// made to the returned node are not effective until WriteNode is
// called with it; callers must call FreeMemNode on every exit path.
func (b *BTree) GetNodeByPage(npage uint32) (*BTreeNode, error) {
	page, err := b.pager.ReadPage(npage)
	if err != nil {
		return nil, err
	}
	return parseNode(page)
}

// FreeMemNode releases the underlying page. It must be called on
// every path that obtained a node via GetNodeByPage or NewNode-adjacent
// helpers.
func (b *BTree) FreeMemNode(node *BTreeNode) error {
	if node == nil {
		return nil
	}
	return b.pager.ReleaseMemPage(node.page)
}

// WriteNode serializes an in-memory B-Tree node's header fields back
// into its page and writes the page to disk. Cells and the offset
// array are already mutated in place on the page buffer.
func (b *BTree) WriteNode(node *BTreeNode) error {
	if err := node.writeHeader(); err != nil {
		return err
	}
	return b.pager.WritePage(node.page)
}

// Find returns the payload stored under key in the table B-tree rooted
// at nroot. Index trees are not searched through this entry point.
func (b *BTree) Find(nroot uint32, key uint32) ([]byte, error) {
	return b.find(nroot, key)
}

func (b *BTree) find(npage uint32, key uint32) ([]byte, error) {
	node, err := b.GetNodeByPage(npage)
	if err != nil {
		return nil, err
	}
	defer b.FreeMemNode(node)

	for i := uint16(0); i < node.NCells(); i++ {
		cell, err := node.GetCell(i)
		if err != nil {
			return nil, err
		}

		if node.Type() == LeafTable && cell.Key() == key {
			return append([]byte(nil), cell.Data()...), nil
		}

		if key <= cell.Key() {
			if node.Type() == LeafTable {
				return nil, chidberr.ErrNotFound
			}
			return b.find(cell.ChildPage(), key)
		}
	}

	if node.Type().IsInternal() {
		return b.find(node.RightPage(), key)
	}

	return nil, chidberr.ErrNotFound
}

// CreateTable allocates a new, empty table B-tree and returns its root
// page number.
func (b *BTree) CreateTable() (uint32, error) {
	return b.NewNode(LeafTable)
}

// CreateIndex allocates a new, empty index B-tree and returns its root
// page number.
func (b *BTree) CreateIndex() (uint32, error) {
	return b.NewNode(LeafIndex)
}

// InsertInTable inserts (key, data) as a table-leaf cell into the
// table B-tree rooted at nroot.
func (b *BTree) InsertInTable(nroot uint32, key uint32, data []byte) error {
	return b.Insert(nroot, NewTableLeafCell(key, append([]byte(nil), data...)))
}

// InsertInIndex inserts (keyIdx, keyPk) as an index-leaf cell into the
// index B-tree rooted at nroot.
func (b *BTree) InsertInIndex(nroot uint32, keyIdx, keyPk uint32) error {
	return b.Insert(nroot, NewIndexLeafCell(keyIdx, keyPk))
}

// Insert inserts cell into the B-tree rooted at nroot, preserving the
// root page's identity across splits per §4.2.6.
func (b *BTree) Insert(nroot uint32, cell *BTreeCell) error {
	root, err := b.GetNodeByPage(nroot)
	if err != nil {
		return err
	}

	if root.hasRoomFor(cell.Size()) {
		if err := b.FreeMemNode(root); err != nil {
			return err
		}
		return b.insertNonFull(nroot, cell)
	}

	rootType := root.Type()
	rootRightPage := root.RightPage()
	var oldCells []*BTreeCell
	for i := uint16(0); i < root.NCells(); i++ {
		c, err := root.GetCell(i)
		if err != nil {
			b.FreeMemNode(root)
			return err
		}
		oldCells = append(oldCells, c)
	}
	if err := b.FreeMemNode(root); err != nil {
		return err
	}

	// a. Allocate a new child node with the root's current type; copy
	// every cell from the root into it in order.
	newChildPage, err := b.NewNode(rootType)
	if err != nil {
		return err
	}
	newChild, err := b.GetNodeByPage(newChildPage)
	if err != nil {
		return err
	}
	for i, c := range oldCells {
		if err := newChild.InsertCell(uint16(i), c); err != nil {
			b.FreeMemNode(newChild)
			return err
		}
	}
	// b. If the root was internal, copy right_page to the new child.
	if rootType.IsInternal() {
		newChild.SetRightPage(rootRightPage)
	}
	// c. Write and release the new child; the root is about to be
	// reinitialized in place, so there is nothing to write back to it
	// in its old form.
	if err := b.WriteNode(newChild); err != nil {
		b.FreeMemNode(newChild)
		return err
	}
	if err := b.FreeMemNode(newChild); err != nil {
		return err
	}

	// d. Re-initialize the root in place as an internal node of the
	// matching family.
	newRootType := InternalIndex
	if rootType.IsTable() {
		newRootType = InternalTable
	}
	if err := b.InitEmptyNode(nroot, newRootType); err != nil {
		return err
	}

	// e. Re-open the root, set right_page to the new child's page
	// number, write, release.
	root2, err := b.GetNodeByPage(nroot)
	if err != nil {
		return err
	}
	root2.SetRightPage(newChildPage)
	if err := b.WriteNode(root2); err != nil {
		b.FreeMemNode(root2)
		return err
	}
	if err := b.FreeMemNode(root2); err != nil {
		return err
	}

	b.log.WithFields(logrus.Fields{"root": nroot, "child": newChildPage}).Debug("root split")

	// f. Split the new child, promoting its median into the (now
	// internal, empty) root.
	if _, _, err := b.split(nroot, newChildPage, 0); err != nil {
		return err
	}

	// g. Finally delegate the caller's cell insertion.
	return b.insertNonFull(nroot, cell)
}

// insertNonFull inserts cell into the subtree rooted at npage, which
// the caller guarantees is not itself the overflowing root (§4.2.6
// step 3).
func (b *BTree) insertNonFull(npage uint32, cell *BTreeCell) error {
	node, err := b.GetNodeByPage(npage)
	if err != nil {
		return err
	}

	if !node.Type().IsInternal() {
		pos, _ := node.findInsertPosition(cell.Key())
		if pos < node.NCells() {
			existing, err := node.GetCell(pos)
			if err != nil {
				b.FreeMemNode(node)
				return err
			}
			if existing.Key() == cell.Key() {
				b.FreeMemNode(node)
				return chidberr.ErrDuplicate
			}
		}
		if err := node.InsertCell(pos, cell); err != nil {
			b.FreeMemNode(node)
			return err
		}
		if err := b.WriteNode(node); err != nil {
			b.FreeMemNode(node)
			return err
		}
		return b.FreeMemNode(node)
	}

	pos, _ := node.findInsertPosition(cell.Key())
	var childPage uint32
	if pos < node.NCells() {
		c, err := node.GetCell(pos)
		if err != nil {
			b.FreeMemNode(node)
			return err
		}
		if node.Type() == InternalIndex && c.Key() == cell.Key() {
			b.FreeMemNode(node)
			return chidberr.ErrDuplicate
		}
		childPage = c.ChildPage()
	} else {
		childPage = node.RightPage()
	}
	if err := b.FreeMemNode(node); err != nil {
		return err
	}

	child, err := b.GetNodeByPage(childPage)
	if err != nil {
		return err
	}
	childHasRoom := child.hasRoomFor(cell.Size())
	if err := b.FreeMemNode(child); err != nil {
		return err
	}

	if !childHasRoom {
		newLowerPage, medianKey, err := b.split(npage, childPage, pos)
		if err != nil {
			return err
		}
		if node.Type() == InternalIndex && cell.Key() == medianKey {
			return chidberr.ErrDuplicate
		}
		if cell.Key() <= medianKey {
			childPage = newLowerPage
		}
	}

	return b.insertNonFull(childPage, cell)
}

// split moves the lower half of the node at childPage into a freshly
// allocated sibling M, promotes the median key into the node at
// parentPage at position parentNCell, and returns M's page number
// together with the promoted median key (§4.2.7).
func (b *BTree) split(parentPage, childPage uint32, parentNCell uint16) (uint32, uint32, error) {
	child, err := b.GetNodeByPage(childPage)
	if err != nil {
		return 0, 0, err
	}

	m := child.NCells() / 2
	medianCell, err := child.GetCell(m)
	if err != nil {
		b.FreeMemNode(child)
		return 0, 0, err
	}
	medianKey := medianCell.Key()
	medianKeyPk := medianCell.KeyPk()
	medianChildPage := medianCell.ChildPage()
	childType := child.Type()
	childRightPage := child.RightPage()
	isTableLeaf := childType == LeafTable

	upper := m
	if isTableLeaf {
		upper = m + 1
	}
	var lowerCells []*BTreeCell
	for i := uint16(0); i < upper; i++ {
		c, err := child.GetCell(i)
		if err != nil {
			b.FreeMemNode(child)
			return 0, 0, err
		}
		lowerCells = append(lowerCells, c)
	}

	remainderStart := m + 1
	var remainingCells []*BTreeCell
	for i := remainderStart; i < child.NCells(); i++ {
		c, err := child.GetCell(i)
		if err != nil {
			b.FreeMemNode(child)
			return 0, 0, err
		}
		remainingCells = append(remainingCells, c)
	}

	if err := b.FreeMemNode(child); err != nil {
		return 0, 0, err
	}

	// Allocate M and move the lower half into it.
	mPage, err := b.NewNode(childType)
	if err != nil {
		return 0, 0, err
	}
	mNode, err := b.GetNodeByPage(mPage)
	if err != nil {
		return 0, 0, err
	}
	for i, c := range lowerCells {
		if err := mNode.InsertCell(uint16(i), c); err != nil {
			b.FreeMemNode(mNode)
			return 0, 0, err
		}
	}
	if childType.IsInternal() {
		mNode.SetRightPage(medianChildPage)
	}
	if err := b.WriteNode(mNode); err != nil {
		b.FreeMemNode(mNode)
		return 0, 0, err
	}
	if err := b.FreeMemNode(mNode); err != nil {
		return 0, 0, err
	}

	// Compact child in place from a freshly reinitialized node.
	if err := b.InitEmptyNode(childPage, childType); err != nil {
		return 0, 0, err
	}
	newChild, err := b.GetNodeByPage(childPage)
	if err != nil {
		return 0, 0, err
	}
	if childType.IsInternal() {
		newChild.SetRightPage(childRightPage)
	}
	for i, c := range remainingCells {
		if err := newChild.InsertCell(uint16(i), c); err != nil {
			b.FreeMemNode(newChild)
			return 0, 0, err
		}
	}
	if err := b.WriteNode(newChild); err != nil {
		b.FreeMemNode(newChild)
		return 0, 0, err
	}
	if err := b.FreeMemNode(newChild); err != nil {
		return 0, 0, err
	}

	// Insert the promoted cell into the parent.
	parent, err := b.GetNodeByPage(parentPage)
	if err != nil {
		return 0, 0, err
	}
	var promoted *BTreeCell
	if parent.Type() == InternalTable {
		promoted = NewTableInternalCell(mPage, medianKey)
	} else {
		promoted = NewIndexInternalCell(mPage, medianKey, medianKeyPk)
	}
	if err := parent.InsertCell(parentNCell, promoted); err != nil {
		b.FreeMemNode(parent)
		return 0, 0, err
	}
	if err := b.WriteNode(parent); err != nil {
		b.FreeMemNode(parent)
		return 0, 0, err
	}
	if err := b.FreeMemNode(parent); err != nil {
		return 0, 0, err
	}

	b.log.WithFields(logrus.Fields{
		"parent": parentPage, "child": childPage, "new_sibling": mPage, "median": medianKey,
	}).Debug("split node")

	return mPage, medianKey, nil
}
