package chidb

import (
	"fmt"

	"github.com/msAlcantara/chidb/chidberr"
)

// CursorMode distinguishes a cursor opened for reading from one opened
// for writing (OpenRead vs OpenWrite in §4.3).
type CursorMode int

const (
	CursorRead CursorMode = iota
	CursorWrite
)

// cursorFrame is one level of a cursor's path from the tree root to
// its current leaf position. For an internal frame, idx is the index
// of the child last descended into: idx < page.NCells() means that
// child came from cell(idx); idx == page.NCells() means it came from
// right_page. For the leaf frame, idx is the current cell index.
type cursorFrame struct {
	page *BTreeNode
	idx  uint16
}

// Cursor tracks a position within a B-tree: the root page, a mode, and
// the path of nodes from root to the current leaf. This format has no
// leaf sibling pointers, so Next/Prev must climb and redescend through
// the path rather than follow a linked list of leaves.
type Cursor struct {
	bt      *BTree
	root    uint32
	mode    CursorMode
	isIndex bool
	path    []cursorFrame
	valid   bool
}

// NewCursor opens a cursor over the B-tree rooted at root. It does not
// itself position the cursor; call Rewind or one of the Seek family
// first.
func NewCursor(bt *BTree, root uint32, mode CursorMode, isIndex bool) *Cursor {
	return &Cursor{bt: bt, root: root, mode: mode, isIndex: isIndex}
}

// Close releases every page acquired along the cursor's path.
func (c *Cursor) Close() error {
	return c.closePath()
}

func (c *Cursor) closePath() error {
	for _, f := range c.path {
		if err := c.bt.FreeMemNode(f.page); err != nil {
			return err
		}
	}
	c.path = nil
	return nil
}

// childForIdx returns the page backing child idx of an internal node,
// where idx == node.NCells() denotes right_page.
func childForIdx(node *BTreeNode, idx uint16) (uint32, error) {
	if idx < node.NCells() {
		cell, err := node.GetCell(idx)
		if err != nil {
			return 0, err
		}
		return cell.ChildPage(), nil
	}
	return node.RightPage(), nil
}

// descendLeftmost pushes frames from childPage down to its leftmost
// leaf, replacing any existing frames after parentIdx.
func (c *Cursor) descendLeftmost(parentIdx int, childPage uint32) error {
	for i := parentIdx + 1; i < len(c.path); i++ {
		c.bt.FreeMemNode(c.path[i].page)
	}
	c.path = c.path[:parentIdx+1]

	node, err := c.bt.GetNodeByPage(childPage)
	if err != nil {
		return err
	}
	for {
		c.path = append(c.path, cursorFrame{page: node, idx: 0})
		if !node.Type().IsInternal() {
			return nil
		}
		next, err := childForIdx(node, 0)
		if err != nil {
			return err
		}
		node, err = c.bt.GetNodeByPage(next)
		if err != nil {
			return err
		}
	}
}

// descendRightmost pushes frames from childPage down to its rightmost
// leaf, replacing any existing frames after parentIdx.
func (c *Cursor) descendRightmost(parentIdx int, childPage uint32) error {
	for i := parentIdx + 1; i < len(c.path); i++ {
		c.bt.FreeMemNode(c.path[i].page)
	}
	c.path = c.path[:parentIdx+1]

	node, err := c.bt.GetNodeByPage(childPage)
	if err != nil {
		return err
	}
	for {
		idx := uint16(0)
		if node.Type().IsInternal() {
			idx = node.NCells()
		}
		c.path = append(c.path, cursorFrame{page: node, idx: idx})
		if !node.Type().IsInternal() {
			return nil
		}
		node, err = c.bt.GetNodeByPage(node.RightPage())
		if err != nil {
			return err
		}
	}
}

// Rewind positions the cursor at the tree's first (leftmost) entry. It
// reports false if the tree is empty.
func (c *Cursor) Rewind() (bool, error) {
	if err := c.closePath(); err != nil {
		return false, err
	}
	if err := c.descendLeftmost(-1, c.root); err != nil {
		return false, err
	}
	leaf := c.path[len(c.path)-1]
	if leaf.page.NCells() == 0 {
		c.valid = false
		return false, nil
	}
	c.valid = true
	return true, nil
}

// Next advances to the following entry in key order, reporting false
// once the tree is exhausted.
func (c *Cursor) Next() (bool, error) {
	if len(c.path) == 0 {
		return false, fmt.Errorf("%w: cursor not positioned", chidberr.ErrMisuse)
	}

	leaf := len(c.path) - 1
	c.path[leaf].idx++
	if c.path[leaf].idx < c.path[leaf].page.NCells() {
		c.valid = true
		return true, nil
	}

	for i := leaf; i > 0; i-- {
		parent := i - 1
		c.path[parent].idx++
		if c.path[parent].idx > c.path[parent].page.NCells() {
			continue
		}
		childPage, err := childForIdx(c.path[parent].page, c.path[parent].idx)
		if err != nil {
			return false, err
		}
		if err := c.descendLeftmost(parent, childPage); err != nil {
			return false, err
		}
		if c.path[len(c.path)-1].page.NCells() > 0 {
			c.path[len(c.path)-1].idx = 0
			c.valid = true
			return true, nil
		}
		return c.Next()
	}

	c.valid = false
	return false, nil
}

// Prev retreats to the preceding entry in key order, reporting false
// once the start of the tree is reached.
func (c *Cursor) Prev() (bool, error) {
	if len(c.path) == 0 {
		return false, fmt.Errorf("%w: cursor not positioned", chidberr.ErrMisuse)
	}

	leaf := len(c.path) - 1
	if c.path[leaf].idx > 0 {
		c.path[leaf].idx--
		c.valid = true
		return true, nil
	}

	for i := leaf; i > 0; i-- {
		parent := i - 1
		if c.path[parent].idx == 0 {
			continue
		}
		c.path[parent].idx--
		childPage, err := childForIdx(c.path[parent].page, c.path[parent].idx)
		if err != nil {
			return false, err
		}
		if err := c.descendRightmost(parent, childPage); err != nil {
			return false, err
		}
		if c.path[len(c.path)-1].page.NCells() > 0 {
			c.path[len(c.path)-1].idx = c.path[len(c.path)-1].page.NCells() - 1
			c.valid = true
			return true, nil
		}
		return c.Prev()
	}

	c.valid = false
	return false, nil
}

// seekDescend walks the tree from the root choosing, at every level,
// the first child whose subtree may contain key (spec.md's
// key <= cell.key descent rule), leaving the cursor positioned at the
// leaf's first cell with key <= cell.key (or past the last cell if
// every key in the leaf is smaller).
func (c *Cursor) seekDescend(key uint32) error {
	if err := c.closePath(); err != nil {
		return err
	}

	node, err := c.bt.GetNodeByPage(c.root)
	if err != nil {
		return err
	}

	var path []cursorFrame
	for {
		pos, err := node.findInsertPosition(key)
		if err != nil {
			return err
		}
		path = append(path, cursorFrame{page: node, idx: pos})
		if !node.Type().IsInternal() {
			break
		}
		childPage, err := childForIdx(node, pos)
		if err != nil {
			return err
		}
		node, err = c.bt.GetNodeByPage(childPage)
		if err != nil {
			return err
		}
	}
	c.path = path
	return nil
}

// SeekEq positions the cursor at the cell with the given key,
// reporting false if no such cell exists.
func (c *Cursor) SeekEq(key uint32) (bool, error) {
	if err := c.seekDescend(key); err != nil {
		return false, err
	}
	leaf := c.path[len(c.path)-1]
	if leaf.idx >= leaf.page.NCells() {
		c.valid = false
		return false, nil
	}
	cell, err := leaf.page.GetCell(leaf.idx)
	if err != nil {
		return false, err
	}
	c.valid = cell.Key() == key
	return c.valid, nil
}

// SeekGe positions the cursor at the first cell with key >= target.
func (c *Cursor) SeekGe(target uint32) (bool, error) {
	if err := c.seekDescend(target); err != nil {
		return false, err
	}
	leaf := c.path[len(c.path)-1]
	c.valid = leaf.idx < leaf.page.NCells()
	return c.valid, nil
}

// SeekGt positions the cursor at the first cell with key > target.
// Relies on table/index keys being unique within a tree: after
// seekDescend the candidate cell's key is either already > target, or
// exactly == target, in which case its unique successor is one Next
// away.
func (c *Cursor) SeekGt(target uint32) (bool, error) {
	if err := c.seekDescend(target); err != nil {
		return false, err
	}
	leaf := c.path[len(c.path)-1]
	if leaf.idx >= leaf.page.NCells() {
		c.valid = false
		return false, nil
	}
	cell, err := leaf.page.GetCell(leaf.idx)
	if err != nil {
		return false, err
	}
	if cell.Key() > target {
		c.valid = true
		return true, nil
	}
	return c.Next()
}

// SeekLt positions the cursor at the last cell with key < target.
func (c *Cursor) SeekLt(target uint32) (bool, error) {
	if err := c.seekDescend(target); err != nil {
		return false, err
	}
	leafIdx := len(c.path) - 1
	if c.path[leafIdx].idx == 0 {
		c.path[leafIdx].idx = 0
		return c.Prev()
	}
	c.path[leafIdx].idx--
	c.valid = true
	return true, nil
}

// SeekLe positions the cursor at the last cell with key <= target.
func (c *Cursor) SeekLe(target uint32) (bool, error) {
	if err := c.seekDescend(target); err != nil {
		return false, err
	}
	leafIdx := len(c.path) - 1
	leaf := c.path[leafIdx]
	if leaf.idx < leaf.page.NCells() {
		cell, err := leaf.page.GetCell(leaf.idx)
		if err != nil {
			return false, err
		}
		if cell.Key() == target {
			c.valid = true
			return true, nil
		}
	}
	if leaf.idx == 0 {
		c.path[leafIdx].idx = 0
		return c.Prev()
	}
	c.path[leafIdx].idx--
	c.valid = true
	return true, nil
}

// Current returns the cell at the cursor's current position.
func (c *Cursor) Current() (*BTreeCell, error) {
	if !c.valid || len(c.path) == 0 {
		return nil, fmt.Errorf("%w: cursor is not positioned at a valid entry", chidberr.ErrMisuse)
	}
	leaf := c.path[len(c.path)-1]
	return leaf.page.GetCell(leaf.idx)
}

// InsertRecord inserts record under key via the underlying table
// B-tree. The cursor's path is invalidated since the insert may
// restructure the tree; callers must reposition before further
// navigation.
func (c *Cursor) InsertRecord(key uint32, record *Record) error {
	if c.mode != CursorWrite {
		return fmt.Errorf("%w: insert requires a write cursor", chidberr.ErrMisuse)
	}
	data, err := record.Bytes()
	if err != nil {
		return err
	}
	if err := c.bt.InsertInTable(c.root, key, data); err != nil {
		return err
	}
	return c.invalidate()
}

// InsertIndex inserts (keyIdx, keyPk) via the underlying index B-tree.
func (c *Cursor) InsertIndex(keyIdx, keyPk uint32) error {
	if c.mode != CursorWrite {
		return fmt.Errorf("%w: insert requires a write cursor", chidberr.ErrMisuse)
	}
	if err := c.bt.InsertInIndex(c.root, keyIdx, keyPk); err != nil {
		return err
	}
	return c.invalidate()
}

func (c *Cursor) invalidate() error {
	c.valid = false
	return c.closePath()
}
