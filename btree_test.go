package chidb

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msAlcantara/chidb/chidberr"
)

func TestBTreeFirstNodePageLeafTable(t *testing.T) {
	btree := openBtree(t)
	defer btree.Close()

	node, err := btree.GetNodeByPage(1)
	require.Nil(t, err, "Expected nil error to get first node page")
	defer btree.FreeMemNode(node)

	assert.Equal(t, LeafTable, node.Type())
}

func TestCreateNewNode(t *testing.T) {
	btree := openBtree(t)
	defer btree.Close()

	npage, err := btree.NewNode(InternalTable)
	require.Nil(t, err, "Expected nil error to create new node")
	assert.Equal(t, uint32(2), npage, "Expected new node to land on page 2")

	node, err := btree.GetNodeByPage(npage)
	require.Nil(t, err, "Expected nil error to get new node created")
	defer btree.FreeMemNode(node)

	assert.Equal(t, InternalTable, node.Type())
	assert.Equal(t, uint16(0), node.NCells())
	assert.Equal(t, uint32(0), node.RightPage())
}

func TestBTreeOpen(t *testing.T) {
	invalidDb, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)
	_, err = invalidDb.WriteString("Invalid Header")
	require.Nil(t, err)

	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)

	testcases := []struct {
		name    string
		db      string
		wantErr error
	}{
		{name: "TestOpenEmptyFile", db: db.Name()},
		{name: "TestOpenFile", db: db.Name()},
		{name: "TestOpenInvalidFile", db: invalidDb.Name(), wantErr: chidberr.ErrCorruptHeader},
	}

	for _, tt := range testcases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.db)
			if tt.wantErr == nil {
				assert.Nil(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

// Scenario 1 of §8: opening a nonexistent file yields a 1024-byte file
// with a valid magic prefix, the default page size recorded at 0x10,
// and an empty table-leaf node immediately after the header.
func TestOpenNonexistentFileLayout(t *testing.T) {
	path := tempDBPath(t)

	btree, err := Open(path)
	require.Nil(t, err)
	defer btree.Close()

	raw, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Equal(t, int(DefaultPageSize), len(raw))
	assert.True(t, bytes.Equal(raw[0:16], MagicBytes))
	assert.Equal(t, []byte{0x04, 0x00}, raw[0x10:0x12])
	assert.Equal(t, []byte{0x0D, 0x00, 0x08, 0x04, 0x00, 0x00, 0x00}, raw[100:107])
}

func TestOpenRejectsBadPageSizeLiteral(t *testing.T) {
	path := tempDBPath(t)
	header, err := DefaultFileHeader(DefaultPageSize).Bytes()
	require.Nil(t, err)
	raw := make([]byte, 1024)
	copy(raw, header)
	raw[0x10], raw[0x11] = 0x00, 0x03
	require.Nil(t, os.WriteFile(path, raw, 0o644))

	_, err = Open(path)
	assert.ErrorIs(t, err, chidberr.ErrCorruptHeader)
}

// Scenario 3 of §8: insert then find returns the payload byte-for-byte.
func TestInsertFindRoundTrip(t *testing.T) {
	btree := openBtree(t)
	defer btree.Close()

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.Nil(t, btree.InsertInTable(1, 42, data))

	found, err := btree.Find(1, 42)
	require.Nil(t, err)
	assert.Equal(t, data, found)
}

func TestFindMissingKeyReturnsNotFound(t *testing.T) {
	btree := openBtree(t)
	defer btree.Close()

	require.Nil(t, btree.InsertInTable(1, 1, []byte("a")))

	_, err := btree.Find(1, 999)
	assert.ErrorIs(t, err, chidberr.ErrNotFound)
}

// Scenario 4 of §8: inserting enough rows to overflow the root leaf
// forces a root split; the root becomes table-internal with a
// populated right_page, and every previously inserted key is still
// findable afterward.
func TestInsertManyCausesRootSplit(t *testing.T) {
	btree := openBtree(t)
	defer btree.Close()

	const n = 200
	for i := uint32(1); i <= n; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, 16)
		require.Nil(t, btree.InsertInTable(1, i, payload), "insert %d", i)
	}

	root, err := btree.GetNodeByPage(1)
	require.Nil(t, err)
	defer btree.FreeMemNode(root)

	assert.Equal(t, InternalTable, root.Type())
	assert.GreaterOrEqual(t, root.NCells(), uint16(1))
	assert.NotEqual(t, uint32(0), root.RightPage())

	for i := uint32(1); i <= n; i++ {
		want := bytes.Repeat([]byte{byte(i)}, 16)
		got, err := btree.Find(1, i)
		require.Nil(t, err, "find %d", i)
		assert.Equal(t, want, got, "payload for key %d", i)
	}
}

// Scenario 5 of §8: duplicate insert of the same key fails, and the
// first row remains retrievable.
func TestInsertDuplicateKeyRejected(t *testing.T) {
	btree := openBtree(t)
	defer btree.Close()

	require.Nil(t, btree.InsertInTable(1, 7, []byte("first")))
	err := btree.InsertInTable(1, 7, []byte("second"))
	assert.ErrorIs(t, err, chidberr.ErrDuplicate)

	got, err := btree.Find(1, 7)
	require.Nil(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestInsertInIndexDuplicateKeyIdxRejected(t *testing.T) {
	btree := openBtree(t)
	defer btree.Close()

	indexRoot, err := btree.CreateIndex()
	require.Nil(t, err)

	require.Nil(t, btree.InsertInIndex(indexRoot, 5, 100))
	err = btree.InsertInIndex(indexRoot, 5, 200)
	assert.ErrorIs(t, err, chidberr.ErrDuplicate)
}

// The root page number must never change across splits.
func TestRootPageIdentityPreservedAcrossSplits(t *testing.T) {
	btree := openBtree(t)
	defer btree.Close()

	for i := uint32(1); i <= 300; i++ {
		require.Nil(t, btree.InsertInTable(1, i, bytes.Repeat([]byte{0xAB}, 32)))
	}

	node, err := btree.GetNodeByPage(1)
	require.Nil(t, err)
	defer btree.FreeMemNode(node)
	assert.Equal(t, uint32(1), node.PageNumber())
}

func openBtree(tb testing.TB) *BTree {
	db, err := os.CreateTemp(os.TempDir(), tb.Name())
	require.Nil(tb, err)

	btree, err := Open(db.Name())
	require.Nil(tb, err)
	return btree
}

func tempDBPath(tb testing.TB) string {
	f, err := os.CreateTemp(os.TempDir(), tb.Name())
	require.Nil(tb, err)
	path := f.Name()
	require.Nil(tb, f.Close())
	require.Nil(tb, os.Remove(path))
	return path
}
