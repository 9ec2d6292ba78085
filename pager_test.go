package chidb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msAlcantara/chidb/chidberr"
)

func TestPageWriteReadHeader(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)

	pager, err := OpenPager(db.Name())
	require.Nil(t, err)
	defer pager.Close()

	header, err := DefaultFileHeader(DefaultPageSize).Bytes()
	require.Nil(t, err)

	err = pager.WriteHeader(header)
	require.Nil(t, err, "Expected nil error to write header: %v", err)

	readHeader, err := pager.ReadHeader()
	require.Nil(t, err)

	assert.Equal(t, HeaderSize, len(readHeader), "Expected equals header size")
	assert.Equal(t, header, readHeader, "Expected equals headers after write and read")
}

func TestAllocateAndReadWritePage(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)

	pager, err := OpenPager(db.Name(), WithPageSize(1024))
	require.Nil(t, err)
	defer pager.Close()

	npage, err := pager.AllocatePage()
	require.Nil(t, err)
	assert.Equal(t, uint32(1), npage)

	page, err := pager.ReadPage(npage)
	require.Nil(t, err)
	assert.Equal(t, HeaderSize, int(page.offset), "page 1 reads start after the file header")
	assert.Equal(t, 1024-HeaderSize, page.Len())

	data := page.Read()
	data[0] = 0x0D
	require.Nil(t, page.Write(data))
	require.Nil(t, pager.WritePage(page))

	reread, err := pager.ReadPage(npage)
	require.Nil(t, err)
	assert.Equal(t, byte(0x0D), reread.Read()[0])
}

func TestReadPageOutOfBounds(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)

	pager, err := OpenPager(db.Name())
	require.Nil(t, err)
	defer pager.Close()

	_, err = pager.ReadPage(1)
	assert.ErrorIs(t, err, chidberr.ErrPageNo)
}

func TestSetPageSizeRejectsInvalidSize(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)

	pager, err := OpenPager(db.Name())
	require.Nil(t, err)
	defer pager.Close()

	assert.Error(t, pager.SetPageSize(3))
	assert.Nil(t, pager.SetPageSize(4096))
}
