package chidb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTable inserts rows as (key, record-of-fields) into root via a
// write cursor, returning after every insert is committed.
func seedTable(t *testing.T, bt *BTree, root uint32, rows [][2]interface{}) {
	t.Helper()
	for _, row := range rows {
		key := row[0].(uint32)
		fields := row[1].([]*Field)
		cur := NewCursor(bt, root, CursorWrite, false)
		require.Nil(t, cur.InsertRecord(key, NewRecord(fields...)))
	}
}

func TestProgramScenarioSixTwoRowScan(t *testing.T) {
	bt := openBtree(t)
	defer bt.Close()

	root, err := bt.CreateTable()
	require.Nil(t, err)

	seedTable(t, bt, root, [][2]interface{}{
		{uint32(10), []*Field{NewInt32Field(10), NewTextField("a")}},
		{uint32(20), []*Field{NewInt32Field(20), NewTextField("b")}},
	})

	program := []Instruction{
		{Op: OpInteger, P1: int32(root), P2: 0},
		{Op: OpOpenRead, P1: 0, P2: 0, P3: 1},
		{Op: OpRewind, P1: 0, P2: 5},
		{Op: OpColumn, P1: 0, P2: 1, P3: 1},
		{Op: OpResultRow, P1: 1, P2: 1},
		{Op: OpNext, P1: 0, P2: 3},
		{Op: OpHalt, P1: 0, P2: 0},
	}

	p := NewProgram(bt, program)
	rows, err := p.Run()
	require.Nil(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0][0])
	assert.Equal(t, "b", rows[1][0])
}

func TestProgramResultRowWithMultipleColumns(t *testing.T) {
	bt := openBtree(t)
	defer bt.Close()

	root, err := bt.CreateTable()
	require.Nil(t, err)

	seedTable(t, bt, root, [][2]interface{}{
		{uint32(1), []*Field{NewInt32Field(1), NewTextField("x")}},
	})

	program := []Instruction{
		{Op: OpInteger, P1: int32(root), P2: 0},
		{Op: OpOpenRead, P1: 0, P2: 0, P3: 1},
		{Op: OpRewind, P1: 0, P2: 6},
		{Op: OpKey, P1: 0, P2: 1},
		{Op: OpColumn, P1: 0, P2: 0, P3: 2},
		{Op: OpColumn, P1: 0, P2: 1, P3: 3},
		{Op: OpResultRow, P1: 1, P2: 3},
		{Op: OpNext, P1: 0, P2: 3},
		{Op: OpHalt, P1: 0, P2: 0},
	}

	p := NewProgram(bt, program)
	rows, err := p.Run()
	require.Nil(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int32(1), rows[0][0])
	assert.Equal(t, int32(1), rows[0][1])
	assert.Equal(t, "x", rows[0][2])
}

func TestProgramHaltWithNonZeroStatusIsError(t *testing.T) {
	bt := openBtree(t)
	defer bt.Close()

	program := []Instruction{
		{Op: OpHalt, P1: 1, P2: 0},
	}
	p := NewProgram(bt, program)
	_, err := p.Run()
	assert.Error(t, err)
}

func TestProgramCreateTableAndInsert(t *testing.T) {
	bt := openBtree(t)
	defer bt.Close()

	program := []Instruction{
		{Op: OpCreateTable, P1: 0},
		{Op: OpOpenWrite, P1: 0, P2: 0, P3: 1},
		{Op: OpInteger, P1: 42, P2: 1},
		{Op: OpString, P2: 2, P4: "hello"},
		{Op: OpMakeRecord, P1: 1, P2: 2, P3: 3},
		{Op: OpInteger, P1: 7, P2: 4},
		{Op: OpInsert, P1: 0, P2: 3, P3: 4},
		{Op: OpClose, P1: 0},
		{Op: OpHalt, P1: 0},
	}
	p := NewProgram(bt, program)
	_, err := p.Run()
	require.Nil(t, err)

	root := uint32(p.regs[0].Data.(int32))
	data, err := bt.Find(root, 7)
	require.Nil(t, err)

	record, err := ParseRecord(data)
	require.Nil(t, err)
	require.Len(t, record.Fields, 2)
	assert.Equal(t, int32(42), record.Fields[0].Data)
	assert.Equal(t, "hello", record.Fields[1].Data)
}

func TestProgramEqJumpsOnMatch(t *testing.T) {
	bt := openBtree(t)
	defer bt.Close()

	program := []Instruction{
		{Op: OpInteger, P1: 5, P2: 0},
		{Op: OpInteger, P1: 5, P2: 1},
		{Op: OpEq, P1: 0, P2: 5, P3: 1},
		{Op: OpInteger, P1: 0, P2: 2},
		{Op: OpHalt, P1: 0},
		{Op: OpInteger, P1: 1, P2: 2},
		{Op: OpHalt, P1: 0},
	}
	p := NewProgram(bt, program)
	_, err := p.Run()
	require.Nil(t, err)
	assert.Equal(t, int32(1), p.regs[2].Data)
}

func TestProgramIdxInsertAndIdxGe(t *testing.T) {
	bt := openBtree(t)
	defer bt.Close()

	idxRoot, err := bt.CreateIndex()
	require.Nil(t, err)

	require.Nil(t, bt.InsertInIndex(idxRoot, 5, 100))
	require.Nil(t, bt.InsertInIndex(idxRoot, 15, 200))

	program := []Instruction{
		{Op: OpInteger, P1: int32(idxRoot), P2: 0},
		{Op: OpOpenRead, P1: 0, P2: 0, P3: 0},
		{Op: OpInteger, P1: 10, P2: 1},
		{Op: OpIdxGe, P1: 0, P2: 5, P3: 1},
		{Op: OpIdxKey, P1: 0, P2: 2},
		{Op: OpResultRow, P1: 2, P2: 1},
		{Op: OpHalt, P1: 0},
	}
	p := NewProgram(bt, program)
	rows, err := p.Run()
	require.Nil(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int32(200), rows[0][0])
}
