package chidb

import "fmt"

// Opcode is a DBM instruction's operation code. Opcodes form a closed
// enumeration, dispatched through a static array rather than a switch
// or a map — see dbm.go's dispatch table.
type Opcode uint8

const (
	OpNoop Opcode = iota
	OpOpenRead
	OpOpenWrite
	OpClose
	OpRewind
	OpNext
	OpPrev
	OpSeek
	OpSeekGt
	OpSeekGe
	OpColumn
	OpKey
	OpInteger
	OpString
	OpNull
	OpResultRow
	OpMakeRecord
	OpInsert
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIdxGt
	OpIdxGe
	OpIdxLt
	OpIdxLe
	OpIdxKey
	OpIdxInsert
	OpCreateTable
	OpCreateIndex
	OpCopy
	OpSCopy
	OpHalt

	nOpcode // sentinel: count of opcodes, sizes the dispatch table
)

func (o Opcode) String() string {
	switch o {
	case OpNoop:
		return "Noop"
	case OpOpenRead:
		return "OpenRead(cursor, pageReg, ncol)"
	case OpOpenWrite:
		return "OpenWrite(cursor, pageReg, ncol)"
	case OpClose:
		return "Close(cursor)"
	case OpRewind:
		return "Rewind(cursor, jmpIfEmpty)"
	case OpNext:
		return "Next(cursor, jmpIfMore)"
	case OpPrev:
		return "Prev(cursor, jmpIfMore)"
	case OpSeek:
		return "Seek(cursor, jmpIfMiss, keyReg)"
	case OpSeekGt:
		return "SeekGt(cursor, jmpIfMiss, keyReg)"
	case OpSeekGe:
		return "SeekGe(cursor, jmpIfMiss, keyReg)"
	case OpColumn:
		return "Column(cursor, col, destReg)"
	case OpKey:
		return "Key(cursor, destReg)"
	case OpInteger:
		return "Integer(value, destReg)"
	case OpString:
		return "String(_, destReg, _, value)"
	case OpNull:
		return "Null(_, destReg)"
	case OpResultRow:
		return "ResultRow(startReg, n)"
	case OpMakeRecord:
		return "MakeRecord(startReg, n, destReg)"
	case OpInsert:
		return "Insert(cursor, recordReg, keyReg)"
	case OpEq:
		return "Eq(p1, jmp, p3)"
	case OpNe:
		return "Ne(p1, jmp, p3)"
	case OpLt:
		return "Lt(p1, jmp, p3)"
	case OpLe:
		return "Le(p1, jmp, p3)"
	case OpGt:
		return "Gt(p1, jmp, p3)"
	case OpGe:
		return "Ge(p1, jmp, p3)"
	case OpIdxGt:
		return "IdxGt(cursor, jmpIfMiss, keyReg)"
	case OpIdxGe:
		return "IdxGe(cursor, jmpIfMiss, keyReg)"
	case OpIdxLt:
		return "IdxLt(cursor, jmpIfMiss, keyReg)"
	case OpIdxLe:
		return "IdxLe(cursor, jmpIfMiss, keyReg)"
	case OpIdxKey:
		return "IdxKey(cursor, destReg)"
	case OpIdxInsert:
		return "IdxInsert(cursor, keyIdxReg, keyPkReg)"
	case OpCreateTable:
		return "CreateTable(destReg)"
	case OpCreateIndex:
		return "CreateIndex(destReg)"
	case OpCopy:
		return "Copy(srcReg, destReg)"
	case OpSCopy:
		return "SCopy(srcReg, destReg)"
	case OpHalt:
		return "Halt(status, errExt)"
	}
	return fmt.Sprintf("Opcode(%d)", byte(o))
}

// Instruction is one DBM program step. P1..P3 are signed operands;
// their meaning is opcode-specific (see Opcode.String for the operand
// shape of each). P4 carries a string constant (OpString) or nothing.
type Instruction struct {
	Op Opcode
	P1 int32
	P2 int32
	P3 int32
	P4 string
}

// Status is a DBM handler's result, per spec.md §4.3.
type Status int

const (
	// StatusOK means the instruction completed normally; the driver
	// advances pc by 1 unless the handler jumped explicitly.
	StatusOK Status = iota

	// StatusRow means the instruction produced an output row
	// (ResultRow); the driver collects it and advances pc by 1.
	StatusRow

	// StatusDone means the program has finished executing (Halt with
	// a success code).
	StatusDone

	// StatusErr means the instruction failed; the accompanying error
	// explains why.
	StatusErr
)

// noJump is the handler return value meaning "advance pc by 1",
// distinguishing it from a deliberate jump to address 0.
const noJump = -1
