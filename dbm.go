package chidb

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/msAlcantara/chidb/chidberr"
)

// RegisterType tags the dynamic type held in a register.
type RegisterType int

const (
	RegUnspecified RegisterType = iota
	RegNull
	RegInt32
	RegString
	RegRecord
)

// Register is one slot of the DBM's sparse register file.
type Register struct {
	Typ  RegisterType
	Data interface{}
}

// Program is a loaded DBM program: a fixed instruction list, a sparse
// register file, and a cursor table, executed by a driver loop over a
// static opcode-indexed dispatch table (per spec.md §4.3 and §9's
// explicit "static array... preferred over dynamic maps" mandate).
type Program struct {
	bt           *BTree
	log          *logrus.Logger
	instructions []Instruction
	pc           int32
	regs         map[int32]*Register
	cursors      map[int32]*Cursor
	pendingRow   []interface{}
}

// NewProgram loads instructions for execution against bt.
func NewProgram(bt *BTree, instructions []Instruction) *Program {
	return &Program{
		bt:           bt,
		log:          discardLogger(),
		instructions: instructions,
		regs:         make(map[int32]*Register),
		cursors:      make(map[int32]*Cursor),
	}
}

// SetLogger attaches a structured logger used to trace instruction
// dispatch.
func (p *Program) SetLogger(log *logrus.Logger) { p.log = log }

func (p *Program) reg(i int32) *Register {
	r, ok := p.regs[i]
	if !ok {
		r = &Register{Typ: RegUnspecified}
		p.regs[i] = r
	}
	return r
}

// Run drives the program to completion (Halt, or falling off the end
// of the instruction list), returning every row yielded by ResultRow
// along the way. Execution is synchronous and single-threaded per
// spec.md §5: there is no background consumer, so rows are
// accumulated in memory rather than streamed over a channel.
func (p *Program) Run() ([][]interface{}, error) {
	var rows [][]interface{}

	for {
		if p.pc < 0 || int(p.pc) >= len(p.instructions) {
			return rows, nil
		}

		ins := &p.instructions[p.pc]
		handler := dispatch[ins.Op]
		if handler == nil {
			return rows, fmt.Errorf("%w: opcode %v has no dispatch entry", chidberr.ErrMisuse, ins.Op)
		}

		p.log.WithFields(logrus.Fields{"pc": p.pc, "op": ins.Op}).Trace("dispatch")

		status, jump, err := handler(p, ins)
		if err != nil {
			return rows, err
		}

		switch status {
		case StatusErr:
			return rows, fmt.Errorf("%w: instruction %d (%v) failed", chidberr.ErrMisuse, p.pc, ins.Op)
		case StatusDone:
			return rows, nil
		case StatusRow:
			rows = append(rows, p.pendingRow)
			p.pendingRow = nil
			p.pc++
		case StatusOK:
			if jump == noJump {
				p.pc++
			} else {
				p.pc = jump
			}
		}
	}
}

// opHandler executes one instruction, mirroring dynajoe-tinydb's
// step() int convention (0 falls through, >0 jumps, -1 errors) but
// adapted to spec.md's four named statuses instead of magic integers:
// the int result is only consulted on StatusOK, where noJump (-1)
// means "advance by 1" and any other value is the pc to jump to.
type opHandler func(p *Program, ins *Instruction) (Status, int32, error)

// dispatch is the static, opcode-indexed handler table. Opcodes are a
// closed enumeration (spec.md §9), so a plain array beats a map here.
var dispatch [nOpcode]opHandler

func init() {
	dispatch[OpNoop] = opNoop
	dispatch[OpOpenRead] = opOpenRead
	dispatch[OpOpenWrite] = opOpenWrite
	dispatch[OpClose] = opClose
	dispatch[OpRewind] = opRewind
	dispatch[OpNext] = opNext
	dispatch[OpPrev] = opPrev
	dispatch[OpSeek] = opSeek
	dispatch[OpSeekGt] = opSeekGt
	dispatch[OpSeekGe] = opSeekGe
	dispatch[OpColumn] = opColumn
	dispatch[OpKey] = opKey
	dispatch[OpInteger] = opInteger
	dispatch[OpString] = opString
	dispatch[OpNull] = opNull
	dispatch[OpResultRow] = opResultRow
	dispatch[OpMakeRecord] = opMakeRecord
	dispatch[OpInsert] = opInsert
	dispatch[OpEq] = opEq
	dispatch[OpNe] = opNe
	dispatch[OpLt] = opLt
	dispatch[OpLe] = opLe
	dispatch[OpGt] = opGt
	dispatch[OpGe] = opGe
	dispatch[OpIdxGt] = opIdxGt
	dispatch[OpIdxGe] = opIdxGe
	dispatch[OpIdxLt] = opIdxLt
	dispatch[OpIdxLe] = opIdxLe
	dispatch[OpIdxKey] = opIdxKey
	dispatch[OpIdxInsert] = opIdxInsert
	dispatch[OpCreateTable] = opCreateTable
	dispatch[OpCreateIndex] = opCreateIndex
	dispatch[OpCopy] = opCopy
	dispatch[OpSCopy] = opSCopy
	dispatch[OpHalt] = opHalt
}

func opNoop(p *Program, ins *Instruction) (Status, int32, error) {
	return StatusOK, noJump, nil
}

func opHalt(p *Program, ins *Instruction) (Status, int32, error) {
	if ins.P1 == 0 {
		return StatusDone, noJump, nil
	}
	return StatusErr, noJump, fmt.Errorf("%w: halted with status %d (ext %d)", chidberr.ErrMisuse, ins.P1, ins.P2)
}

func opInteger(p *Program, ins *Instruction) (Status, int32, error) {
	r := p.reg(ins.P2)
	r.Typ = RegInt32
	r.Data = ins.P1
	return StatusOK, noJump, nil
}

func opString(p *Program, ins *Instruction) (Status, int32, error) {
	r := p.reg(ins.P2)
	r.Typ = RegString
	r.Data = ins.P4
	return StatusOK, noJump, nil
}

func opNull(p *Program, ins *Instruction) (Status, int32, error) {
	r := p.reg(ins.P2)
	r.Typ = RegNull
	r.Data = nil
	return StatusOK, noJump, nil
}

func opCopy(p *Program, ins *Instruction) (Status, int32, error) {
	src := p.reg(ins.P1)
	dst := p.reg(ins.P2)
	dst.Typ = src.Typ
	if rec, ok := src.Data.(*Record); ok {
		cloned := *rec
		cloned.Fields = append([]*Field(nil), rec.Fields...)
		dst.Data = &cloned
	} else {
		dst.Data = src.Data
	}
	return StatusOK, noJump, nil
}

func opSCopy(p *Program, ins *Instruction) (Status, int32, error) {
	src := p.reg(ins.P1)
	dst := p.reg(ins.P2)
	dst.Typ = src.Typ
	dst.Data = src.Data
	return StatusOK, noJump, nil
}

func regAsKey(r *Register) (uint32, error) {
	v, ok := r.Data.(int32)
	if !ok {
		return 0, fmt.Errorf("%w: expected an integer register, got %v", chidberr.ErrMisuse, r.Typ)
	}
	return uint32(v), nil
}

func opOpenRead(p *Program, ins *Instruction) (Status, int32, error) {
	return openCursor(p, ins, CursorRead)
}

func opOpenWrite(p *Program, ins *Instruction) (Status, int32, error) {
	return openCursor(p, ins, CursorWrite)
}

func openCursor(p *Program, ins *Instruction, mode CursorMode) (Status, int32, error) {
	root, err := regAsKey(p.reg(ins.P2))
	if err != nil {
		return StatusErr, noJump, err
	}
	isIndex := ins.P3 == 0
	p.cursors[ins.P1] = NewCursor(p.bt, root, mode, isIndex)
	return StatusOK, noJump, nil
}

func opClose(p *Program, ins *Instruction) (Status, int32, error) {
	if cur, ok := p.cursors[ins.P1]; ok {
		if err := cur.Close(); err != nil {
			return StatusErr, noJump, err
		}
		delete(p.cursors, ins.P1)
	}
	return StatusOK, noJump, nil
}

func (p *Program) cursor(n int32) (*Cursor, error) {
	cur, ok := p.cursors[n]
	if !ok {
		return nil, fmt.Errorf("%w: cursor %d is not open", chidberr.ErrMisuse, n)
	}
	return cur, nil
}

func opRewind(p *Program, ins *Instruction) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	has, err := cur.Rewind()
	if err != nil {
		return StatusErr, noJump, err
	}
	if !has {
		return StatusOK, ins.P2, nil
	}
	return StatusOK, noJump, nil
}

func opNext(p *Program, ins *Instruction) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	has, err := cur.Next()
	if err != nil {
		return StatusErr, noJump, err
	}
	if has {
		return StatusOK, ins.P2, nil
	}
	return StatusOK, noJump, nil
}

func opPrev(p *Program, ins *Instruction) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	has, err := cur.Prev()
	if err != nil {
		return StatusErr, noJump, err
	}
	if has {
		return StatusOK, ins.P2, nil
	}
	return StatusOK, noJump, nil
}

func seekOp(p *Program, ins *Instruction, seek func(*Cursor, uint32) (bool, error)) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	key, err := regAsKey(p.reg(ins.P3))
	if err != nil {
		return StatusErr, noJump, err
	}
	has, err := seek(cur, key)
	if err != nil {
		return StatusErr, noJump, err
	}
	if !has {
		return StatusOK, ins.P2, nil
	}
	return StatusOK, noJump, nil
}

func opSeek(p *Program, ins *Instruction) (Status, int32, error) {
	return seekOp(p, ins, (*Cursor).SeekEq)
}

func opSeekGt(p *Program, ins *Instruction) (Status, int32, error) {
	return seekOp(p, ins, (*Cursor).SeekGt)
}

func opSeekGe(p *Program, ins *Instruction) (Status, int32, error) {
	return seekOp(p, ins, (*Cursor).SeekGe)
}

func opIdxGt(p *Program, ins *Instruction) (Status, int32, error) {
	return seekOp(p, ins, (*Cursor).SeekGt)
}

func opIdxGe(p *Program, ins *Instruction) (Status, int32, error) {
	return seekOp(p, ins, (*Cursor).SeekGe)
}

func opIdxLt(p *Program, ins *Instruction) (Status, int32, error) {
	return seekOp(p, ins, (*Cursor).SeekLt)
}

func opIdxLe(p *Program, ins *Instruction) (Status, int32, error) {
	return seekOp(p, ins, (*Cursor).SeekLe)
}

// fieldToRegister widens a decoded record field into its register
// representation: int8/int16/int32 all become RegInt32.
func fieldToRegister(f *Field) (RegisterType, interface{}) {
	switch v := f.Data.(type) {
	case nil:
		return RegNull, nil
	case int8:
		return RegInt32, int32(v)
	case int16:
		return RegInt32, int32(v)
	case int32:
		return RegInt32, v
	case string:
		return RegString, v
	}
	return RegUnspecified, nil
}

func opColumn(p *Program, ins *Instruction) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	cell, err := cur.Current()
	if err != nil {
		return StatusErr, noJump, err
	}
	record, err := ParseRecord(cell.Data())
	if err != nil {
		return StatusErr, noJump, err
	}
	if int(ins.P2) >= len(record.Fields) {
		return StatusErr, noJump, fmt.Errorf("%w: column %d out of range (record has %d fields)", chidberr.ErrMisuse, ins.P2, len(record.Fields))
	}

	r := p.reg(ins.P3)
	r.Typ, r.Data = fieldToRegister(record.Fields[ins.P2])
	return StatusOK, noJump, nil
}

func opKey(p *Program, ins *Instruction) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	cell, err := cur.Current()
	if err != nil {
		return StatusErr, noJump, err
	}
	r := p.reg(ins.P2)
	r.Typ = RegInt32
	r.Data = int32(cell.Key())
	return StatusOK, noJump, nil
}

// opIdxKey writes the index cursor's current entry's primary-key
// reference (keyPk) into the destination register: the natural
// analogue of Key for an index cursor is the pointer back to the
// indexed row, not the indexed value itself. Column does not read
// index entries (they carry no record); the row is reached with a
// subsequent table Seek using this register.
func opIdxKey(p *Program, ins *Instruction) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	cell, err := cur.Current()
	if err != nil {
		return StatusErr, noJump, err
	}
	r := p.reg(ins.P2)
	r.Typ = RegInt32
	r.Data = int32(cell.KeyPk())
	return StatusOK, noJump, nil
}

func opResultRow(p *Program, ins *Instruction) (Status, int32, error) {
	row := make([]interface{}, 0, ins.P2)
	for i := ins.P1; i < ins.P1+ins.P2; i++ {
		row = append(row, p.reg(i).Data)
	}
	p.pendingRow = row
	return StatusRow, noJump, nil
}

func opMakeRecord(p *Program, ins *Instruction) (Status, int32, error) {
	fields := make([]*Field, 0, ins.P2)
	for i := ins.P1; i < ins.P1+ins.P2; i++ {
		reg := p.reg(i)
		switch reg.Typ {
		case RegNull, RegUnspecified:
			fields = append(fields, NewNullField())
		case RegInt32:
			v, ok := reg.Data.(int32)
			if !ok {
				return StatusErr, noJump, fmt.Errorf("%w: register %d tagged int32 holds %T", chidberr.ErrMisuse, i, reg.Data)
			}
			fields = append(fields, NewInt32Field(v))
		case RegString:
			v, ok := reg.Data.(string)
			if !ok {
				return StatusErr, noJump, fmt.Errorf("%w: register %d tagged string holds %T", chidberr.ErrMisuse, i, reg.Data)
			}
			fields = append(fields, NewTextField(v))
		default:
			return StatusErr, noJump, fmt.Errorf("%w: register %d has unsupported type for MakeRecord", chidberr.ErrMisuse, i)
		}
	}

	dst := p.reg(ins.P3)
	dst.Typ = RegRecord
	dst.Data = NewRecord(fields...)
	return StatusOK, noJump, nil
}

func opInsert(p *Program, ins *Instruction) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	recReg := p.reg(ins.P2)
	record, ok := recReg.Data.(*Record)
	if !ok {
		return StatusErr, noJump, fmt.Errorf("%w: register %d does not hold a record", chidberr.ErrMisuse, ins.P2)
	}
	key, err := regAsKey(p.reg(ins.P3))
	if err != nil {
		return StatusErr, noJump, err
	}
	if err := cur.InsertRecord(key, record); err != nil {
		return StatusErr, noJump, err
	}
	return StatusOK, noJump, nil
}

func opIdxInsert(p *Program, ins *Instruction) (Status, int32, error) {
	cur, err := p.cursor(ins.P1)
	if err != nil {
		return StatusErr, noJump, err
	}
	keyIdx, err := regAsKey(p.reg(ins.P2))
	if err != nil {
		return StatusErr, noJump, err
	}
	keyPk, err := regAsKey(p.reg(ins.P3))
	if err != nil {
		return StatusErr, noJump, err
	}
	if err := cur.InsertIndex(keyIdx, keyPk); err != nil {
		return StatusErr, noJump, err
	}
	return StatusOK, noJump, nil
}

func opCreateTable(p *Program, ins *Instruction) (Status, int32, error) {
	root, err := p.bt.CreateTable()
	if err != nil {
		return StatusErr, noJump, err
	}
	r := p.reg(ins.P1)
	r.Typ = RegInt32
	r.Data = int32(root)
	return StatusOK, noJump, nil
}

func opCreateIndex(p *Program, ins *Instruction) (Status, int32, error) {
	root, err := p.bt.CreateIndex()
	if err != nil {
		return StatusErr, noJump, err
	}
	r := p.reg(ins.P1)
	r.Typ = RegInt32
	r.Data = int32(root)
	return StatusOK, noJump, nil
}

// compare reports whether a and b hold equal values, and whether a <
// b, for the two comparable register types. Mismatched or NULL
// operands compare unequal and not-less, matching dynajoe-tinydb's
// three-valued-ish simplification rather than full SQL NULL
// propagation (out of scope per spec.md's non-goals on expression
// evaluation).
func compare(a, b *Register) (eq bool, lt bool) {
	if a.Typ != b.Typ {
		return false, false
	}
	switch a.Typ {
	case RegInt32:
		av, aok := a.Data.(int32)
		bv, bok := b.Data.(int32)
		if !aok || !bok {
			return false, false
		}
		return av == bv, av < bv
	case RegString:
		av, aok := a.Data.(string)
		bv, bok := b.Data.(string)
		if !aok || !bok {
			return false, false
		}
		return av == bv, av < bv
	}
	return false, false
}

func compareOp(p *Program, ins *Instruction, test func(eq, lt bool) bool) (Status, int32, error) {
	eq, lt := compare(p.reg(ins.P1), p.reg(ins.P3))
	if test(eq, lt) {
		return StatusOK, ins.P2, nil
	}
	return StatusOK, noJump, nil
}

func opEq(p *Program, ins *Instruction) (Status, int32, error) {
	return compareOp(p, ins, func(eq, lt bool) bool { return eq })
}

func opNe(p *Program, ins *Instruction) (Status, int32, error) {
	return compareOp(p, ins, func(eq, lt bool) bool { return !eq })
}

func opLt(p *Program, ins *Instruction) (Status, int32, error) {
	return compareOp(p, ins, func(eq, lt bool) bool { return lt })
}

func opLe(p *Program, ins *Instruction) (Status, int32, error) {
	return compareOp(p, ins, func(eq, lt bool) bool { return lt || eq })
}

func opGt(p *Program, ins *Instruction) (Status, int32, error) {
	return compareOp(p, ins, func(eq, lt bool) bool { return !lt && !eq })
}

func opGe(p *Program, ins *Instruction) (Status, int32, error) {
	return compareOp(p, ins, func(eq, lt bool) bool { return !lt })
}
