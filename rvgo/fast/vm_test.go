package fast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

const testMemorySize = 1 << 20

func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>5)&0x7F)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1F)<<7 | riscv.OpcodeStore
}

func encodeB(funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>12)&1)<<31 | ((u>>5)&0x3F)<<25 | rs2<<20 | rs1<<15 | funct3<<12 |
		((u>>1)&0xF)<<8 | ((u>>11)&1)<<7 | riscv.OpcodeBranch
}

func encodeU(opcode, rd, imm uint32) uint32 {
	return imm<<12 | rd<<7 | opcode
}

func encodeJ(rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>20)&1)<<31 | ((u>>1)&0x3FF)<<21 | ((u>>11)&1)<<20 | ((u>>12)&0xFF)<<12 | rd<<7 | riscv.OpcodeJal
}

func encodeCSR(rd, funct3, rs1, csr uint32) uint32 {
	return csr<<20 | rs1<<15 | funct3<<12 | rd<<7 | riscv.OpcodeSystem
}

// execAt runs instr as if the driver fetched it from addr.
func execAt(s *VMState, addr uint64, instr uint32) error {
	s.PC = addr + 4
	return Execute(s, instr)
}

func newTestState() *VMState {
	return NewVMState(testMemorySize)
}

func TestNewVMState(t *testing.T) {
	s, err := NewVMStateWithImage([]byte{0x13, 0x00, 0x00, 0x00}, testMemorySize)
	require.NoError(t, err)
	require.Equal(t, ModeMachine, s.Mode)
	require.Equal(t, uint64(0), s.PC)
	require.Equal(t, uint64(testMemorySize), s.Register(riscv.RegSP))
	require.Equal(t, uint32(0x13), s.Instr())
	for i := uint64(0); i < riscv.CsrCount; i++ {
		require.Zero(t, s.ReadCSR(i))
	}

	_, err = NewVMStateWithImage(make([]byte, 17), 16)
	require.Error(t, err)
}

func TestZeroRegister(t *testing.T) {
	instrs := []uint32{
		encodeI(riscv.OpcodeOpImm, 0, 0, 0, 5),           // addi x0, x0, 5
		encodeU(riscv.OpcodeLui, 0, 0x12345),             // lui x0, 0x12345
		encodeU(riscv.OpcodeAuipc, 0, 1),                 // auipc x0, 1
		encodeR(riscv.OpcodeOp, 0, 0, 1, 1, 0),           // add x0, x1, x1
		encodeI(riscv.OpcodeOpImm32, 0, 0, 1, 1),         // addiw x0, x1, 1
		encodeI(riscv.OpcodeLoad, 0, 3, 2, -8),           // ld x0, -8(sp)
		encodeJ(0, 8),                                    // jal x0, 8
		encodeCSR(0, 2, 1, riscv.CsrMscratch),            // csrrs x0, mscratch, x1
		encodeR(riscv.OpcodeOp, 0, 0, 1, 1, 1),           // mul x0, x1, x1
		encodeI(riscv.OpcodeJalr, 0, 0, 1, 0),            // jalr x0, 0(x1)
		encodeCSR(0, 5, 31, riscv.CsrMscratch),           // csrrwi x0, mscratch, 31
		encodeI(riscv.OpcodeLoad, 0, 4, riscv.RegSP, -1), // lbu x0, -1(sp)
	}
	for _, instr := range instrs {
		s := newTestState()
		s.Registers[1] = 0x1234
		require.NoError(t, s.Memory.Store(testMemorySize-8, 8, ^uint64(0)))
		require.NoError(t, execAt(s, 0x100, instr), "instr %08x", instr)
		require.Zero(t, s.Registers[0], "instr %08x", instr)
		require.Zero(t, s.Register(0), "instr %08x", instr)
	}

	t.Run("cleared before decode", func(t *testing.T) {
		s := newTestState()
		s.Registers[0] = 7
		require.NoError(t, execAt(s, 0, encodeR(riscv.OpcodeOp, 1, 0, 0, 0, 0))) // add x1, x0, x0
		require.Zero(t, s.Register(1))
		require.Zero(t, s.Registers[0])
	})

	t.Run("register numbers are 5 bits", func(t *testing.T) {
		s := newTestState()
		s.PC = 4
		require.NoError(t, ExecuteDecoded(s, Instruction{Op: OpADDI, Rd: 32, Imm: 7}))
		require.Zero(t, s.Registers[0])
		require.NoError(t, ExecuteDecoded(s, Instruction{Op: OpADDI, Rd: 33, Imm: 7}))
		require.Equal(t, uint64(7), s.Register(1))
	})
}

func TestLoadStoreRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0x7F, 0x80, 0xFF, 0x8000, 0xFFFF, 0x8000_0000, 0xFFFF_FFFF,
		0x0123_4567_89AB_CDEF, 0x8000_0000_0000_0000, ^uint64(0)}
	widths := []struct {
		name  string
		store uint32
		load  uint32
		loadS uint32
		size  uint
	}{
		{name: "byte", store: 0, load: 4, loadS: 0, size: 1},
		{name: "half", store: 1, load: 5, loadS: 1, size: 2},
		{name: "word", store: 2, load: 6, loadS: 2, size: 4},
		{name: "double", store: 3, load: 3, loadS: 3, size: 8},
	}
	const addr = 0x1003 // deliberately misaligned
	for _, w := range widths {
		t.Run(w.name, func(t *testing.T) {
			for _, v := range values {
				s := newTestState()
				s.Registers[1] = addr
				s.Registers[2] = v
				require.NoError(t, execAt(s, 0, encodeS(w.store, 1, 2, 0)))

				mask := ^uint64(0)
				if w.size < 8 {
					mask = (uint64(1) << (8 * w.size)) - 1
				}
				require.NoError(t, execAt(s, 4, encodeI(riscv.OpcodeLoad, 3, w.load, 1, 0)))
				require.Equal(t, v&mask, s.Register(3), "unsigned load of %x", v)

				require.NoError(t, execAt(s, 8, encodeI(riscv.OpcodeLoad, 4, w.loadS, 1, 0)))
				expected := v & mask
				if w.size < 8 && expected&(uint64(1)<<(8*w.size-1)) != 0 {
					expected |= ^mask
				}
				require.Equal(t, expected, s.Register(4), "signed load of %x", v)
			}
		})
	}

	t.Run("lb sign-extends", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, s.Memory.Store(0x200, 1, 0xFF))
		require.NoError(t, execAt(s, 0, encodeI(riscv.OpcodeLoad, 1, 0, 0, 0x200)))
		require.Equal(t, ^uint64(0), s.Register(1))
		require.NoError(t, execAt(s, 0, encodeI(riscv.OpcodeLoad, 2, 4, 0, 0x200)))
		require.Equal(t, uint64(0xFF), s.Register(2))
	})

	t.Run("store truncates", func(t *testing.T) {
		s := newTestState()
		s.Registers[2] = 0x1122_3344_5566_7788
		require.NoError(t, execAt(s, 0, encodeS(1, 0, 2, 0x100))) // sh x2, 0x100(x0)
		v, err := s.Memory.Load(0x100, 8)
		require.NoError(t, err)
		require.Equal(t, uint64(0x7788), v)
	})

	t.Run("negative offset", func(t *testing.T) {
		s := newTestState()
		s.Registers[1] = 0x108
		s.Registers[2] = 0xabcd
		require.NoError(t, execAt(s, 0, encodeS(3, 1, 2, -8)))
		v, err := s.Memory.Load(0x100, 8)
		require.NoError(t, err)
		require.Equal(t, uint64(0xabcd), v)
	})
}

func TestOutOfBoundsAccess(t *testing.T) {
	cases := []struct {
		name  string
		instr uint32
		base  uint64
	}{
		{name: "ld past capacity", instr: encodeI(riscv.OpcodeLoad, 3, 3, 1, 0), base: testMemorySize + 1},
		{name: "lw straddling the end", instr: encodeI(riscv.OpcodeLoad, 3, 2, 1, 0), base: testMemorySize - 2},
		{name: "lh at the top of the address space", instr: encodeI(riscv.OpcodeLoad, 3, 1, 1, 0), base: ^uint64(0)},
		{name: "sd past capacity", instr: encodeS(3, 1, 2, 0), base: testMemorySize + 1},
		{name: "sb at capacity", instr: encodeS(0, 1, 2, 0), base: testMemorySize},
		{name: "sw straddling the end", instr: encodeS(2, 1, 2, 0), base: testMemorySize - 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestState()
			s.Registers[1] = c.base
			s.Registers[2] = ^uint64(0)
			s.Registers[3] = 0x55
			before := *s
			beforeMem := s.Memory.MerkleRoot()

			err := execAt(s, 0x40, c.instr)
			require.ErrorIs(t, err, ErrMemoryOutOfBounds)
			var ierr *InstrError
			require.True(t, errors.As(err, &ierr))
			require.Equal(t, uint64(riscv.ErrMemoryOutOfBounds), ierr.Code)
			require.Equal(t, uint64(0x40), ierr.PC)
			require.Equal(t, c.instr, ierr.Instr)

			require.Equal(t, before.Registers, s.Registers, "registers untouched")
			require.Equal(t, beforeMem, s.Memory.MerkleRoot(), "memory untouched")
		})
	}
}

func TestImmediateArithmetic(t *testing.T) {
	cases := []struct {
		name     string
		funct3   uint32
		rs1      uint64
		imm      int32
		expected uint64
	}{
		{name: "addi", funct3: 0, rs1: 10, imm: -3, expected: 7},
		{name: "addi wraps", funct3: 0, rs1: ^uint64(0), imm: 1, expected: 0},
		{name: "slli", funct3: 1, rs1: 1, imm: 63, expected: 1 << 63},
		{name: "slti true", funct3: 2, rs1: ^uint64(0), imm: 0, expected: 1},
		{name: "slti false", funct3: 2, rs1: 1, imm: -1, expected: 0},
		{name: "sltiu compares unsigned", funct3: 3, rs1: 1, imm: -1, expected: 1},
		{name: "sltiu false", funct3: 3, rs1: ^uint64(0), imm: 1, expected: 0},
		{name: "xori not", funct3: 4, rs1: 0x0F0F, imm: -1, expected: ^uint64(0x0F0F)},
		{name: "srli", funct3: 5, rs1: 1 << 63, imm: 63, expected: 1},
		{name: "srai", funct3: 5, rs1: 1 << 63, imm: 0x400 | 63, expected: ^uint64(0)},
		{name: "srai positive", funct3: 5, rs1: 0x100, imm: 0x400 | 4, expected: 0x10},
		{name: "ori", funct3: 6, rs1: 0xF0, imm: 0x0F, expected: 0xFF},
		{name: "andi sign-extended", funct3: 7, rs1: 0xFFFF_0000_FFFF_FFFF, imm: -16, expected: 0xFFFF_0000_FFFF_FFF0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestState()
			s.Registers[1] = c.rs1
			require.NoError(t, execAt(s, 0, encodeI(riscv.OpcodeOpImm, 5, c.funct3, 1, c.imm)))
			require.Equal(t, c.expected, s.Register(5))
		})
	}
}

func TestRegisterArithmetic(t *testing.T) {
	const minInt64 = uint64(1) << 63
	cases := []struct {
		name     string
		funct3   uint32
		funct7   uint32
		rs1, rs2 uint64
		expected uint64
	}{
		{name: "add", funct3: 0, rs1: 5, rs2: 7, expected: 12},
		{name: "sub", funct3: 0, funct7: 0x20, rs1: 5, rs2: 7, expected: ^uint64(1)},
		{name: "sll uses low 6 bits", funct3: 1, rs1: 1, rs2: 65, expected: 2},
		{name: "slt", funct3: 2, rs1: minInt64, rs2: 0, expected: 1},
		{name: "sltu", funct3: 3, rs1: minInt64, rs2: 0, expected: 0},
		{name: "xor", funct3: 4, rs1: 0b1100, rs2: 0b1010, expected: 0b0110},
		{name: "srl", funct3: 5, rs1: minInt64, rs2: 64 + 62, expected: 2},
		{name: "sra", funct3: 5, funct7: 0x20, rs1: minInt64, rs2: 62, expected: ^uint64(1)},
		{name: "or", funct3: 6, rs1: 0b1100, rs2: 0b1010, expected: 0b1110},
		{name: "and", funct3: 7, rs1: 0b1100, rs2: 0b1010, expected: 0b1000},

		{name: "mul", funct3: 0, funct7: 1, rs1: ^uint64(0), rs2: 3, expected: ^uint64(2)},
		{name: "mulh negative", funct3: 1, funct7: 1, rs1: ^uint64(0), rs2: ^uint64(0), expected: 0},
		{name: "mulh", funct3: 1, funct7: 1, rs1: minInt64, rs2: 2, expected: ^uint64(0)},
		{name: "mulhsu", funct3: 2, funct7: 1, rs1: ^uint64(0), rs2: ^uint64(0), expected: ^uint64(0)},
		{name: "mulhu", funct3: 3, funct7: 1, rs1: ^uint64(0), rs2: ^uint64(0), expected: ^uint64(1)},
		{name: "div", funct3: 4, funct7: 1, rs1: ^uint64(6), rs2: 2, expected: ^uint64(2)},
		{name: "div by zero", funct3: 4, funct7: 1, rs1: 7, rs2: 0, expected: ^uint64(0)},
		{name: "div overflow", funct3: 4, funct7: 1, rs1: minInt64, rs2: ^uint64(0), expected: minInt64},
		{name: "divu", funct3: 5, funct7: 1, rs1: ^uint64(0), rs2: 2, expected: ^uint64(0) >> 1},
		{name: "divu by zero", funct3: 5, funct7: 1, rs1: 7, rs2: 0, expected: ^uint64(0)},
		{name: "rem", funct3: 6, funct7: 1, rs1: ^uint64(6), rs2: 2, expected: ^uint64(0)},
		{name: "rem by zero", funct3: 6, funct7: 1, rs1: 7, rs2: 0, expected: 7},
		{name: "rem overflow", funct3: 6, funct7: 1, rs1: minInt64, rs2: ^uint64(0), expected: 0},
		{name: "remu", funct3: 7, funct7: 1, rs1: 7, rs2: 4, expected: 3},
		{name: "remu by zero", funct3: 7, funct7: 1, rs1: 7, rs2: 0, expected: 7},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestState()
			s.Registers[1] = c.rs1
			s.Registers[2] = c.rs2
			require.NoError(t, execAt(s, 0, encodeR(riscv.OpcodeOp, 3, c.funct3, 1, 2, c.funct7)))
			require.Equal(t, c.expected, s.Register(3))
		})
	}
}

func TestWordArithmetic(t *testing.T) {
	t.Run("addiw differs from addi", func(t *testing.T) {
		s := newTestState()
		s.Registers[1] = 0xFFFF_FFFF_0000_0001
		require.NoError(t, execAt(s, 0, encodeI(riscv.OpcodeOpImm32, 2, 0, 1, 1)))
		require.Equal(t, uint64(2), s.Register(2))
		require.NoError(t, execAt(s, 4, encodeI(riscv.OpcodeOpImm, 3, 0, 1, 1)))
		require.Equal(t, uint64(0xFFFF_FFFF_0000_0002), s.Register(3))
	})

	immCases := []struct {
		name     string
		funct3   uint32
		rs1      uint64
		imm      int32
		expected uint64
	}{
		{name: "addiw overflow", funct3: 0, rs1: 0x7FFF_FFFF, imm: 1, expected: 0xFFFF_FFFF_8000_0000},
		{name: "slliw", funct3: 1, rs1: 1, imm: 31, expected: 0xFFFF_FFFF_8000_0000},
		{name: "slliw drops upper", funct3: 1, rs1: 0x1_0000_0001, imm: 1, expected: 2},
		{name: "srliw", funct3: 5, rs1: 0xFFFF_FFFF_8000_0000, imm: 4, expected: 0x0800_0000},
		{name: "srliw zero shift sign-extends", funct3: 5, rs1: 0x8000_0000, imm: 0, expected: 0xFFFF_FFFF_8000_0000},
		{name: "sraiw", funct3: 5, rs1: 0x8000_0000, imm: 0x400 | 4, expected: 0xFFFF_FFFF_F800_0000},
	}
	for _, c := range immCases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestState()
			s.Registers[1] = c.rs1
			require.NoError(t, execAt(s, 0, encodeI(riscv.OpcodeOpImm32, 5, c.funct3, 1, c.imm)))
			require.Equal(t, c.expected, s.Register(5))
		})
	}

	regCases := []struct {
		name     string
		funct3   uint32
		funct7   uint32
		rs1, rs2 uint64
		expected uint64
	}{
		{name: "addw", funct3: 0, rs1: 0xFFFF_FFFF, rs2: 1, expected: 0},
		{name: "subw", funct3: 0, funct7: 0x20, rs1: 0, rs2: 1, expected: ^uint64(0)},
		{name: "sllw uses low 5 bits", funct3: 1, rs1: 1, rs2: 33, expected: 2},
		{name: "srlw", funct3: 5, rs1: 0xFFFF_FFFF_FFFF_FFFF, rs2: 32 + 28, expected: 0xF},
		{name: "sraw", funct3: 5, funct7: 0x20, rs1: 0x8000_0000, rs2: 31, expected: ^uint64(0)},
		{name: "mulw", funct3: 0, funct7: 1, rs1: 0x1_0000_0002, rs2: 0x4000_0000, expected: 0xFFFF_FFFF_8000_0000},
		{name: "divw", funct3: 4, funct7: 1, rs1: 0xFFFF_FFF9, rs2: 2, expected: ^uint64(2)},
		{name: "divw overflow", funct3: 4, funct7: 1, rs1: 0x8000_0000, rs2: ^uint64(0), expected: 0xFFFF_FFFF_8000_0000},
		{name: "divw by zero", funct3: 4, funct7: 1, rs1: 5, rs2: 0x1_0000_0000, expected: ^uint64(0)},
		{name: "divuw", funct3: 5, funct7: 1, rs1: 0xFFFF_FFFF, rs2: 1, expected: ^uint64(0)},
		{name: "divuw by zero", funct3: 5, funct7: 1, rs1: 5, rs2: 0, expected: ^uint64(0)},
		{name: "remw", funct3: 6, funct7: 1, rs1: 0xFFFF_FFF9, rs2: 2, expected: ^uint64(0)},
		{name: "remw by zero", funct3: 6, funct7: 1, rs1: 0x8000_0001, rs2: 0, expected: 0xFFFF_FFFF_8000_0001},
		{name: "remuw", funct3: 7, funct7: 1, rs1: 0xFFFF_FFFF, rs2: 0x10, expected: 0xF},
	}
	for _, c := range regCases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestState()
			s.Registers[1] = c.rs1
			s.Registers[2] = c.rs2
			require.NoError(t, execAt(s, 0, encodeR(riscv.OpcodeOp32, 3, c.funct3, 1, 2, c.funct7)))
			require.Equal(t, c.expected, s.Register(3))
		})
	}
}

func TestUpperImmediate(t *testing.T) {
	s := newTestState()
	require.NoError(t, execAt(s, 0, encodeU(riscv.OpcodeLui, 1, 0x12345)))
	require.Equal(t, uint64(0x1234_5000), s.Register(1))

	require.NoError(t, execAt(s, 0, encodeU(riscv.OpcodeLui, 1, 0x80000)))
	require.Equal(t, uint64(0xFFFF_FFFF_8000_0000), s.Register(1))

	require.NoError(t, execAt(s, 0x3000, encodeU(riscv.OpcodeAuipc, 2, 1)))
	require.Equal(t, uint64(0x4000), s.Register(2), "relative to the instruction, not the advanced pc")
	require.Equal(t, uint64(0x3004), s.PC)

	require.NoError(t, execAt(s, 0x3000, encodeU(riscv.OpcodeAuipc, 2, 0xFFFFF)))
	require.Equal(t, uint64(0x2000), s.Register(2))
}

func TestBranches(t *testing.T) {
	const minInt64 = uint64(1) << 63
	cases := []struct {
		name     string
		funct3   uint32
		rs1, rs2 uint64
		taken    bool
	}{
		{name: "beq taken", funct3: 0, rs1: 3, rs2: 3, taken: true},
		{name: "beq not taken", funct3: 0, rs1: 3, rs2: 4},
		{name: "bne taken", funct3: 1, rs1: 3, rs2: 4, taken: true},
		{name: "bne not taken", funct3: 1, rs1: 3, rs2: 3},
		{name: "blt signed", funct3: 4, rs1: minInt64, rs2: 1, taken: true},
		{name: "blt equal", funct3: 4, rs1: 1, rs2: 1},
		{name: "bge equal", funct3: 5, rs1: 1, rs2: 1, taken: true},
		{name: "bge signed", funct3: 5, rs1: minInt64, rs2: 1},
		{name: "bltu unsigned", funct3: 6, rs1: 1, rs2: minInt64, taken: true},
		{name: "bltu not taken", funct3: 6, rs1: minInt64, rs2: 1},
		{name: "bgeu unsigned", funct3: 7, rs1: minInt64, rs2: 1, taken: true},
		{name: "bgeu not taken", funct3: 7, rs1: 0, rs2: 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestState()
			s.Registers[1] = c.rs1
			s.Registers[2] = c.rs2
			require.NoError(t, execAt(s, 0x1000, encodeB(c.funct3, 1, 2, 8)))
			if c.taken {
				require.Equal(t, uint64(0x1008), s.PC)
			} else {
				require.Equal(t, uint64(0x1004), s.PC)
			}
		})
	}

	t.Run("backwards", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, execAt(s, 0x1000, encodeB(0, 0, 0, -0x800)))
		require.Equal(t, uint64(0x800), s.PC)
	})
	t.Run("max offset", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, execAt(s, 0x1000, encodeB(0, 0, 0, 4094)))
		require.Equal(t, uint64(0x1000+4094), s.PC)
	})
}

func TestJumps(t *testing.T) {
	t.Run("jal", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, execAt(s, 0x2000, encodeJ(1, 0x10)))
		require.Equal(t, uint64(0x2004), s.Register(1))
		require.Equal(t, uint64(0x2010), s.PC)
	})
	t.Run("jal backwards", func(t *testing.T) {
		s := newTestState()
		require.NoError(t, execAt(s, 0x2000, encodeJ(1, -0x1000)))
		require.Equal(t, uint64(0x1000), s.PC)
	})
	t.Run("jalr clears bit 0", func(t *testing.T) {
		s := newTestState()
		s.Registers[5] = 0x1001
		require.NoError(t, execAt(s, 0x100, encodeI(riscv.OpcodeJalr, 1, 0, 5, 0x10)))
		require.Equal(t, uint64(0x1010), s.PC)
		require.Equal(t, uint64(0x104), s.Register(1))
	})
	t.Run("jalr with rd == rs1", func(t *testing.T) {
		s := newTestState()
		s.Registers[1] = 0x5000
		require.NoError(t, execAt(s, 0x100, encodeI(riscv.OpcodeJalr, 1, 0, 1, -4)))
		require.Equal(t, uint64(0x4FFC), s.PC)
		require.Equal(t, uint64(0x104), s.Register(1))
	})
}

func TestCSRInstructions(t *testing.T) {
	cases := []struct {
		name     string
		funct3   uint32
		rs1      uint32
		rs1Value uint64
		prior    uint64
		expected uint64
	}{
		{name: "csrrw", funct3: 1, rs1: 2, rs1Value: 0b0101, prior: 0b0010, expected: 0b0101},
		{name: "csrrs", funct3: 2, rs1: 2, rs1Value: 0b0101, prior: 0b0010, expected: 0b0111},
		{name: "csrrc", funct3: 3, rs1: 2, rs1Value: 0b0110, prior: 0b0111, expected: 0b0001},
		{name: "csrrs x0 reads", funct3: 2, rs1: 0, prior: 0b0010, expected: 0b0010},
		{name: "csrrwi", funct3: 5, rs1: 31, prior: 0xFF00, expected: 31},
		{name: "csrrsi", funct3: 6, rs1: 0b0101, prior: 0b0010, expected: 0b0111},
		{name: "csrrci", funct3: 7, rs1: 0b0011, prior: 0b1111, expected: 0b1100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestState()
			s.Registers[2] = c.rs1Value
			s.WriteCSR(riscv.CsrMscratch, c.prior)
			require.NoError(t, execAt(s, 0, encodeCSR(1, c.funct3, c.rs1, riscv.CsrMscratch)))
			require.Equal(t, c.expected, s.ReadCSR(riscv.CsrMscratch))
			require.Equal(t, c.prior, s.Register(1))
		})
	}

	t.Run("rd == rs1", func(t *testing.T) {
		s := newTestState()
		s.Registers[1] = 0xAA
		s.WriteCSR(riscv.CsrSscratch, 0x55)
		require.NoError(t, execAt(s, 0, encodeCSR(1, 1, 1, riscv.CsrSscratch)))
		require.Equal(t, uint64(0xAA), s.ReadCSR(riscv.CsrSscratch))
		require.Equal(t, uint64(0x55), s.Register(1))
	})

	t.Run("any 12 bit number", func(t *testing.T) {
		s := newTestState()
		s.Registers[2] = 9
		require.NoError(t, execAt(s, 0, encodeCSR(1, 1, 2, 0xFFF)))
		require.Equal(t, uint64(9), s.ReadCSR(0xFFF))
	})
}

func TestTrapReturn(t *testing.T) {
	t.Run("mret to supervisor", func(t *testing.T) {
		s := newTestState()
		status := SetMPP(SetMPIE(0, 1), 1)
		s.WriteCSR(riscv.CsrMstatus, status)
		s.WriteCSR(riscv.CsrMepc, 0x8000)
		require.NoError(t, execAt(s, 0x100, 0x30200073))
		require.Equal(t, ModeSupervisor, s.Mode)
		require.Equal(t, uint64(0x8000), s.PC)
		status = s.ReadCSR(riscv.CsrMstatus)
		require.Equal(t, uint64(1), GetMIE(status))
		require.Equal(t, uint64(1), GetMPIE(status))
		require.Equal(t, uint64(0), GetMPP(status))
	})
	t.Run("mret restores MIE from MPIE", func(t *testing.T) {
		s := newTestState()
		s.WriteCSR(riscv.CsrMstatus, SetMIE(SetMPP(0, 2), 1))
		require.NoError(t, execAt(s, 0x100, 0x30200073))
		require.Equal(t, ModeMachine, s.Mode)
		status := s.ReadCSR(riscv.CsrMstatus)
		require.Equal(t, uint64(0), GetMIE(status))
		require.Equal(t, uint64(1), GetMPIE(status))
	})
	t.Run("mret MPP mapping", func(t *testing.T) {
		for mpp, mode := range map[uint64]Mode{0: ModeUser, 1: ModeSupervisor, 2: ModeMachine, 3: ModeUser} {
			s := newTestState()
			s.WriteCSR(riscv.CsrMstatus, SetMPP(0, mpp))
			require.NoError(t, execAt(s, 0, 0x30200073))
			require.Equal(t, mode, s.Mode, "MPP %d", mpp)
		}
	})
	t.Run("mret leaves other bits", func(t *testing.T) {
		s := newTestState()
		s.WriteCSR(riscv.CsrMstatus, 0xF000_0000_0000_0002)
		require.NoError(t, execAt(s, 0, 0x30200073))
		require.Equal(t, uint64(0xF000_0000_0000_0082), s.ReadCSR(riscv.CsrMstatus))
	})
	t.Run("sret to supervisor", func(t *testing.T) {
		s := newTestState()
		s.WriteCSR(riscv.CsrSstatus, SetSPP(SetSPIE(0, 1), 1))
		s.WriteCSR(riscv.CsrSepc, 0x4000)
		require.NoError(t, execAt(s, 0x100, 0x10200073))
		require.Equal(t, ModeSupervisor, s.Mode)
		require.Equal(t, uint64(0x4000), s.PC)
		status := s.ReadCSR(riscv.CsrSstatus)
		require.Equal(t, uint64(1), GetSIE(status))
		require.Equal(t, uint64(1), GetSPIE(status))
		require.Equal(t, uint64(0), GetSPP(status))
	})
	t.Run("sret to user", func(t *testing.T) {
		s := newTestState()
		s.WriteCSR(riscv.CsrSstatus, SetSIE(0, 1))
		require.NoError(t, execAt(s, 0x100, 0x10200073))
		require.Equal(t, ModeUser, s.Mode)
		status := s.ReadCSR(riscv.CsrSstatus)
		require.Equal(t, uint64(0), GetSIE(status))
		require.Equal(t, uint64(1), GetSPIE(status))
	})
	t.Run("sret does not touch mstatus", func(t *testing.T) {
		s := newTestState()
		s.WriteCSR(riscv.CsrMstatus, 0x1888)
		require.NoError(t, execAt(s, 0, 0x10200073))
		require.Equal(t, uint64(0x1888), s.ReadCSR(riscv.CsrMstatus))
	})
}

func TestNoOps(t *testing.T) {
	for _, instr := range []uint32{
		0x0000000f, // fence
		0x0000100f, // fence.i
		0x10500073, // wfi
		0x12000073, // sfence.vma
	} {
		s := newTestState()
		s.Registers[1] = 1
		require.NoError(t, execAt(s, 0x100, instr), "instr %08x", instr)
		require.Equal(t, uint64(0x104), s.PC)
		require.Equal(t, uint64(1), s.Register(1))
		require.Equal(t, ModeMachine, s.Mode)
	}
}

func TestEnvironmentInstructions(t *testing.T) {
	s := newTestState()
	err := execAt(s, 0x100, 0x00000073)
	require.ErrorIs(t, err, ErrEnvironmentCall)
	var ierr *InstrError
	require.True(t, errors.As(err, &ierr))
	require.Equal(t, uint64(riscv.ErrEnvironmentCall), ierr.Code)
	require.Equal(t, uint64(0x100), ierr.PC)

	err = execAt(s, 0x100, 0x00100073)
	require.ErrorIs(t, err, ErrBreakpoint)
	require.True(t, errors.As(err, &ierr))
	require.Equal(t, uint64(riscv.ErrBreakpoint), ierr.Code)
}

func TestUnknownInstruction(t *testing.T) {
	cases := []struct {
		name  string
		instr uint32
		code  uint64
	}{
		{name: "all zeroes", instr: 0, code: riscv.ErrUnknownOpCode},
		{name: "all ones", instr: 0xFFFF_FFFF, code: riscv.ErrUnknownOpCode},
		{name: "compressed opcode", instr: 0x0001, code: riscv.ErrUnknownOpCode},
		{name: "load funct3 7", instr: encodeI(riscv.OpcodeLoad, 1, 7, 2, 0), code: riscv.ErrUnknownFunct},
		{name: "store funct3 4", instr: encodeS(4, 1, 2, 0), code: riscv.ErrUnknownFunct},
		{name: "op funct7 2", instr: encodeR(riscv.OpcodeOp, 1, 0, 2, 3, 2), code: riscv.ErrUnknownFunct},
		{name: "sub funct3 1", instr: encodeR(riscv.OpcodeOp, 1, 1, 2, 3, 0x20), code: riscv.ErrUnknownFunct},
		{name: "slli reserved bits", instr: encodeI(riscv.OpcodeOpImm, 1, 1, 2, 0x400|3), code: riscv.ErrUnknownFunct},
		{name: "slliw shamt 32", instr: encodeI(riscv.OpcodeOpImm32, 1, 1, 2, 32), code: riscv.ErrUnknownFunct},
		{name: "op32 funct3 2", instr: encodeR(riscv.OpcodeOp32, 1, 2, 2, 3, 0), code: riscv.ErrUnknownFunct},
		{name: "branch funct3 2", instr: encodeB(2, 1, 2, 8), code: riscv.ErrUnknownFunct},
		{name: "jalr funct3 1", instr: encodeI(riscv.OpcodeJalr, 1, 1, 2, 0), code: riscv.ErrUnknownFunct},
		{name: "system funct3 4", instr: 0x00004073, code: riscv.ErrUnknownFunct},
		{name: "unknown privileged", instr: 0xFE000073, code: riscv.ErrInvalidSystemInstr},
		{name: "fence funct3 2", instr: 0x0000200f, code: riscv.ErrUnknownFunct},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestState()
			s.Registers[1] = 0x77
			err := execAt(s, 0x200, c.instr)
			require.ErrorIs(t, err, ErrUnknownInstruction)
			var ierr *InstrError
			require.True(t, errors.As(err, &ierr))
			require.Equal(t, c.code, ierr.Code)
			require.Equal(t, c.instr&0x7F, ierr.Opcode)
			require.Equal(t, uint64(0x200), ierr.PC)
			require.Equal(t, uint64(0x77), s.Register(1))
			require.Equal(t, uint64(0x204), s.PC)
		})
	}
}
