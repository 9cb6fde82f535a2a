package fast

import (
	"fmt"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

// Op identifies the operation an instruction word decodes to.
type Op uint8

const (
	OpInvalid Op = iota

	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU

	OpSB
	OpSH
	OpSW
	OpSD

	OpADDI
	OpSLLI
	OpSLTI
	OpSLTIU
	OpXORI
	OpSRLI
	OpSRAI
	OpORI
	OpANDI

	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND

	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW

	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW

	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU

	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW

	OpLUI
	OpAUIPC

	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU

	OpJAL
	OpJALR

	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	OpECALL
	OpEBREAK
	OpSRET
	OpMRET
	OpWFI
	OpSFENCEVMA

	OpFENCE
	OpFENCEI
)

// operand layouts, only used for rendering
type format uint8

const (
	fmtNone format = iota
	fmtLoad
	fmtStore
	fmtImm
	fmtReg
	fmtUpper
	fmtBranch
	fmtJump
	fmtJumpReg
	fmtCSR
	fmtCSRImm
	fmtFenceVMA
)

type opMeta struct {
	name   string
	format format
}

var opTable = [...]opMeta{
	OpInvalid: {"invalid", fmtNone},

	OpLB: {"lb", fmtLoad}, OpLH: {"lh", fmtLoad}, OpLW: {"lw", fmtLoad}, OpLD: {"ld", fmtLoad},
	OpLBU: {"lbu", fmtLoad}, OpLHU: {"lhu", fmtLoad}, OpLWU: {"lwu", fmtLoad},

	OpSB: {"sb", fmtStore}, OpSH: {"sh", fmtStore}, OpSW: {"sw", fmtStore}, OpSD: {"sd", fmtStore},

	OpADDI: {"addi", fmtImm}, OpSLLI: {"slli", fmtImm}, OpSLTI: {"slti", fmtImm}, OpSLTIU: {"sltiu", fmtImm},
	OpXORI: {"xori", fmtImm}, OpSRLI: {"srli", fmtImm}, OpSRAI: {"srai", fmtImm}, OpORI: {"ori", fmtImm},
	OpANDI: {"andi", fmtImm},

	OpADD: {"add", fmtReg}, OpSUB: {"sub", fmtReg}, OpSLL: {"sll", fmtReg}, OpSLT: {"slt", fmtReg},
	OpSLTU: {"sltu", fmtReg}, OpXOR: {"xor", fmtReg}, OpSRL: {"srl", fmtReg}, OpSRA: {"sra", fmtReg},
	OpOR: {"or", fmtReg}, OpAND: {"and", fmtReg},

	OpADDIW: {"addiw", fmtImm}, OpSLLIW: {"slliw", fmtImm}, OpSRLIW: {"srliw", fmtImm}, OpSRAIW: {"sraiw", fmtImm},

	OpADDW: {"addw", fmtReg}, OpSUBW: {"subw", fmtReg}, OpSLLW: {"sllw", fmtReg}, OpSRLW: {"srlw", fmtReg},
	OpSRAW: {"sraw", fmtReg},

	OpMUL: {"mul", fmtReg}, OpMULH: {"mulh", fmtReg}, OpMULHSU: {"mulhsu", fmtReg}, OpMULHU: {"mulhu", fmtReg},
	OpDIV: {"div", fmtReg}, OpDIVU: {"divu", fmtReg}, OpREM: {"rem", fmtReg}, OpREMU: {"remu", fmtReg},

	OpMULW: {"mulw", fmtReg}, OpDIVW: {"divw", fmtReg}, OpDIVUW: {"divuw", fmtReg}, OpREMW: {"remw", fmtReg},
	OpREMUW: {"remuw", fmtReg},

	OpLUI: {"lui", fmtUpper}, OpAUIPC: {"auipc", fmtUpper},

	OpBEQ: {"beq", fmtBranch}, OpBNE: {"bne", fmtBranch}, OpBLT: {"blt", fmtBranch}, OpBGE: {"bge", fmtBranch},
	OpBLTU: {"bltu", fmtBranch}, OpBGEU: {"bgeu", fmtBranch},

	OpJAL: {"jal", fmtJump}, OpJALR: {"jalr", fmtJumpReg},

	OpCSRRW: {"csrrw", fmtCSR}, OpCSRRS: {"csrrs", fmtCSR}, OpCSRRC: {"csrrc", fmtCSR},
	OpCSRRWI: {"csrrwi", fmtCSRImm}, OpCSRRSI: {"csrrsi", fmtCSRImm}, OpCSRRCI: {"csrrci", fmtCSRImm},

	OpECALL: {"ecall", fmtNone}, OpEBREAK: {"ebreak", fmtNone}, OpSRET: {"sret", fmtNone},
	OpMRET: {"mret", fmtNone}, OpWFI: {"wfi", fmtNone}, OpSFENCEVMA: {"sfence.vma", fmtFenceVMA},

	OpFENCE: {"fence", fmtNone}, OpFENCEI: {"fence.i", fmtNone},
}

func (op Op) String() string {
	if int(op) < len(opTable) {
		return opTable[op].name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Instruction is a decoded instruction word.
// Imm holds the sign-extended immediate, the shift amount for shift-immediates,
// or the zero-extended 5 bit immediate for the CSR immediate forms.
type Instruction struct {
	Op  Op
	Raw uint32

	Rd  U64
	Rs1 U64
	Rs2 U64
	Imm U64
	CSR U64
}

func (in Instruction) String() string {
	reg := func(r U64) string { return fmt.Sprintf("x%d", r) }
	name := in.Op.String()
	if int(in.Op) >= len(opTable) {
		return name
	}
	switch opTable[in.Op].format {
	case fmtLoad:
		return fmt.Sprintf("%s %s, %d(%s)", name, reg(in.Rd), int64(in.Imm), reg(in.Rs1))
	case fmtStore:
		return fmt.Sprintf("%s %s, %d(%s)", name, reg(in.Rs2), int64(in.Imm), reg(in.Rs1))
	case fmtImm:
		return fmt.Sprintf("%s %s, %s, %d", name, reg(in.Rd), reg(in.Rs1), int64(in.Imm))
	case fmtReg:
		return fmt.Sprintf("%s %s, %s, %s", name, reg(in.Rd), reg(in.Rs1), reg(in.Rs2))
	case fmtUpper:
		return fmt.Sprintf("%s %s, 0x%x", name, reg(in.Rd), and64(shr64(toU64(12), in.Imm), 0xFFFFF))
	case fmtBranch:
		return fmt.Sprintf("%s %s, %s, %d", name, reg(in.Rs1), reg(in.Rs2), int64(in.Imm))
	case fmtJump:
		return fmt.Sprintf("%s %s, %d", name, reg(in.Rd), int64(in.Imm))
	case fmtJumpReg:
		return fmt.Sprintf("%s %s, %d(%s)", name, reg(in.Rd), int64(in.Imm), reg(in.Rs1))
	case fmtCSR:
		return fmt.Sprintf("%s %s, 0x%03x, %s", name, reg(in.Rd), in.CSR, reg(in.Rs1))
	case fmtCSRImm:
		return fmt.Sprintf("%s %s, 0x%03x, %d", name, reg(in.Rd), in.CSR, in.Imm)
	case fmtFenceVMA:
		return fmt.Sprintf("%s %s, %s", name, reg(in.Rs1), reg(in.Rs2))
	default:
		return name
	}
}

// Decode maps an instruction word to its operation and operands.
// Encodings that are not part of RV64IM, Zicsr or the supported privileged
// instructions fail with an *InstrError wrapping ErrUnknownInstruction.
func Decode(instr uint32) (Instruction, error) {
	in, err := decode(instr)
	if err != nil {
		return in, err
	}
	return in, nil
}

func decode(instr uint32) (Instruction, *InstrError) {
	raw := U64(instr)

	// these fields are ignored if not applicable to the instruction type / opcode
	opcode := parseOpcode(raw)
	funct3 := parseFunct3(raw)
	funct7 := parseFunct7(raw)

	in := Instruction{
		Raw: instr,
		Rd:  parseRd(raw),  // destination register index
		Rs1: parseRs1(raw), // source register 1 index
		Rs2: parseRs2(raw), // source register 2 index
	}

	switch opcode {
	case riscv.OpcodeLoad: // 000_0011: memory loading
		in.Imm = parseImmTypeI(raw)
		switch funct3 {
		case 0: // 000 = LB
			in.Op = OpLB
		case 1: // 001 = LH
			in.Op = OpLH
		case 2: // 010 = LW
			in.Op = OpLW
		case 3: // 011 = LD
			in.Op = OpLD
		case 4: // 100 = LBU
			in.Op = OpLBU
		case 5: // 101 = LHU
			in.Op = OpLHU
		case 6: // 110 = LWU
			in.Op = OpLWU
		default:
			return in, unknownFunct(instr)
		}
	case riscv.OpcodeStore: // 010_0011: memory storing
		in.Imm = parseImmTypeS(raw)
		switch funct3 {
		case 0: // 000 = SB
			in.Op = OpSB
		case 1: // 001 = SH
			in.Op = OpSH
		case 2: // 010 = SW
			in.Op = OpSW
		case 3: // 011 = SD
			in.Op = OpSD
		default:
			return in, unknownFunct(instr)
		}
	case riscv.OpcodeOpImm: // 001_0011: immediate arithmetic and logic
		in.Imm = parseImmTypeI(raw)
		// in rv64i the top 6 bits of the immediate select the shift type,
		// and the shift amount is encoded in the lower 6 bits
		funct6 := and64(shr64(toU64(6), in.Imm), toU64(0x3F))
		shamt := and64(in.Imm, toU64(0x3F))
		switch funct3 {
		case 0: // 000 = ADDI
			in.Op = OpADDI
		case 1: // 001 = SLLI
			if funct6 != 0 {
				return in, unknownFunct(instr)
			}
			in.Op, in.Imm = OpSLLI, shamt
		case 2: // 010 = SLTI
			in.Op = OpSLTI
		case 3: // 011 = SLTIU
			in.Op = OpSLTIU
		case 4: // 100 = XORI
			in.Op = OpXORI
		case 5: // 101 = SR~
			switch funct6 {
			case 0x00: // 000000 = SRLI
				in.Op = OpSRLI
			case 0x10: // 010000 = SRAI
				in.Op = OpSRAI
			default:
				return in, unknownFunct(instr)
			}
			in.Imm = shamt
		case 6: // 110 = ORI
			in.Op = OpORI
		case 7: // 111 = ANDI
			in.Op = OpANDI
		}
	case riscv.OpcodeOpImm32: // 001_1011: immediate arithmetic and logic signed 32 bit
		in.Imm = parseImmTypeI(raw)
		// SLLIW, SRLIW and SRAIW encodings with imm[5] != 0 are reserved: funct7 must match exactly
		shamt := and64(in.Imm, toU64(0x1F))
		switch funct3 {
		case 0: // 000 = ADDIW
			in.Op = OpADDIW
		case 1: // 001 = SLLIW
			if funct7 != 0 {
				return in, unknownFunct(instr)
			}
			in.Op, in.Imm = OpSLLIW, shamt
		case 5: // 101 = SR~
			switch funct7 {
			case 0x00: // 0000000 = SRLIW
				in.Op = OpSRLIW
			case 0x20: // 0100000 = SRAIW
				in.Op = OpSRAIW
			default:
				return in, unknownFunct(instr)
			}
			in.Imm = shamt
		default:
			return in, unknownFunct(instr)
		}
	case riscv.OpcodeOp: // 011_0011: register arithmetic and logic
		op, ok := decodeOp(funct3, funct7)
		if !ok {
			return in, unknownFunct(instr)
		}
		in.Op = op
	case riscv.OpcodeOp32: // 011_1011: register arithmetic and logic in 32 bits
		op, ok := decodeOp32(funct3, funct7)
		if !ok {
			return in, unknownFunct(instr)
		}
		in.Op = op
	case riscv.OpcodeLui: // 011_0111: LUI = Load upper immediate
		in.Op = OpLUI
		in.Imm = parseImmTypeU(raw)
	case riscv.OpcodeAuipc: // 001_0111: AUIPC = Add upper immediate to PC
		in.Op = OpAUIPC
		in.Imm = parseImmTypeU(raw)
	case riscv.OpcodeBranch: // 110_0011: branching
		in.Imm = parseImmTypeB(raw)
		switch funct3 {
		case 0: // 000 = BEQ
			in.Op = OpBEQ
		case 1: // 001 = BNE
			in.Op = OpBNE
		case 4: // 100 = BLT
			in.Op = OpBLT
		case 5: // 101 = BGE
			in.Op = OpBGE
		case 6: // 110 = BLTU
			in.Op = OpBLTU
		case 7: // 111 = BGEU
			in.Op = OpBGEU
		default:
			return in, unknownFunct(instr)
		}
	case riscv.OpcodeJal: // 110_1111: JAL = Jump and link
		in.Op = OpJAL
		in.Imm = parseImmTypeJ(raw)
	case riscv.OpcodeJalr: // 110_0111: JALR = Jump and link register
		if funct3 != 0 {
			return in, unknownFunct(instr)
		}
		in.Op = OpJALR
		in.Imm = parseImmTypeI(raw)
	case riscv.OpcodeSystem: // 111_0011: environment things
		return decodeSystem(in, instr)
	case riscv.OpcodeMiscMem: // 000_1111: fence
		// This VM doesn't have a pipeline, nor additional harts: there's nothing to synchronize.
		switch funct3 {
		case 0: // 000 = FENCE
			in.Op = OpFENCE
		case 1: // 001 = FENCE.I
			in.Op = OpFENCEI
		default:
			return in, unknownFunct(instr)
		}
	default:
		return in, unknownOpcode(instr)
	}
	return in, nil
}

func decodeOp(funct3 U64, funct7 U64) (Op, bool) {
	switch funct7 {
	case 0x00:
		return [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}[funct3], true
	case 0x20:
		switch funct3 {
		case 0: // 000 = SUB
			return OpSUB, true
		case 5: // 101 = SRA
			return OpSRA, true
		}
	case 0x01: // RV M extension
		return [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}[funct3], true
	}
	return OpInvalid, false
}

func decodeOp32(funct3 U64, funct7 U64) (Op, bool) {
	switch funct7 {
	case 0x00:
		switch funct3 {
		case 0: // 000 = ADDW
			return OpADDW, true
		case 1: // 001 = SLLW
			return OpSLLW, true
		case 5: // 101 = SRLW
			return OpSRLW, true
		}
	case 0x20:
		switch funct3 {
		case 0: // 000 = SUBW
			return OpSUBW, true
		case 5: // 101 = SRAW
			return OpSRAW, true
		}
	case 0x01: // RV M extension
		switch funct3 {
		case 0: // 000 = MULW
			return OpMULW, true
		case 4: // 100 = DIVW
			return OpDIVW, true
		case 5: // 101 = DIVUW
			return OpDIVUW, true
		case 6: // 110 = REMW
			return OpREMW, true
		case 7: // 111 = REMUW
			return OpREMUW, true
		}
	}
	return OpInvalid, false
}

func decodeSystem(in Instruction, instr uint32) (Instruction, *InstrError) {
	raw := U64(instr)
	funct3 := parseFunct3(raw)
	switch funct3 {
	case 0: // 000 = ECALL/EBREAK and the privileged instructions
		funct7 := parseFunct7(raw)
		switch {
		case funct7 == 0x00 && in.Rs1 == 0 && in.Rd == 0 && in.Rs2 == 0:
			in.Op = OpECALL
		case funct7 == 0x00 && in.Rs1 == 0 && in.Rd == 0 && in.Rs2 == 1:
			in.Op = OpEBREAK
		case funct7 == 0x08 && in.Rs2 == 2: // 0001000_00010
			in.Op = OpSRET
		case funct7 == 0x08 && in.Rs2 == 5: // 0001000_00101
			in.Op = OpWFI
		case funct7 == 0x18 && in.Rs2 == 2: // 0011000_00010
			in.Op = OpMRET
		case funct7 == 0x09 && in.Rd == 0: // 0001001
			in.Op = OpSFENCEVMA
		default:
			return in, instrError(riscv.ErrInvalidSystemInstr, instr,
				fmt.Errorf("%w: system instruction funct7 0x%02x rs2 %d", ErrUnknownInstruction, funct7, in.Rs2))
		}
		return in, nil
	case 4:
		return in, unknownFunct(instr)
	}
	// CSR instructions
	in.CSR = parseCSSR(raw)
	if !iszero64(and64(funct3, toU64(4))) {
		// the rs1 field is the zero-extended 5 bit immediate
		in.Imm = in.Rs1
	}
	in.Op = [8]Op{1: OpCSRRW, 2: OpCSRRS, 3: OpCSRRC, 5: OpCSRRWI, 6: OpCSRRSI, 7: OpCSRRCI}[funct3]
	return in, nil
}
