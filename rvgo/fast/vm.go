package fast

import (
	"fmt"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

// Execute performs the one operation instr encodes against the state.
//
// The fetch stage has already advanced the PC past instr, so the address of
// the instruction itself is PC-4. An instruction that fails returns an
// *InstrError and leaves the state as it was.
func Execute(s *VMState, instr uint32) error {
	// x0 is hardwired to zero
	s.Registers[0] = 0

	in, ierr := decode(instr)
	if ierr != nil {
		return ierr.withPC(sub64(s.getPC(), toU64(4)))
	}
	if ierr := s.execute(in); ierr != nil {
		return ierr.withPC(sub64(s.getPC(), toU64(4)))
	}
	return nil
}

// ExecuteDecoded runs an instruction that was decoded earlier, see Execute.
func ExecuteDecoded(s *VMState, in Instruction) error {
	s.Registers[0] = 0
	if ierr := s.execute(in); ierr != nil {
		return ierr.withPC(sub64(s.getPC(), toU64(4)))
	}
	return nil
}

func (state *VMState) execute(in Instruction) *InstrError {
	loadRegister := state.loadRegister
	writeRegister := state.writeRegister
	getPC := state.getPC
	setPC := state.setPC

	pc := getPC()                    // already advanced past this instruction
	instrAddr := sub64(pc, toU64(4)) // address of this instruction
	rd, rs1, rs2, imm := in.Rd, in.Rs1, in.Rs2, in.Imm

	switch in.Op {
	case OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU:
		var size U64
		signed := true
		switch in.Op {
		case OpLB:
			size = 1
		case OpLH:
			size = 2
		case OpLW:
			size = 4
		case OpLD:
			size = 8
		case OpLBU:
			size, signed = 1, false
		case OpLHU:
			size, signed = 2, false
		case OpLWU:
			size, signed = 4, false
		}
		memIndex := add64(loadRegister(rs1), imm)
		rdValue, err := state.loadMem(memIndex, size, signed)
		if err != nil {
			return instrError(memoryCode(err), in.Raw, fmt.Errorf("%s: %w", in.Op, err))
		}
		writeRegister(rd, rdValue)

	case OpSB, OpSH, OpSW, OpSD:
		var size U64
		switch in.Op {
		case OpSB:
			size = 1
		case OpSH:
			size = 2
		case OpSW:
			size = 4
		case OpSD:
			size = 8
		}
		memIndex := add64(loadRegister(rs1), imm)
		if err := state.storeMem(memIndex, size, loadRegister(rs2)); err != nil {
			return instrError(memoryCode(err), in.Raw, fmt.Errorf("%s: %w", in.Op, err))
		}

	case OpADDI, OpSLLI, OpSLTI, OpSLTIU, OpXORI, OpSRLI, OpSRAI, OpORI, OpANDI:
		rs1Value := loadRegister(rs1)
		var rdValue U64
		switch in.Op {
		case OpADDI:
			rdValue = add64(rs1Value, imm)
		case OpSLLI:
			rdValue = shl64(imm, rs1Value) // imm is the 6 bit shift amount
		case OpSLTI:
			rdValue = slt64(rs1Value, imm)
		case OpSLTIU:
			rdValue = lt64(rs1Value, imm)
		case OpXORI:
			rdValue = xor64(rs1Value, imm)
		case OpSRLI:
			rdValue = shr64(imm, rs1Value) // logical: fill with zeroes
		case OpSRAI:
			rdValue = sar64(imm, rs1Value) // arithmetic: sign bit is extended
		case OpORI:
			rdValue = or64(rs1Value, imm)
		case OpANDI:
			rdValue = and64(rs1Value, imm)
		}
		writeRegister(rd, rdValue)

	case OpADD, OpSUB, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpSRA, OpOR, OpAND,
		OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU:
		rs1Value := loadRegister(rs1)
		rs2Value := loadRegister(rs2)
		shamt := and64(rs2Value, toU64(0x3F)) // only the low 6 bits are considered in RV64I
		var rdValue U64
		switch in.Op {
		case OpADD:
			rdValue = add64(rs1Value, rs2Value)
		case OpSUB:
			rdValue = sub64(rs1Value, rs2Value)
		case OpSLL:
			rdValue = shl64(shamt, rs1Value)
		case OpSLT:
			rdValue = slt64(rs1Value, rs2Value)
		case OpSLTU:
			rdValue = lt64(rs1Value, rs2Value)
		case OpXOR:
			rdValue = xor64(rs1Value, rs2Value)
		case OpSRL:
			rdValue = shr64(shamt, rs1Value)
		case OpSRA:
			rdValue = sar64(shamt, rs1Value)
		case OpOR:
			rdValue = or64(rs1Value, rs2Value)
		case OpAND:
			rdValue = and64(rs1Value, rs2Value)
		case OpMUL: // signed x signed, lower bits
			rdValue = mul64(rs1Value, rs2Value)
		case OpMULH: // upper bits of signed x signed
			rdValue = mulHigh64(signExtend64To256(rs1Value), signExtend64To256(rs2Value))
		case OpMULHSU: // upper bits of signed x unsigned
			rdValue = mulHigh64(signExtend64To256(rs1Value), u64ToU256(rs2Value))
		case OpMULHU: // upper bits of unsigned x unsigned
			rdValue = mulHigh64(u64ToU256(rs1Value), u64ToU256(rs2Value))
		case OpDIV:
			rdValue = sdiv64(rs1Value, rs2Value)
		case OpDIVU:
			rdValue = div64(rs1Value, rs2Value)
		case OpREM:
			rdValue = smod64(rs1Value, rs2Value)
		case OpREMU:
			rdValue = mod64(rs1Value, rs2Value)
		}
		writeRegister(rd, rdValue)

	case OpADDIW, OpSLLIW, OpSRLIW, OpSRAIW:
		rs1Value := loadRegister(rs1)
		var rdValue U64
		switch in.Op {
		case OpADDIW:
			rdValue = mask32Signed64(add64(rs1Value, imm))
		case OpSLLIW:
			rdValue = mask32Signed64(shl64(imm, rs1Value)) // imm is the 5 bit shift amount
		case OpSRLIW:
			rdValue = mask32Signed64(shr64(imm, and64(rs1Value, u32Mask())))
		case OpSRAIW:
			rdValue = mask32Signed64(sar64(imm, mask32Signed64(rs1Value)))
		}
		writeRegister(rd, rdValue)

	case OpADDW, OpSUBW, OpSLLW, OpSRLW, OpSRAW,
		OpMULW, OpDIVW, OpDIVUW, OpREMW, OpREMUW:
		rs1Value := loadRegister(rs1)
		rs2Value := loadRegister(rs2)
		shamt := and64(rs2Value, toU64(0x1F)) // the shift amount is given by rs2[4:0]
		var rdValue U64
		switch in.Op {
		case OpADDW:
			rdValue = mask32Signed64(add64(rs1Value, rs2Value))
		case OpSUBW:
			rdValue = mask32Signed64(sub64(rs1Value, rs2Value))
		case OpSLLW:
			rdValue = mask32Signed64(shl64(shamt, rs1Value))
		case OpSRLW:
			rdValue = mask32Signed64(shr64(shamt, and64(rs1Value, u32Mask())))
		case OpSRAW:
			rdValue = mask32Signed64(sar64(shamt, mask32Signed64(rs1Value)))
		case OpMULW:
			rdValue = mask32Signed64(mul64(rs1Value, rs2Value))
		case OpDIVW:
			rdValue = mask32Signed64(sdiv64(mask32Signed64(rs1Value), mask32Signed64(rs2Value)))
		case OpDIVUW:
			rdValue = mask32Signed64(div64(and64(rs1Value, u32Mask()), and64(rs2Value, u32Mask())))
		case OpREMW:
			rdValue = mask32Signed64(smod64(mask32Signed64(rs1Value), mask32Signed64(rs2Value)))
		case OpREMUW:
			rdValue = mask32Signed64(mod64(and64(rs1Value, u32Mask()), and64(rs2Value, u32Mask())))
		}
		writeRegister(rd, rdValue)

	case OpLUI:
		writeRegister(rd, imm)

	case OpAUIPC:
		writeRegister(rd, add64(instrAddr, imm))

	case OpBEQ, OpBNE, OpBLT, OpBGE, OpBLTU, OpBGEU:
		rs1Value := loadRegister(rs1)
		rs2Value := loadRegister(rs2)
		branchHit := toU64(0)
		switch in.Op {
		case OpBEQ:
			branchHit = eq64(rs1Value, rs2Value)
		case OpBNE:
			branchHit = and64(not64(eq64(rs1Value, rs2Value)), toU64(1))
		case OpBLT:
			branchHit = slt64(rs1Value, rs2Value)
		case OpBGE:
			branchHit = and64(not64(slt64(rs1Value, rs2Value)), toU64(1))
		case OpBLTU:
			branchHit = lt64(rs1Value, rs2Value)
		case OpBGEU:
			branchHit = and64(not64(lt64(rs1Value, rs2Value)), toU64(1))
		}
		// an untaken branch leaves the PC as advanced by the fetch stage
		if branchHit != 0 {
			setPC(add64(instrAddr, imm))
		}

	case OpJAL:
		writeRegister(rd, pc) // return address: the instruction after this one
		setPC(add64(instrAddr, imm))

	case OpJALR:
		t := pc
		setPC(and64(add64(loadRegister(rs1), imm), not64(toU64(1)))) // least significant bit is set to 0
		writeRegister(rd, t)

	case OpCSRRW, OpCSRRS, OpCSRRC:
		rdValue := state.updateCSR(in.CSR, loadRegister(rs1), U64(in.Op-OpCSRRW)+csrModeWrite)
		writeRegister(rd, rdValue)

	case OpCSRRWI, OpCSRRSI, OpCSRRCI:
		rdValue := state.updateCSR(in.CSR, imm, U64(in.Op-OpCSRRWI)+csrModeWrite)
		writeRegister(rd, rdValue)

	case OpSRET:
		state.sret()

	case OpMRET:
		state.mret()

	case OpECALL:
		return instrError(riscv.ErrEnvironmentCall, in.Raw, fmt.Errorf("%w from %s mode", ErrEnvironmentCall, state.Mode))

	case OpEBREAK:
		return instrError(riscv.ErrBreakpoint, in.Raw, ErrBreakpoint)

	case OpWFI, OpSFENCEVMA, OpFENCE, OpFENCEI:
		// no-op: single hart, no interrupts, no address translation

	default:
		return unknownOpcode(in.Raw)
	}
	return nil
}
