package fast

// Functions to parse the instruction field values from the different RISC-V encoding types.
// All immediates are returned sign-extended to 64 bits, with the hardwired zero bits in place.

func parseImmTypeI(instr U64) U64 {
	return signExtend64(shr64(toU64(20), and64(instr, u32Mask())), toU64(11))
}

// imm[11:5|4:0] = inst[31:25|11:7]
func parseImmTypeS(instr U64) U64 {
	return signExtend64(
		or64(
			shl64(toU64(5), shr64(toU64(25), and64(instr, u32Mask()))),
			and64(shr64(toU64(7), instr), toU64(0x1F)),
		),
		toU64(11),
	)
}

// imm[12|10:5|4:1|11] = inst[31|30:25|11:8|7]
func parseImmTypeB(instr U64) U64 {
	return signExtend64(
		or64(
			or64(
				shl64(toU64(1), and64(shr64(toU64(8), instr), toU64(0xF))),
				shl64(toU64(5), and64(shr64(toU64(25), instr), toU64(0x3F))),
			),
			or64(
				shl64(toU64(11), and64(shr64(toU64(7), instr), toU64(1))),
				shl64(toU64(12), and64(shr64(toU64(31), instr), toU64(1))),
			),
		),
		toU64(12),
	)
}

// imm[31:12] = inst[31:12], sign-extended as a 32 bit value
func parseImmTypeU(instr U64) U64 {
	return signExtend64(and64(instr, 0xFFFF_F000), toU64(31))
}

// imm[20|10:1|11|19:12] = inst[31|30:21|20|19:12]
func parseImmTypeJ(instr U64) U64 {
	return signExtend64(
		or64(
			or64(
				shl64(toU64(1), and64(shr64(toU64(21), instr), 0x3FF)),
				shl64(toU64(11), and64(shr64(toU64(20), instr), toU64(1))),
			),
			or64(
				shl64(toU64(12), and64(shr64(toU64(12), instr), toU64(0xFF))),
				shl64(toU64(20), and64(shr64(toU64(31), instr), toU64(1))),
			),
		),
		toU64(20),
	)
}

// parseCSSR returns the 12 bit CSR number of a Zicsr instruction.
func parseCSSR(instr U64) U64 {
	return and64(shr64(toU64(20), instr), 0xFFF)
}

func parseOpcode(instr U64) U64 {
	return and64(instr, toU64(0x7F))
}

func parseRd(instr U64) U64 {
	return and64(shr64(toU64(7), instr), toU64(0x1F))
}

func parseFunct3(instr U64) U64 {
	return and64(shr64(toU64(12), instr), toU64(0x7))
}

func parseRs1(instr U64) U64 {
	return and64(shr64(toU64(15), instr), toU64(0x1F))
}

func parseRs2(instr U64) U64 {
	return and64(shr64(toU64(20), instr), toU64(0x1F))
}

func parseFunct7(instr U64) U64 {
	return and64(shr64(toU64(25), instr), toU64(0x7F))
}

func ParseImmTypeI(instr U64) U64 {
	return parseImmTypeI(instr)
}

func ParseImmTypeS(instr U64) U64 {
	return parseImmTypeS(instr)
}

func ParseImmTypeB(instr U64) U64 {
	return parseImmTypeB(instr)
}

func ParseImmTypeU(instr U64) U64 {
	return parseImmTypeU(instr)
}

func ParseImmTypeJ(instr U64) U64 {
	return parseImmTypeJ(instr)
}

func ParseOpcode(instr U64) U64 {
	return parseOpcode(instr)
}

func ParseRd(instr U64) U64 {
	return parseRd(instr)
}

func ParseFunct3(instr U64) U64 {
	return parseFunct3(instr)
}

func ParseRs1(instr U64) U64 {
	return parseRs1(instr)
}

func ParseRs2(instr U64) U64 {
	return parseRs2(instr)
}

func ParseFunct7(instr U64) U64 {
	return parseFunct7(instr)
}
