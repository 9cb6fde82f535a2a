package fast

import "github.com/rv64sim/rv64sim/rvgo/riscv"

// Accessors for the named fields of mstatus and sstatus.
// Getters return the field value, setters return the updated status word.

func getBit(v U64, bit U64) U64 {
	return and64(shr64(bit, v), toU64(1))
}

func setBit(v U64, bit U64, b U64) U64 {
	return or64(and64(v, not64(shl64(bit, toU64(1)))), shl64(bit, and64(b, toU64(1))))
}

func GetSIE(status U64) U64 { return getBit(status, riscv.StatusSIE) }

func SetSIE(status U64, v U64) U64 { return setBit(status, riscv.StatusSIE, v) }

func GetSPIE(status U64) U64 { return getBit(status, riscv.StatusSPIE) }

func SetSPIE(status U64, v U64) U64 { return setBit(status, riscv.StatusSPIE, v) }

func GetSPP(status U64) U64 { return getBit(status, riscv.StatusSPP) }

func SetSPP(status U64, v U64) U64 { return setBit(status, riscv.StatusSPP, v) }

func GetMIE(status U64) U64 { return getBit(status, riscv.StatusMIE) }

func SetMIE(status U64, v U64) U64 { return setBit(status, riscv.StatusMIE, v) }

func GetMPIE(status U64) U64 { return getBit(status, riscv.StatusMPIE) }

func SetMPIE(status U64, v U64) U64 { return setBit(status, riscv.StatusMPIE, v) }

// GetMPP returns the two bit previous-privilege field [12:11].
func GetMPP(status U64) U64 {
	return and64(shr64(riscv.StatusMPP, status), toU64(3))
}

func SetMPP(status U64, v U64) U64 {
	return or64(and64(status, not64(shl64(riscv.StatusMPP, toU64(3)))), shl64(riscv.StatusMPP, and64(v, toU64(3))))
}
