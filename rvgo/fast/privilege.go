package fast

import (
	"fmt"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

const (
	csrModeWrite = 1 // ?01 = CSRRW(I)
	csrModeSet   = 2 // ?10 = CSRRS(I)
	csrModeClear = 3 // ?11 = CSRRC(I)
)

// updateCSR performs the read-modify-write of a Zicsr instruction and returns the prior value.
func (state *VMState) updateCSR(num U64, v U64, mode U64) (out U64) {
	out = state.readCSR(num)
	switch mode {
	case csrModeWrite:
	case csrModeSet:
		v = or64(out, v)
	case csrModeClear:
		v = and64(out, not64(v))
	default:
		panic(fmt.Errorf("unknown CSR mode: %d", mode))
	}
	state.writeCSR(num, v)
	return
}

// sret returns from a supervisor trap handler:
// pc = sepc, mode = SPP, SIE = SPIE, SPIE = 1, SPP = 0.
func (state *VMState) sret() {
	status := state.readCSR(riscv.CsrSstatus)
	state.setPC(state.readCSR(riscv.CsrSepc))
	switch GetSPP(status) {
	case 1:
		state.Mode = ModeSupervisor
	default:
		state.Mode = ModeUser
	}
	status = SetSIE(status, GetSPIE(status))
	status = SetSPIE(status, toU64(1))
	status = SetSPP(status, toU64(0))
	state.writeCSR(riscv.CsrSstatus, status)
}

// mret returns from a machine trap handler:
// pc = mepc, mode = MPP, MIE = MPIE, MPIE = 1, MPP = 0.
func (state *VMState) mret() {
	status := state.readCSR(riscv.CsrMstatus)
	state.setPC(state.readCSR(riscv.CsrMepc))
	switch GetMPP(status) {
	case 2:
		state.Mode = ModeMachine
	case 1:
		state.Mode = ModeSupervisor
	default:
		state.Mode = ModeUser
	}
	status = SetMIE(status, GetMPIE(status))
	status = SetMPIE(status, toU64(1))
	status = SetMPP(status, toU64(0))
	state.writeCSR(riscv.CsrMstatus, status)
}
