package fast

import (
	"fmt"
	"strings"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

// DumpRegisters formats x0..x31 with their ABI names, four registers per line.
func DumpRegisters(state *VMState) string {
	var sb strings.Builder
	for i := 0; i < 32; i += 4 {
		for j := i; j < i+4; j++ {
			if j > i {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "x%02d(%s)=%#18x", j, riscv.ABINames[j], state.Register(uint64(j)))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// DumpCSRs formats the trap-handling CSRs of machine and supervisor mode, and the current mode.
func DumpCSRs(state *VMState) string {
	return fmt.Sprintf("mstatus=%#18x mtvec=%#18x mepc=%#18x mcause=%#18x\n"+
		"sstatus=%#18x stvec=%#18x sepc=%#18x scause=%#18x\n"+
		"mode=%s\n",
		state.readCSR(riscv.CsrMstatus), state.readCSR(riscv.CsrMtvec), state.readCSR(riscv.CsrMepc), state.readCSR(riscv.CsrMcause),
		state.readCSR(riscv.CsrSstatus), state.readCSR(riscv.CsrStvec), state.readCSR(riscv.CsrSepc), state.readCSR(riscv.CsrScause),
		state.Mode)
}
