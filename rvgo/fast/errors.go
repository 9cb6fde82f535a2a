package fast

import (
	"errors"
	"fmt"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

var (
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrMemoryOutOfBounds  = errors.New("memory access out of bounds")
	ErrMemorySize         = errors.New("unsupported memory access size")
	ErrEnvironmentCall    = errors.New("environment call")
	ErrBreakpoint         = errors.New("breakpoint")
)

// InstrError describes why an instruction could not be executed.
// Code is one of the riscv.Err* codes; Err is one of the sentinel errors above,
// possibly wrapped with more detail.
type InstrError struct {
	Code   uint64
	Instr  uint32
	Opcode uint32
	PC     uint64
	Err    error
}

func (e *InstrError) Error() string {
	return fmt.Sprintf("instruction %08x (opcode 0x%02x) at pc %016x failed with code %x: %v", e.Instr, e.Opcode, e.PC, e.Code, e.Err)
}

func (e *InstrError) Unwrap() error {
	return e.Err
}

func instrError(code uint64, instr uint32, err error) *InstrError {
	return &InstrError{
		Code:   code,
		Instr:  instr,
		Opcode: instr & 0x7F,
		Err:    err,
	}
}

func unknownOpcode(instr uint32) *InstrError {
	return instrError(riscv.ErrUnknownOpCode, instr, fmt.Errorf("%w: opcode 0x%02x", ErrUnknownInstruction, instr&0x7F))
}

func unknownFunct(instr uint32) *InstrError {
	return instrError(riscv.ErrUnknownFunct, instr, fmt.Errorf("%w: opcode 0x%02x funct3 %d funct7 0x%02x",
		ErrUnknownInstruction, instr&0x7F, (instr>>12)&0x7, instr>>25))
}

// memoryCode maps a memory access error to its numeric code.
func memoryCode(err error) uint64 {
	if errors.Is(err, ErrMemorySize) {
		return riscv.ErrMemoryAccessSize
	}
	return riscv.ErrMemoryOutOfBounds
}

func (e *InstrError) withPC(pc uint64) *InstrError {
	e.PC = pc
	return e
}
