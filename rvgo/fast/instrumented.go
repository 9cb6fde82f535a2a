package fast

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
)

// ErrStepLimit is returned by Run when the step limit is hit before the program returned to address 0.
var ErrStepLimit = errors.New("step limit reached")

// InstrumentedState is the fetch-execute driver around a VMState.
type InstrumentedState struct {
	state *VMState

	log log.Logger

	lastInstr Instruction
}

// NewInstrumentedState wraps the state. The logger may be nil.
func NewInstrumentedState(state *VMState, logger log.Logger) *InstrumentedState {
	if logger == nil {
		logger = log.Root()
	}
	return &InstrumentedState{
		state: state,
		log:   logger,
	}
}

func (m *InstrumentedState) State() *VMState {
	return m.state
}

// LastInstruction returns the most recently fetched instruction, with OpInvalid if it did not decode.
func (m *InstrumentedState) LastInstruction() Instruction {
	return m.lastInstr
}

// Step fetches the instruction at the PC, advances the PC by 4 and executes it.
// On failure the PC is restored, so it points at the instruction that failed.
func (m *InstrumentedState) Step() error {
	s := m.state
	pc := s.PC
	instr, err := s.Fetch()
	if err != nil {
		return instrError(memoryCode(err), 0, err).withPC(pc)
	}
	s.PC = pc + 4

	in, ierr := decode(instr)
	m.lastInstr = in
	if ierr != nil {
		s.PC = pc
		return ierr.withPC(pc)
	}
	m.log.Trace("execute", "step", s.Step, "pc", hexutil.Uint64(pc), "insn", hexutil.Uint64(instr), "op", in)
	if err := ExecuteDecoded(s, in); err != nil {
		s.PC = pc
		return err
	}
	s.Step++
	return nil
}

// Run steps until the program jumps to address 0, an instruction fails, the context is
// canceled, or maxSteps instructions were executed (0 means no limit).
func (m *InstrumentedState) Run(ctx context.Context, maxSteps uint64) error {
	for n := uint64(0); maxSteps == 0 || n < maxSteps; n++ {
		// don't do the ctx err check (includes lock) too often
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := m.Step(); err != nil {
			return fmt.Errorf("failed at step %d: %w", m.state.Step, err)
		}
		if m.state.PC == 0 {
			m.log.Debug("program returned to address 0", "step", m.state.Step)
			return nil
		}
	}
	return ErrStepLimit
}
