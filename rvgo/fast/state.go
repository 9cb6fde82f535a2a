package fast

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum-optimism/optimism/cannon/serialize"
	"github.com/ethereum-optimism/optimism/op-service/ioutil"
	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

// Mode is the privilege level the hart executes in.
type Mode uint8

const (
	ModeUser       Mode = 0b00
	ModeSupervisor Mode = 0b01
	ModeMachine    Mode = 0b11
)

func (m Mode) String() string {
	switch m {
	case ModeUser:
		return "user"
	case ModeSupervisor:
		return "supervisor"
	case ModeMachine:
		return "machine"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeUser, ModeSupervisor, ModeMachine:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("invalid privilege mode %d", uint8(m))
	}
}

func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "user":
		*m = ModeUser
	case "supervisor":
		*m = ModeSupervisor
	case "machine":
		*m = ModeMachine
	default:
		return fmt.Errorf("unknown privilege mode %q", text)
	}
	return nil
}

// CSRBank holds all 4096 CSR slots, addressed by their 12 bit number.
type CSRBank [riscv.CsrCount]uint64

type csrEntry struct {
	Index uint64 `json:"index"`
	Value uint64 `json:"value"`
}

// MarshalJSON only encodes the non-zero slots.
func (b CSRBank) MarshalJSON() ([]byte, error) {
	entries := make([]csrEntry, 0)
	for i, v := range b {
		if v != 0 {
			entries = append(entries, csrEntry{Index: uint64(i), Value: v})
		}
	}
	return json.Marshal(entries)
}

func (b *CSRBank) UnmarshalJSON(data []byte) error {
	var entries []csrEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*b = CSRBank{}
	for _, e := range entries {
		if e.Index >= riscv.CsrCount {
			return fmt.Errorf("CSR index %#x out of range", e.Index)
		}
		b[e.Index] = e.Value
	}
	return nil
}

// VMState is the complete architectural state of a single hart.
// It is exclusively owned by whoever executes instructions against it.
type VMState struct {
	Memory *Memory `json:"memory"`

	PC   uint64 `json:"pc"`
	Mode Mode   `json:"mode"`

	Registers [32]uint64 `json:"registers"`
	CSR       CSRBank    `json:"csr"`

	Step uint64 `json:"step"`
}

// NewVMState creates a zeroed machine-mode state, with the stack pointer at the top of memory.
func NewVMState(memSize uint64) *VMState {
	s := &VMState{
		Memory: NewMemory(memSize),
		Mode:   ModeMachine,
	}
	s.Registers[riscv.RegSP] = memSize
	return s
}

// NewVMStateWithImage creates a state with the image placed at address 0.
func NewVMStateWithImage(image []byte, memSize uint64) (*VMState, error) {
	if err := checkMemorySize(memSize); err != nil {
		return nil, err
	}
	if uint64(len(image)) > memSize {
		return nil, fmt.Errorf("image of %d bytes does not fit in memory of %d bytes", len(image), memSize)
	}
	s := NewVMState(memSize)
	if err := s.Memory.SetUnaligned(0, image); err != nil {
		return nil, err
	}
	return s, nil
}

func (state *VMState) getPC() U64 {
	return state.PC
}

func (state *VMState) setPC(pc U64) {
	state.PC = pc
}

func (state *VMState) loadRegister(num U64) U64 {
	return state.Registers[num&0x1F]
}

// writeRegister ignores writes to x0.
func (state *VMState) writeRegister(num U64, val U64) {
	num &= 0x1F
	if num == 0 {
		return
	}
	state.Registers[num] = val
}

func (state *VMState) readCSR(num U64) U64 {
	return state.CSR[num&0xFFF]
}

func (state *VMState) writeCSR(num U64, v U64) {
	state.CSR[num&0xFFF] = v
}

// loadMem reads size bytes at addr, sign-extending the value if signed is set.
func (state *VMState) loadMem(addr U64, size U64, signed bool) (U64, error) {
	v, err := state.Memory.Load(addr, size)
	if err != nil {
		return 0, err
	}
	if signed && size < 8 {
		v = signExtend64(v, shl64(toU64(3), size)-1)
	}
	return v, nil
}

func (state *VMState) storeMem(addr U64, size U64, value U64) error {
	return state.Memory.Store(addr, size, value)
}

// Register returns the value of register x<num>; x0 always reads 0.
func (state *VMState) Register(num uint64) uint64 {
	if num == 0 {
		return 0
	}
	return state.loadRegister(num)
}

func (state *VMState) ReadCSR(num uint64) uint64 {
	return state.readCSR(num)
}

func (state *VMState) WriteCSR(num uint64, v uint64) {
	state.writeCSR(num, v)
}

// Fetch reads the 4-byte little-endian instruction word at the PC.
func (state *VMState) Fetch() (uint32, error) {
	v, err := state.Memory.Load(state.PC, 4)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch instruction: %w", err)
	}
	return uint32(v), nil
}

// Instr returns the instruction word at the PC, or 0 if the PC is outside of memory.
func (state *VMState) Instr() uint32 {
	v, err := state.Fetch()
	if err != nil {
		return 0
	}
	return v
}

// isBinary selects the binary snapshot format by file name, any other name is JSON.
func isBinary(path string) bool {
	return strings.HasSuffix(path, ".bin") || strings.HasSuffix(path, ".bin.gz")
}

// LoadVMStateFromFile reads a JSON or binary snapshot, gzip-compressed if the path ends in .gz.
func LoadVMStateFromFile(path string) (*VMState, error) {
	var state *VMState
	var err error
	if isBinary(path) {
		state, err = serialize.LoadSerializedBinary[VMState](path)
	} else {
		state, err = jsonutil.LoadJSON[VMState](path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state %q: %w", path, err)
	}
	if state.Memory == nil {
		return nil, fmt.Errorf("state %q has no memory", path)
	}
	return state, nil
}

// WriteVMStateToFile atomically writes a snapshot in the format LoadVMStateFromFile picks for path.
// "-" writes to stdout, an empty path writes nothing.
func WriteVMStateToFile(path string, state *VMState, perm os.FileMode) error {
	if path != "" && path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	target := ioutil.ToStdOutOrFileOrNoop(path, perm)
	if isBinary(path) {
		return serialize.WriteSerializedBinary(state, target)
	}
	return jsonutil.WriteJSON(state, target)
}

// Serialize writes the state in a binary format which can be read again using Deserialize.
// All numbers are big endian:
//
//	pc                uint64
//	mode              uint8
//	step              uint64
//	registers         [32]uint64
//	non-zero CSRs     uint64 count, then (index uint64, value uint64) pairs
//	memory            see Memory.Serialize
func (state *VMState) Serialize(out io.Writer) error {
	bout := serialize.NewBinaryWriter(out)
	if err := bout.WriteUInt(state.PC); err != nil {
		return err
	}
	if err := bout.WriteUInt(uint8(state.Mode)); err != nil {
		return err
	}
	if err := bout.WriteUInt(state.Step); err != nil {
		return err
	}
	for _, r := range state.Registers {
		if err := bout.WriteUInt(r); err != nil {
			return err
		}
	}
	var csrCount uint64
	for _, v := range state.CSR {
		if v != 0 {
			csrCount++
		}
	}
	if err := bout.WriteUInt(csrCount); err != nil {
		return err
	}
	for i, v := range state.CSR {
		if v == 0 {
			continue
		}
		if err := bout.WriteUInt(uint64(i)); err != nil {
			return err
		}
		if err := bout.WriteUInt(v); err != nil {
			return err
		}
	}
	return state.Memory.Serialize(out)
}

func (state *VMState) Deserialize(in io.Reader) error {
	bin := serialize.NewBinaryReader(in)
	if err := bin.ReadUInt(&state.PC); err != nil {
		return err
	}
	var mode uint8
	if err := bin.ReadUInt(&mode); err != nil {
		return err
	}
	switch m := Mode(mode); m {
	case ModeUser, ModeSupervisor, ModeMachine:
		state.Mode = m
	default:
		return fmt.Errorf("invalid privilege mode %d", mode)
	}
	if err := bin.ReadUInt(&state.Step); err != nil {
		return err
	}
	for i := range state.Registers {
		if err := bin.ReadUInt(&state.Registers[i]); err != nil {
			return err
		}
	}
	var csrCount uint64
	if err := bin.ReadUInt(&csrCount); err != nil {
		return err
	}
	if csrCount > riscv.CsrCount {
		return fmt.Errorf("too many CSR entries: %d", csrCount)
	}
	state.CSR = CSRBank{}
	for i := uint64(0); i < csrCount; i++ {
		var index, value uint64
		if err := bin.ReadUInt(&index); err != nil {
			return err
		}
		if err := bin.ReadUInt(&value); err != nil {
			return err
		}
		if index >= riscv.CsrCount {
			return fmt.Errorf("CSR index %#x out of range", index)
		}
		state.CSR[index] = value
	}
	state.Memory = new(Memory)
	return state.Memory.Deserialize(in)
}
