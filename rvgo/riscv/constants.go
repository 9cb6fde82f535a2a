package riscv

const (
	// DefaultMemorySize is the capacity of the flat physical address space (128 MiB).
	DefaultMemorySize = 1024 * 1024 * 128

	RegZero = 0
	RegRA   = 1
	RegSP   = 2
)

// Machine-level CSRs
const (
	CsrMhartid    = 0xf14
	CsrMstatus    = 0x300
	CsrMedeleg    = 0x302
	CsrMideleg    = 0x303
	CsrMie        = 0x304
	CsrMtvec      = 0x305
	CsrMcounteren = 0x306
	CsrMscratch   = 0x340
	CsrMepc       = 0x341
	CsrMcause     = 0x342
	CsrMtval      = 0x343
)

// Supervisor-level CSRs
const (
	CsrSstatus  = 0x100
	CsrSie      = 0x104
	CsrStvec    = 0x105
	CsrSscratch = 0x140
	CsrSepc     = 0x141
	CsrScause   = 0x142
	CsrStval    = 0x143
	CsrSip      = 0x144
	CsrSatp     = 0x180

	CsrCount = 1 << 12
)

// Status register bit positions
const (
	StatusSIE  = 1
	StatusMIE  = 3
	StatusSPIE = 5
	StatusMPIE = 7
	StatusSPP  = 8
	StatusMPP  = 11 // two bits wide: [12:11]
)

// Opcodes, bits [6:0] of every 32-bit instruction
const (
	OpcodeLoad    = 0x03
	OpcodeMiscMem = 0x0F
	OpcodeOpImm   = 0x13
	OpcodeAuipc   = 0x17
	OpcodeOpImm32 = 0x1B
	OpcodeStore   = 0x23
	OpcodeOp      = 0x33
	OpcodeLui     = 0x37
	OpcodeOp32    = 0x3B
	OpcodeBranch  = 0x63
	OpcodeJalr    = 0x67
	OpcodeJal     = 0x6F
	OpcodeSystem  = 0x73
)

// Error codes attached to execution failures, so tooling can tell causes apart without string matching.
const (
	ErrUnknownOpCode      = uint64(0xf001c0de)
	ErrUnknownFunct       = uint64(0xf001f00c)
	ErrInvalidSystemInstr = uint64(0xf0015e5)
	ErrEnvironmentCall    = uint64(0xf001ca11)
	ErrBreakpoint         = uint64(0xf001b4ea)
	ErrMemoryOutOfBounds  = uint64(0xbad10ad0)
	ErrMemoryAccessSize   = uint64(0xbad512e0)
)

// ABINames are the calling-convention names of x0..x31.
var ABINames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2", "s0", "s1", "a0", "a1", "a2", "a3",
	"a4", "a5", "a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"t3", "t4", "t5", "t6",
}
