package fast

import "github.com/holiman/uint256"

// 64-bit helpers used by the execute stage. Shift helpers take the shift amount first.

type U64 = uint64

type U256 = uint256.Int

func toU64(v uint8) U64 { return uint64(v) }

func u64Mask() uint64 { // max uint64
	return 0xFFFF_FFFF_FFFF_FFFF
}

func u32Mask() uint64 {
	return 0xFFFF_FFFF
}

// mask32Signed64 truncates to 32 bits and sign-extends the result back to 64 bits.
func mask32Signed64(v U64) U64 {
	return signExtend64(and64(v, u32Mask()), toU64(31))
}

// signExtend64 extends the given bit (counting from 0) of v into all higher bits.
func signExtend64(v uint64, bit uint64) uint64 {
	switch and64(v, shl64(bit, 1)) {
	case 0:
		// fill with zeroes, by masking
		return and64(v, shr64(sub64(63, bit), u64Mask()))
	default:
		// fill with ones, by or-ing
		return or64(v, shl64(bit, shr64(bit, u64Mask())))
	}
}

func u64ToU256(v U64) *U256 {
	return new(uint256.Int).SetUint64(v)
}

func signExtend64To256(v U64) *U256 {
	out := u64ToU256(v)
	if int64(v) < 0 {
		ones := new(uint256.Int).Not(new(uint256.Int))
		out.Or(out, ones.Lsh(ones, 64))
	}
	return out
}

// mulHigh64 returns bits [127:64] of the 256-bit product x*y.
func mulHigh64(x, y *U256) U64 {
	prod := new(uint256.Int).Mul(x, y)
	return prod.Rsh(prod, 64).Uint64()
}

func add64(x, y uint64) uint64 {
	return x + y
}

func sub64(x, y uint64) uint64 {
	return x - y
}

func mul64(x, y uint64) uint64 {
	return x * y
}

// div64 follows RISC-V: division by zero yields all ones.
func div64(x, y uint64) uint64 {
	if y == 0 {
		return u64Mask()
	}
	return x / y
}

// sdiv64 follows RISC-V: division by zero yields -1, and MinInt64 / -1 overflows to MinInt64.
func sdiv64(x, y uint64) uint64 {
	if y == 0 {
		return u64Mask()
	}
	if x == uint64(1<<63) && y == ^uint64(0) {
		return 1 << 63
	}
	return uint64(int64(x) / int64(y))
}

// mod64 follows RISC-V: remainder of division by zero is the dividend.
func mod64(x, y uint64) uint64 {
	if y == 0 {
		return x
	}
	return x % y
}

func smod64(x, y uint64) uint64 {
	if y == 0 {
		return x
	}
	if x == uint64(1<<63) && y == ^uint64(0) {
		return 0
	}
	return uint64(int64(x) % int64(y))
}

func not64(x uint64) uint64 {
	return ^x
}

func lt64(x, y uint64) uint64 {
	if x < y {
		return 1
	} else {
		return 0
	}
}

func slt64(x, y uint64) uint64 {
	if int64(x) < int64(y) {
		return 1
	} else {
		return 0
	}
}

func eq64(x, y uint64) uint64 {
	if x == y {
		return 1
	} else {
		return 0
	}
}

func iszero64(x uint64) bool {
	return x == 0
}

func and64(x, y uint64) uint64 {
	return x & y
}

func or64(x, y uint64) uint64 {
	return x | y
}

func xor64(x, y uint64) uint64 {
	return x ^ y
}

func shl64(x, y uint64) uint64 {
	return y << x
}

func shr64(x, y uint64) uint64 {
	return y >> x
}

func sar64(x, y uint64) uint64 {
	return uint64(int64(y) >> x)
}
