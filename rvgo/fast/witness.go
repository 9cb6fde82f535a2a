package fast

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rv64sim/rv64sim/rvgo/riscv"
)

// StateWitnessSize is the length of an encoded state:
// memory root, CSR root, pc, mode, step, then the 32 registers.
const StateWitnessSize = 32 + 32 + 8 + 1 + 8 + 32*8

func HashPair(left, right [32]byte) [32]byte {
	return crypto.Keccak256Hash(left[:], right[:])
}

var zeroHashes = func() [256][32]byte {
	// empty parts of the tree are all zero. Precompute the hash of each full-zero range sub-tree level.
	var out [256][32]byte
	for i := 1; i < 256; i++ {
		out[i] = HashPair(out[i-1], out[i-1])
	}
	return out
}()

// merkleize folds the leaves into a binary tree of the given depth.
// Missing leaves, and missing subtrees, are zero.
func merkleize(leaves map[uint64][32]byte, depth int) [32]byte {
	level := leaves
	for d := 0; d < depth; d++ {
		next := make(map[uint64][32]byte, (len(level)+1)/2)
		for i, h := range level {
			parent := i >> 1
			if _, ok := next[parent]; ok {
				continue
			}
			var left, right [32]byte
			if i&1 == 0 {
				left = h
				right = zeroHashes[d]
				if sibling, ok := level[i|1]; ok {
					right = sibling
				}
			} else {
				right = h
				left = zeroHashes[d]
				if sibling, ok := level[i&^1]; ok {
					left = sibling
				}
			}
			next[parent] = HashPair(left, right)
		}
		level = next
	}
	if root, ok := level[0]; ok {
		return root
	}
	return zeroHashes[depth]
}

// treeDepth is the smallest depth whose tree holds n leaves.
func treeDepth(n uint64) int {
	depth := 0
	for (uint64(1) << depth) < n {
		depth++
	}
	return depth
}

// MerkleRoot commits to the memory contents. Every page is a leaf: the keccak256 of
// its bytes, or the zero leaf if the page is all zeroes, so zeroed memory
// hashes to zeroHashes[depth].
func (m *Memory) MerkleRoot() [32]byte {
	leaves := make(map[uint64][32]byte)
	_ = m.ForEachPage(func(pageIndex uint64, page []byte) error {
		leaves[pageIndex] = crypto.Keccak256Hash(page)
		return nil
	})
	return merkleize(leaves, treeDepth(m.pageCapacity()))
}

// CSRRoot commits to the CSR bank, one leaf per non-zero slot.
func (b *CSRBank) CSRRoot() [32]byte {
	leaves := make(map[uint64][32]byte)
	var buf [8]byte
	for i, v := range b {
		if v == 0 {
			continue
		}
		binary.BigEndian.PutUint64(buf[:], v)
		leaves[uint64(i)] = crypto.Keccak256Hash(buf[:])
	}
	return merkleize(leaves, treeDepth(riscv.CsrCount))
}

type StateWitness []byte

func (state *VMState) EncodeWitness() StateWitness {
	out := make([]byte, 0, StateWitnessSize)
	memRoot := state.Memory.MerkleRoot()
	out = append(out, memRoot[:]...)
	csrRoot := state.CSR.CSRRoot()
	out = append(out, csrRoot[:]...)
	out = binary.BigEndian.AppendUint64(out, state.PC)
	out = append(out, uint8(state.Mode))
	out = binary.BigEndian.AppendUint64(out, state.Step)
	for _, r := range state.Registers {
		out = binary.BigEndian.AppendUint64(out, r)
	}
	return out
}

func (sw StateWitness) StateHash() (common.Hash, error) {
	if len(sw) != StateWitnessSize {
		return common.Hash{}, fmt.Errorf("invalid witness length: got %d, expected %d", len(sw), StateWitnessSize)
	}
	return crypto.Keccak256Hash(sw), nil
}
