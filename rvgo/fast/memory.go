package fast

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Pages are only a serialization and hashing unit: the memory itself is one flat buffer.
// Pages that are entirely zero are omitted from snapshots.
const (
	PageAddrSize = 12
	PageSize     = 1 << PageAddrSize
	PageAddrMask = PageSize - 1
)

// MaxMemorySize bounds the capacity of a memory, and of any snapshot that is loaded.
const MaxMemorySize = 1 << 36

var ErrMemoryTooLarge = errors.New("memory size too large")

func checkMemorySize(size uint64) error {
	if size > MaxMemorySize {
		return fmt.Errorf("%w: %d bytes, at most %d are supported", ErrMemoryTooLarge, size, uint64(MaxMemorySize))
	}
	return nil
}

var zeroPage [PageSize]byte

// Memory is a flat, fixed-capacity, little-endian physical address space starting at address 0.
type Memory struct {
	data []byte
}

func NewMemory(size uint64) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size returns the capacity in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

// inRange checks [addr, addr+size) without overflowing.
func (m *Memory) inRange(addr uint64, size uint64) bool {
	return size <= m.Size() && addr <= m.Size()-size
}

func (m *Memory) boundsErr(addr uint64, size uint64) error {
	return fmt.Errorf("%w: %d bytes at %016x, memory size %d", ErrMemoryOutOfBounds, size, addr, m.Size())
}

// Load reads 1, 2, 4 or 8 bytes, zero-extended to 64 bits.
func (m *Memory) Load(addr U64, size U64) (U64, error) {
	switch size {
	case 1, 2, 4, 8:
	default:
		return 0, fmt.Errorf("%w: %d", ErrMemorySize, size)
	}
	if !m.inRange(addr, size) {
		return 0, m.boundsErr(addr, size)
	}
	var buf [8]byte
	copy(buf[:], m.data[addr:addr+size])
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Store writes the low 1, 2, 4 or 8 bytes of value.
func (m *Memory) Store(addr U64, size U64, value U64) error {
	switch size {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: %d", ErrMemorySize, size)
	}
	if !m.inRange(addr, size) {
		return m.boundsErr(addr, size)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	copy(m.data[addr:addr+size], buf[:size])
	return nil
}

func (m *Memory) GetUnaligned(addr uint64, dest []byte) error {
	if !m.inRange(addr, uint64(len(dest))) {
		return m.boundsErr(addr, uint64(len(dest)))
	}
	copy(dest, m.data[addr:])
	return nil
}

func (m *Memory) SetUnaligned(addr uint64, dat []byte) error {
	if !m.inRange(addr, uint64(len(dat))) {
		return m.boundsErr(addr, uint64(len(dat)))
	}
	copy(m.data[addr:], dat)
	return nil
}

// SetMemoryRange copies everything r produces into memory starting at addr.
// It fails if the data does not fit; bytes that did fit are left written.
func (m *Memory) SetMemoryRange(addr uint64, r io.Reader) error {
	if addr > m.Size() {
		return m.boundsErr(addr, 0)
	}
	n, err := io.ReadFull(r, m.data[addr:])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	if err != nil {
		return err
	}
	var extra [1]byte
	if k, err := io.ReadFull(r, extra[:]); k > 0 {
		return fmt.Errorf("%w: data continues past %016x", ErrMemoryOutOfBounds, addr+uint64(n))
	} else if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (m *Memory) pageCapacity() uint64 {
	return (m.Size() + PageSize - 1) >> PageAddrSize
}

// page returns the bytes of the given page; the last page may be short.
func (m *Memory) page(pageIndex uint64) []byte {
	start := pageIndex << PageAddrSize
	end := start + PageSize
	if end > m.Size() {
		end = m.Size()
	}
	return m.data[start:end]
}

func isZeroPage(p []byte) bool {
	return bytes.Equal(p, zeroPage[:len(p)])
}

// ForEachPage calls fn for every page with at least one non-zero byte, in address order.
func (m *Memory) ForEachPage(fn func(pageIndex uint64, page []byte) error) error {
	for i := uint64(0); i < m.pageCapacity(); i++ {
		p := m.page(i)
		if isZeroPage(p) {
			continue
		}
		if err := fn(i, p); err != nil {
			return err
		}
	}
	return nil
}

// PageCount returns the number of pages holding non-zero data.
func (m *Memory) PageCount() int {
	count := 0
	_ = m.ForEachPage(func(uint64, []byte) error {
		count++
		return nil
	})
	return count
}

func (m *Memory) Usage() string {
	total := uint64(m.PageCount()) * PageSize
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	// KiB, MiB, GiB, TiB, ...
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}

type pageEntry struct {
	Index uint64        `json:"index"`
	Data  hexutil.Bytes `json:"data"`
}

type memoryJSON struct {
	Size  hexutil.Uint64 `json:"size"`
	Pages []pageEntry    `json:"pages"`
}

func (m *Memory) MarshalJSON() ([]byte, error) {
	out := memoryJSON{Size: hexutil.Uint64(m.Size()), Pages: []pageEntry{}}
	_ = m.ForEachPage(func(pageIndex uint64, page []byte) error {
		out.Pages = append(out.Pages, pageEntry{Index: pageIndex, Data: page})
		return nil
	})
	return json.Marshal(out)
}

func (m *Memory) UnmarshalJSON(data []byte) error {
	var in memoryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if err := checkMemorySize(uint64(in.Size)); err != nil {
		return err
	}
	m.data = make([]byte, uint64(in.Size))
	sort.Slice(in.Pages, func(i, j int) bool {
		return in.Pages[i].Index < in.Pages[j].Index
	})
	for i, p := range in.Pages {
		if i > 0 && in.Pages[i-1].Index == p.Index {
			return fmt.Errorf("cannot load duplicate page, entry %d, page index %d", i, p.Index)
		}
		if p.Index >= m.pageCapacity() {
			return fmt.Errorf("page index %d outside of memory of size %d", p.Index, m.Size())
		}
		if len(p.Data) > len(m.page(p.Index)) {
			return fmt.Errorf("page %d has %d bytes, more than fits", p.Index, len(p.Data))
		}
		copy(m.page(p.Index), p.Data)
	}
	return nil
}

// Serialize writes the memory in a simple binary format which can be read again using Deserialize
// The format is a simple concatenation of fields, with prefixed item count for repeating items and using big endian
// encoding for numbers.
//
// memory size       uint64
// len(PageCount)    uint64
// For each non-zero page (in address order):
//
//	page index          uint64
//	page Data           [min(PageSize, size - index*PageSize)]byte
func (m *Memory) Serialize(out io.Writer) error {
	if err := binary.Write(out, binary.BigEndian, m.Size()); err != nil {
		return err
	}
	if err := binary.Write(out, binary.BigEndian, uint64(m.PageCount())); err != nil {
		return err
	}
	return m.ForEachPage(func(pageIndex uint64, page []byte) error {
		if err := binary.Write(out, binary.BigEndian, pageIndex); err != nil {
			return err
		}
		_, err := out.Write(page)
		return err
	})
}

func (m *Memory) Deserialize(in io.Reader) error {
	var size, pageCount uint64
	if err := binary.Read(in, binary.BigEndian, &size); err != nil {
		return err
	}
	if err := binary.Read(in, binary.BigEndian, &pageCount); err != nil {
		return err
	}
	if err := checkMemorySize(size); err != nil {
		return err
	}
	m.data = make([]byte, size)
	for i := uint64(0); i < pageCount; i++ {
		var pageIndex uint64
		if err := binary.Read(in, binary.BigEndian, &pageIndex); err != nil {
			return err
		}
		if pageIndex >= m.pageCapacity() {
			return fmt.Errorf("page index %d outside of memory of size %d", pageIndex, size)
		}
		if _, err := io.ReadFull(in, m.page(pageIndex)); err != nil {
			return err
		}
	}
	return nil
}
