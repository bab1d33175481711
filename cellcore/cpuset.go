package cellcore

import "fmt"

// FrameSize is the size, in bytes, of the single allocated frame backing a
// "large" CpuSet. Spec §3 describes it as "the configuration's requested
// byte-size" against "a single allocated frame"; the core treats a frame as
// a fixed 4KiB unit, matching the original hypervisor's PAGE_SIZE.
const FrameSize = 4096

// smallBitmapBytes is the inline bitmap capacity of a Cell's small_cpu_set,
// sized like a single machine word (8 bytes on a 64-bit host).
const smallBitmapBytes = 8

// smallMaxCPUID and largeMaxCPUID are the highest representable cpu id for
// each storage form, computed exactly as the original: capacity*8 - 1 bits,
// the large form reserving one word of the frame as a header.
const (
	smallMaxCPUID = smallBitmapBytes*8 - 1
	largeMaxCPUID = (FrameSize-smallBitmapBytes)*8 - 1
)

// CpuSet is a bounded bitmap over physical CPU ids. It is chosen at
// construction to be either "small" (inlined into the owning Cell) or
// "large" (backed by a single allocated frame); the form never changes
// after construction (spec §3, §4.1).
//
// CpuSet carries no internal synchronization: the Suspend/Resume
// coordinator (suspend.go) is the external discipline that ensures no peer
// CPU observes a CpuSet mid-mutation.
type CpuSet struct {
	bitmap  []byte
	maxID   int
	isFrame bool // true if this CpuSet occupies an allocated frame
}

// NewCpuSet chooses the storage form for a CpuSet whose configuration
// requests cpuSetSize bytes of bitmap, and returns the zeroed set. Mirrors
// cell_init in the original control.c: reject outright if the configured
// size wouldn't even fit in one frame, otherwise choose inline vs
// frame-backed purely by comparing cpuSetSize against the inline capacity.
func NewCpuSet(cpuSetSize int) (*CpuSet, error) {
	if cpuSetSize < 0 {
		return nil, newErr(ErrInvalid, "negative cpu set size %d", cpuSetSize)
	}
	if cpuSetSize > FrameSize {
		return nil, newErr(ErrInvalid, "cpu set size %d exceeds frame size %d", cpuSetSize, FrameSize)
	}

	if cpuSetSize <= smallBitmapBytes {
		return &CpuSet{
			bitmap: make([]byte, smallBitmapBytes),
			maxID:  smallMaxCPUID,
		}, nil
	}

	return &CpuSet{
		bitmap:  make([]byte, FrameSize-smallBitmapBytes),
		maxID:   largeMaxCPUID,
		isFrame: true,
	}, nil
}

// CopyBitmap overwrites the set's bitmap with src, zero-extending or
// truncating to the set's own capacity. Used to install a cell
// configuration's requested cpu bitmap after the set's storage form has
// already been chosen from the configuration's declared size.
func (s *CpuSet) CopyBitmap(src []byte) {
	n := copy(s.bitmap, src)
	for i := n; i < len(s.bitmap); i++ {
		s.bitmap[i] = 0
	}
}

// IsFrameBacked reports whether this CpuSet owns an allocated frame (the
// "large" form), which the caller must free when the owning Cell is
// destroyed.
func (s *CpuSet) IsFrameBacked() bool {
	return s.isFrame
}

// MaxCpuID returns the highest cpu id this set's bitmap can represent.
func (s *CpuSet) MaxCpuID() int {
	return s.maxID
}

func (s *CpuSet) inRange(id int) bool {
	return id >= 0 && id <= s.maxID
}

// Test reports whether id is set. Out-of-range ids are treated as absent.
func (s *CpuSet) Test(id int) bool {
	if !s.inRange(id) {
		return false
	}
	byteIdx, bit := id/8, uint(id%8)
	return s.bitmap[byteIdx]&(1<<bit) != 0
}

// Set marks id present. Out-of-range ids are rejected; callers (the
// lifecycle operations) are expected to bounds-check before calling.
func (s *CpuSet) Set(id int) error {
	if !s.inRange(id) {
		return newErr(ErrInvalid, "cpu id %d out of range [0,%d]", id, s.maxID)
	}
	byteIdx, bit := id/8, uint(id%8)
	s.bitmap[byteIdx] |= 1 << bit
	return nil
}

// Clear marks id absent. Out-of-range ids are rejected.
func (s *CpuSet) Clear(id int) error {
	if !s.inRange(id) {
		return newErr(ErrInvalid, "cpu id %d out of range [0,%d]", id, s.maxID)
	}
	byteIdx, bit := id/8, uint(id%8)
	s.bitmap[byteIdx] &^= 1 << bit
	return nil
}

// NextSet returns the smallest set id strictly greater than after, skipping
// except, or (0, false) if none exists. Passing after = -1 starts the scan
// from id 0. Grounded on next_cpu() in the original control.c.
func (s *CpuSet) NextSet(after, except int) (int, bool) {
	for id := after + 1; id <= s.maxID; id++ {
		if id == except {
			continue
		}
		if s.Test(id) {
			return id, true
		}
	}
	return 0, false
}

// Iter returns every set id in ascending order.
func (s *CpuSet) Iter() []int {
	return s.IterExcept(-1)
}

// IterExcept returns every set id in ascending order, skipping except.
func (s *CpuSet) IterExcept(except int) []int {
	var ids []int
	for id, ok := s.NextSet(-1, except); ok; id, ok = s.NextSet(id, except) {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of set ids.
func (s *CpuSet) Count() int {
	n := 0
	for _, b := range s.bitmap {
		for b != 0 {
			n += int(b & 1)
			b >>= 1
		}
	}
	return n
}

func (s *CpuSet) String() string {
	form := "small"
	if s.isFrame {
		form = "large"
	}
	return fmt.Sprintf("CpuSet{%s, max=%d, ids=%v}", form, s.maxID, s.Iter())
}
