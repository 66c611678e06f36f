package mm

// Memory is the simulated physical memory arena: a dense array of page-sized
// slots indexed by frame number. Page tables and process pages are views over
// slots of this arena; nothing in the kernel holds raw pointers into it.
type Memory struct {
	data []byte
}

// NewMemory allocates a zeroed physical memory arena of MemSizePhysical bytes.
func NewMemory() *Memory {
	return &Memory{data: make([]byte, MemSizePhysical)}
}

// FrameBytes returns the page-sized slice backing the given frame. The slice
// aliases the arena; writes through it are writes to physical memory.
func (m *Memory) FrameBytes(f Frame) []byte {
	start := f.Address()
	return m.data[start : start+PageSize : start+PageSize]
}

// CopyFrame copies the full contents of frame src into frame dst.
func (m *Memory) CopyFrame(dst, src Frame) {
	copy(m.FrameBytes(dst), m.FrameBytes(src))
}

// ZeroFrame clears the full contents of frame f.
func (m *Memory) ZeroFrame(f Frame) {
	b := m.FrameBytes(f)
	for i := range b {
		b[i] = 0
	}
}
