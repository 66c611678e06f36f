package mm

// Page size constants.
const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert an address to a page number or the reverse.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)
)

// Physical and virtual memory layout. Physical memory is identity-mapped by
// the kernel address space; the top of virtual memory extends past physical
// memory and is where each process gets its initial stack page.
const (
	// MemSizePhysical is the total amount of simulated physical memory.
	MemSizePhysical = uintptr(0x200000)

	// MemSizeVirtual is the size of each process's virtual address space.
	MemSizeVirtual = uintptr(0x300000)

	// NumFrames is the number of physical page frames.
	NumFrames = MemSizePhysical >> PageShift

	// KernelStartAddr is where the kernel code and data begin.
	KernelStartAddr = uintptr(0x40000)

	// KernelEndAddr is the first address past the kernel code and data.
	KernelEndAddr = uintptr(0x78000)

	// KernelStackTop is the top of the kernel stack; the page right below
	// it belongs to the kernel.
	KernelStackTop = uintptr(0x80000)

	// ReservedIOStart and ReservedIOEnd bound the memory-mapped I/O hole.
	ReservedIOStart = uintptr(0xA0000)
	ReservedIOEnd   = uintptr(0x100000)

	// ConsoleAddr is the CGA console page inside the I/O hole. It is the
	// only reserved page that user processes are allowed to access.
	ConsoleAddr = uintptr(0xB8000)

	// ProcStartAddr is where process-owned memory begins. Everything
	// below it (except the console) is protected from user access.
	ProcStartAddr = uintptr(0x100000)

	// ProcImageSize is the size of each boot-time process image slot.
	ProcImageSize = uintptr(0x40000)
)
