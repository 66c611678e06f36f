package kmain

import (
	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/proc"
)

var (
	errNoSuchProgram = &kernel.Error{Module: "kmain", Message: "no such program image"}
	errImageTooLarge = &kernel.Error{Module: "kmain", Message: "program image exceeds its code/data window"}
	errImageUnmapped = &kernel.Error{Module: "kmain", Message: "code/data window not mapped"}
)

// images are the flat program images shipped with the kernel, one per boot
// program. Image bytes are opaque to the kernel; they stand in for compiled
// user programs. Images 0 to 3 are the default quartet, image 4 is the fork
// test and image 5 the fork-exit test.
var images = [][]byte{
	flatImage(0xa0),
	flatImage(0xa1),
	flatImage(0xa2),
	flatImage(0xa3),
	flatImage(0xf4),
	flatImage(0xf5),
}

func flatImage(marker byte) []byte {
	img := make([]byte, mm.PageSize)
	for i := range img {
		img[i] = marker ^ byte(i)
	}
	return img
}

// imageWindowPages is the size of each process's code/data window in pages.
const imageWindowPages = 2

// loadImage claims the frames of the process's code/data window, copies the
// program image into them through the process's own page tables and points
// the saved instruction pointer at the window base.
func (k *Kernel) loadImage(p *proc.Process, program int) *kernel.Error {
	if program < 0 || program >= len(images) {
		return errNoSuchProgram
	}

	img := images[program]
	if uintptr(len(img)) > imageWindowPages*mm.PageSize {
		return errImageTooLarge
	}

	base := mm.ProcStartAddr + uintptr(p.PID-1)*mm.ProcImageSize
	for off := uintptr(0); off < imageWindowPages*mm.PageSize; off += mm.PageSize {
		if err := k.Alloc.AllocFrameAt(base+off, mm.Owner(p.PID)); err != nil {
			return err
		}
	}

	for off := uintptr(0); off < uintptr(len(img)); off += mm.PageSize {
		mapping := p.Space.Lookup(base + off)
		if !mapping.Mapped() {
			return errImageUnmapped
		}

		chunk := img[off:]
		if uintptr(len(chunk)) > mm.PageSize {
			chunk = chunk[:mm.PageSize]
		}
		copy(k.Mem.FrameBytes(mapping.Frame), chunk)
	}

	p.Regs.EIP = uint32(base)
	return nil
}
