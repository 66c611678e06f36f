package sched

import (
	"testing"

	"github.com/KingOth/systems-programming/kernel"
	"github.com/KingOth/systems-programming/kernel/cpu"
	"github.com/KingOth/systems-programming/kernel/mm"
	"github.com/KingOth/systems-programming/kernel/mm/pmm"
	"github.com/KingOth/systems-programming/kernel/mm/vmm"
	"github.com/KingOth/systems-programming/kernel/proc"
)

func newTestScheduler(t *testing.T, capacity int, runnable ...proc.PID) (*Scheduler, *proc.Table) {
	t.Helper()

	mgr := vmm.NewManager(mm.NewMemory(), pmm.NewAllocator())
	kernelSpace, err := mgr.NewSpace(mm.OwnerKernel)
	if err != nil {
		t.Fatal(err)
	}

	loader := func(p *proc.Process, program int) *kernel.Error { return nil }
	table := proc.NewTable(capacity, mgr, kernelSpace, loader)
	for _, pid := range runnable {
		table.Get(pid).State = proc.Runnable
	}

	return New(table), table
}

func TestNextRoundRobin(t *testing.T) {
	s, _ := newTestScheduler(t, 8, 2, 5, 7)

	pid, ok := s.Next(5)
	if !ok || pid != 7 {
		t.Fatalf("expected Next(5) to select pid 7; got %d (found=%t)", pid, ok)
	}

	pid, ok = s.Next(7)
	if !ok || pid != 2 {
		t.Fatalf("expected Next(7) to wrap around to pid 2; got %d (found=%t)", pid, ok)
	}
}

func TestNextSkipsBrokenAndFree(t *testing.T) {
	s, table := newTestScheduler(t, 8, 2, 3)
	table.Get(3).State = proc.Broken

	pid, ok := s.Next(2)
	if !ok || pid != 2 {
		t.Fatalf("expected Next(2) to wrap past the broken process back to pid 2; got %d (found=%t)", pid, ok)
	}
}

func TestNextNoRunnable(t *testing.T) {
	s, _ := newTestScheduler(t, 8)

	if pid, ok := s.Next(3); ok {
		t.Fatalf("expected an empty table to yield no candidate; got pid %d", pid)
	}
}

func TestScheduleTransfersControl(t *testing.T) {
	s, table := newTestScheduler(t, 8, 2, 5, 7)
	table.SetCurrent(5)

	type divergence struct{}
	var (
		activated mm.Frame
		resumed   *cpu.Regs
	)
	s.activateFn = func(root mm.Frame) { activated = root }
	s.resumeFn = func(regs *cpu.Regs) {
		resumed = regs
		panic(divergence{})
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Schedule to diverge into the resume primitive")
		}

		if exp := proc.PID(7); table.CurrentPID() != exp {
			t.Fatalf("expected current process to be %d; got %d", exp, table.CurrentPID())
		}
		if exp := table.Get(7).Space.Root(); activated != exp {
			t.Fatalf("expected address space root %d to be activated; got %d", exp, activated)
		}
		if resumed != &table.Get(7).Regs {
			t.Fatal("expected the saved context of pid 7 to be restored")
		}
	}()

	s.Schedule()
}

func TestScheduleSpinsWhenNothingRunnable(t *testing.T) {
	s, _ := newTestScheduler(t, 8)

	type halted struct{}
	idleCalls := 0
	s.idleFn = func() {
		idleCalls++
		if idleCalls == 3 {
			panic(halted{})
		}
	}
	s.resumeFn = func(*cpu.Regs) {
		t.Fatal("expected no process to be resumed")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Schedule to keep spinning through the idle hook")
		}
		if idleCalls != 3 {
			t.Fatalf("expected 3 idle iterations; got %d", idleCalls)
		}
	}()

	s.Schedule()
}

func TestRunRefusesNonRunnable(t *testing.T) {
	s, table := newTestScheduler(t, 8, 2)
	table.Get(2).State = proc.Broken

	var (
		resumeCalled bool
		panicArg     interface{}
	)
	s.resumeFn = func(*cpu.Regs) { resumeCalled = true }
	s.panicFn = func(e interface{}) { panicArg = e }

	s.Run(table.Get(2))

	if resumeCalled {
		t.Fatal("expected Run to refuse a non-runnable process")
	}
	if panicArg == nil {
		t.Fatal("expected Run to raise a kernel panic for a non-runnable process")
	}
}
