package scheduler

import (
	"testing"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

func freshMachine() *vm.Machine {
	m := vm.NewMachine(vm.ISAImc, vm.Version2, 1_000_000)
	m.Memory.InitPages(0, vm.PageSize, 0, nil, 0)
	return m
}

func TestSpawnAssignsIncreasingIDs(t *testing.T) {
	s := New(freshMachine(), 1_000_000)
	c1 := s.Spawn(RootVMID, freshMachine())
	c2 := s.Spawn(RootVMID, freshMachine())
	if c1 == c2 {
		t.Fatal("expected distinct ids for distinct children")
	}
	if c1 != RootVMID+1 || c2 != RootVMID+2 {
		t.Errorf("got ids %d, %d; want %d, %d", c1, c2, RootVMID+1, RootVMID+2)
	}
}

func TestMachineLookup(t *testing.T) {
	root := freshMachine()
	s := New(root, 1_000_000)
	got, ok := s.Machine(RootVMID)
	if !ok || got != root {
		t.Error("expected Machine(RootVMID) to return the root machine")
	}
	if _, ok := s.Machine(999); ok {
		t.Error("expected an unknown id to miss")
	}
}

func TestSuspendResumeDone(t *testing.T) {
	s := New(freshMachine(), 1_000_000)
	id := s.Spawn(RootVMID, freshMachine())

	s.Suspend(id)
	if _, _, done := s.Result(id); done {
		t.Error("a suspended VM should not report as done")
	}

	s.Resume(id)
	s.Done(id, 7, nil)

	code, err, done := s.Result(id)
	if !done {
		t.Fatal("expected the VM to report done")
	}
	if code != 7 || err != nil {
		t.Errorf("got code=%d err=%v, want code=7 err=nil", code, err)
	}
}

func TestChargeIterationWithinBudget(t *testing.T) {
	s := New(freshMachine(), 100)
	if err := s.ChargeIteration(RootVMID, 60); err != nil {
		t.Fatalf("ChargeIteration: %v", err)
	}
	if s.ConsumedCycles() != 60 {
		t.Errorf("ConsumedCycles = %d, want 60", s.ConsumedCycles())
	}
}

func TestChargeIterationExceedsBudget(t *testing.T) {
	s := New(freshMachine(), 100)
	if err := s.ChargeIteration(RootVMID, 60); err != nil {
		t.Fatalf("first ChargeIteration: %v", err)
	}
	if err := s.ChargeIteration(RootVMID, 60); err == nil {
		t.Fatal("expected exceeding the shared budget to fail")
	}
	if s.ConsumedCycles() != 60 {
		t.Errorf("ConsumedCycles should remain at 60 on overflow, got %d", s.ConsumedCycles())
	}
}

func TestWaitRunsChildToCompletion(t *testing.T) {
	s := New(freshMachine(), 1_000_000)

	child := freshMachine()
	// addi x5, x0, 1 ; ecall(exit, a0=0)
	child.Memory.Store32(0, 0b000000000001_00000_000_00101_0010011)
	child.Memory.Store32(4, 0b000000000000_00000_000_00000_1110011)
	child.Memory.SetFlag(0, vm.FlagExecutable)
	child.Regs.Set(vm.RegA7, vm.SyscallExit)
	childID := s.Spawn(RootVMID, child)

	if err := s.Wait(RootVMID); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	code, err, done := s.Result(childID)
	if !done {
		t.Fatal("expected the child to finish during Wait")
	}
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if code != 0 {
		t.Errorf("ExitCode = %d, want 0", code)
	}
}
