// Package script implements script-group selection and code extraction:
// finding the set of cells sharing a lock or type script hash, resolving
// the code cell a script's code_hash names, and spawning one VM per group
// member under a shared scheduler.
package script

import (
	"fmt"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/resource"
	"github.com/nervosnetwork/ckb-standalone-debugger/scheduler"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// GroupType selects whether a script group is keyed by lock or type script.
type GroupType int

const (
	GroupLock GroupType = iota
	GroupTypeScript
)

// CellRole distinguishes an input-side cell from an output-side cell when
// a caller selects a group by position instead of by explicit hash.
type CellRole int

const (
	RoleInput CellRole = iota
	RoleOutput
)

// Group is the set of cell indices (within their respective input or
// output list, by role) sharing one script hash.
type Group struct {
	Hash    [32]byte
	Type    GroupType
	Indices []int
}

// Transaction is the minimal on-chain transaction shape script-group
// selection needs: ordered inputs (resolved to their creating cell) and
// ordered outputs.
type Transaction struct {
	Inputs  []resource.CellMeta
	Outputs []resource.CellOutput
}

// FindScriptGroup scans inputs (and, for type scripts, outputs) in
// deterministic order, groups entries by script hash, and returns the
// group matching hash.
func FindScriptGroup(tx Transaction, groupType GroupType, hash [32]byte, hasher func(resource.Script) [32]byte) (*Group, error) {
	g := &Group{Hash: hash, Type: groupType}

	for i, in := range tx.Inputs {
		var scriptHash [32]byte
		var present bool
		if groupType == GroupLock {
			scriptHash, present = hasher(in.Output.Lock), true
		} else if in.Output.Type != nil {
			scriptHash, present = hasher(*in.Output.Type), true
		}
		if present && scriptHash == hash {
			g.Indices = append(g.Indices, i)
		}
	}

	if groupType == GroupTypeScript {
		for i, out := range tx.Outputs {
			if out.Type == nil {
				continue
			}
			if hasher(*out.Type) == hash {
				g.Indices = append(g.Indices, -(i + 1)) // negative-encoded: an output-side index
			}
		}
	}

	if len(g.Indices) == 0 {
		return nil, errs.Usage("no script group found for hash %x", hash)
	}
	return g, nil
}

// SelectHashByPosition computes the script hash implied by (role, index)
// per the position-based selection rules: lock/input uses the input
// cell's lock script; type/input uses its type script (error if absent);
// type/output uses the output cell's type script; lock/output is invalid.
func SelectHashByPosition(tx Transaction, role CellRole, groupType GroupType, index int, hasher func(resource.Script) [32]byte) ([32]byte, error) {
	if groupType == GroupLock && role == RoleOutput {
		return [32]byte{}, errs.Usage("lock script selection by output position is invalid")
	}

	switch role {
	case RoleInput:
		if index < 0 || index >= len(tx.Inputs) {
			return [32]byte{}, errs.Usage("input index %d out of range", index)
		}
		cell := tx.Inputs[index]
		if groupType == GroupLock {
			return hasher(cell.Output.Lock), nil
		}
		if cell.Output.Type == nil {
			return [32]byte{}, errs.Usage("input %d has no type script", index)
		}
		return hasher(*cell.Output.Type), nil

	case RoleOutput:
		if index < 0 || index >= len(tx.Outputs) {
			return [32]byte{}, errs.Usage("output index %d out of range", index)
		}
		out := tx.Outputs[index]
		if out.Type == nil {
			return [32]byte{}, errs.Usage("output %d has no type script", index)
		}
		return hasher(*out.Type), nil
	}
	return [32]byte{}, errs.Usage("unknown cell role %d", role)
}

// ExtractScript looks up the code cell a script's code_hash + hash_type
// names and returns its data.
func ExtractScript(res *resource.Resource, s resource.Script, resolveByHash func(codeHash [32]byte, hashType byte) (resource.OutPoint, bool)) ([]byte, error) {
	op, ok := resolveByHash(s.CodeHash, s.HashType)
	if !ok {
		return nil, errs.Usage("no code cell found for code_hash %x hash_type %d", s.CodeHash, s.HashType)
	}
	data, ok := res.GetCellData(op)
	if !ok {
		return nil, errs.Usage("code cell %x:%d not resolved", op.TxHash, op.Index)
	}
	return data, nil
}

// SpawnGroup loads one child VM per member of g under sched, each running
// code with its transaction index from g.Indices (negative for an output)
// as its sole argv entry so the
// guest can tell which member it is validating, and each metered against
// maxCycles independently of the others (the scheduler's own shared
// budget is what actually caps total consumption across them). Returns
// the spawned VM ids in group order.
func SpawnGroup(sched *scheduler.Scheduler, parentID int, code []byte, isa, version uint32, maxCycles uint64, syscalls []vm.SyscallHandler, g *Group) ([]int, error) {
	ids := make([]int, 0, len(g.Indices))
	for _, idx := range g.Indices {
		child := vm.NewMachine(isa, version, maxCycles)
		if _, err := child.LoadProgram(code, []string{fmt.Sprintf("%d", idx)}); err != nil {
			return nil, err
		}
		child.Syscalls = syscalls
		ids = append(ids, sched.Spawn(parentID, child))
	}
	return ids, nil
}
