package main

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/mocktx"
	"github.com/nervosnetwork/ckb-standalone-debugger/resource"
)

// jsonLoader is the fallback loader for out-points and header hashes that
// mock_info didn't supply directly. It resolves nothing: the debugger only
// runs against the mock document's closed world, so every LoadCell and
// LoadHeader call returns an error.
type jsonLoader struct {
	doc mocktx.Document
}

func (l *jsonLoader) LoadCell(op resource.OutPoint) (resource.CellOutput, []byte, error) {
	return resource.CellOutput{}, nil, errs.External("no loader fallback for out-point %x:%d", op.TxHash, op.Index)
}

func (l *jsonLoader) LoadHeader(hash [32]byte) (resource.Header, error) {
	return resource.Header{}, errs.External("no loader fallback for header %x", hash)
}

// toResourceMockTx converts the wire mock_info shape to the resource
// package's binary shape.
func toResourceMockTx(doc mocktx.Document) (resource.MockTransaction, error) {
	var mtx resource.MockTransaction

	for _, in := range doc.MockInfo.Inputs {
		op, err := mocktx.ToResourceOutPoint(*in.Input)
		if err != nil {
			return mtx, err
		}
		out, err := toResourceCellOutput(in.Output)
		if err != nil {
			return mtx, err
		}
		data, err := hexBytes(in.Data)
		if err != nil {
			return mtx, err
		}
		mtx.Inputs = append(mtx.Inputs, resource.MockInput{OutPoint: op, Output: out, Data: data})
	}

	for _, dep := range doc.MockInfo.CellDeps {
		op, err := mocktx.ToResourceOutPoint(*dep.CellDep)
		if err != nil {
			return mtx, err
		}
		out, err := toResourceCellOutput(dep.Output)
		if err != nil {
			return mtx, err
		}
		data, err := hexBytes(dep.Data)
		if err != nil {
			return mtx, err
		}
		depType := resource.DepTypeCode
		if dep.DepType == "dep_group" {
			depType = resource.DepTypeDepGroup
		}
		mtx.CellDeps = append(mtx.CellDeps, resource.MockCellDep{OutPoint: op, Output: out, Data: data, DepType: depType})
	}

	for _, h := range doc.MockInfo.HeaderDeps {
		raw, err := hex.DecodeString(strings.TrimPrefix(h.Hash, "0x"))
		if err != nil || len(raw) != 32 {
			return mtx, errs.Usage("invalid header hash %q", h.Hash)
		}
		var hash [32]byte
		copy(hash[:], raw)
		mtx.HeaderDeps = append(mtx.HeaderDeps, resource.MockHeaderDep{
			Hash:   hash,
			Header: resource.Header{Number: h.Number, Timestamp: h.Timestamp, Hash: hash},
		})
	}

	return mtx, nil
}

func toResourceCellOutput(o mocktx.JSONCellOutput) (resource.CellOutput, error) {
	lock, err := toResourceScript(o.Lock)
	if err != nil {
		return resource.CellOutput{}, err
	}
	out := resource.CellOutput{Lock: lock}
	if o.Type != nil {
		t, err := toResourceScript(*o.Type)
		if err != nil {
			return resource.CellOutput{}, err
		}
		out.Type = &t
	}
	return out, nil
}

func toResourceScript(s mocktx.JSONScript) (resource.Script, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s.CodeHash, "0x"))
	if err != nil || len(raw) != 32 {
		return resource.Script{}, errs.Usage("invalid code_hash %q", s.CodeHash)
	}
	var codeHash [32]byte
	copy(codeHash[:], raw)
	args, err := hexBytes(s.Args)
	if err != nil {
		return resource.Script{}, err
	}
	return resource.Script{CodeHash: codeHash, HashType: hashTypeByte(s.HashType), Args: args}, nil
}

func hashTypeByte(s string) byte {
	switch s {
	case "type":
		return 1
	case "data1":
		return 2
	default:
		return 0 // "data"
	}
}

func hexBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errs.Usage("invalid hex string %q", s)
	}
	return raw, nil
}

// hashScript computes a script's identifying hash as blake2b-256 over its
// code hash, hash-type byte, and args. Data-hash comparisons hash only a
// cell's data.
func hashScript(s resource.Script) [32]byte {
	buf := append([]byte{}, s.CodeHash[:]...)
	buf = append(buf, s.HashType)
	buf = append(buf, s.Args...)
	return blake2b.Sum256(buf)
}

// buildCodeResolver builds the scheduler.CodeResolver a spawn syscall
// consults: cell_index names a position in the cell deps' declared order.
func buildCodeResolver(res *resource.Resource) func(cellIndex uint64) ([]byte, error) {
	order := res.CellDepOrder()
	return func(cellIndex uint64) ([]byte, error) {
		if cellIndex >= uint64(len(order)) {
			return nil, errs.Usage("spawn: cell_index %d out of range (%d cell deps)", cellIndex, len(order))
		}
		data, ok := res.GetCellData(order[cellIndex])
		if !ok {
			return nil, errs.Usage("spawn: cell dep %d has no resolvable data", cellIndex)
		}
		return data, nil
	}
}

// noCodeResolver rejects every spawn: --bin mode loads a single binary
// directly, with no cell-dep list a spawn's cell_index could name.
func noCodeResolver(cellIndex uint64) ([]byte, error) {
	return nil, errs.Usage("spawn syscall requires --tx-file (no cell deps available in --bin mode)")
}

// resolveCodeCell finds the out-point whose code this script's code_hash
// names: for hash_type "data" (0) codeHash is the blake2b256 of the cell's
// data; for "type" (1) it is the hash of the cell's own type script.
func resolveCodeCell(res *resource.Resource, order []resource.OutPoint, codeHash [32]byte, hashType byte) (resource.OutPoint, bool) {
	for _, op := range order {
		meta, ok := res.GetCellMeta(op)
		if !ok {
			continue
		}
		switch hashType {
		case 1:
			if meta.Output.Type != nil && hashScript(*meta.Output.Type) == codeHash {
				return op, true
			}
		default:
			if hash, ok := res.GetCellDataHash(op, blake2b.Sum256); ok && hash == codeHash {
				return op, true
			}
		}
	}
	return resource.OutPoint{}, false
}
