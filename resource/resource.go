// Package resource materializes a mock transaction's inputs, cell deps
// (including dep-group expansion), and header deps into a read-only
// lookup a script-verification VM run can query in O(1).
package resource

import (
	"encoding/binary"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
)

// OutPoint identifies one cell by the transaction that created it and its
// output index within that transaction.
type OutPoint struct {
	TxHash [32]byte
	Index  uint32
}

// CellOutput is the on-chain shape of a cell: its capacity, lock script,
// and optional type script.
type CellOutput struct {
	Capacity uint64
	Lock     Script
	Type     *Script
}

// Script is a lock or type script reference: a code hash, a hash-type tag,
// and argument bytes.
type Script struct {
	CodeHash [32]byte
	HashType byte
	Args     []byte
}

// Hash returns the script's identifying hash, computed by hasher on every
// call (nothing is cached): callers that need script-group hashing pass in a
// hasher rather than have this package depend on one concrete scheme.
func (s Script) Hash(hasher func(Script) [32]byte) [32]byte { return hasher(s) }

// DepType distinguishes an ordinary code cell dep from a dep-group, whose
// data is itself a list of sub-outpoints to expand.
type DepType int

const (
	DepTypeCode DepType = iota
	DepTypeDepGroup
)

// CellMeta is a resolved cell: its on-chain output, its data bytes, and
// the out-point it was resolved from.
type CellMeta struct {
	OutPoint OutPoint
	Output   CellOutput
	Data     []byte
	Header   *[32]byte // block hash this cell's creating tx was committed in, if known
}

// CellDep is one transaction cell-dep entry prior to expansion.
type CellDep struct {
	OutPoint OutPoint
	DepType  DepType
}

// MockInput mirrors one mock_info input entry: a resolved cell the mock
// transaction supplies directly, bypassing the fallback loader.
type MockInput struct {
	OutPoint OutPoint
	Output   CellOutput
	Data     []byte
	Header   *[32]byte
}

// MockCellDep mirrors one mock_info cell_dep entry.
type MockCellDep struct {
	OutPoint OutPoint
	Output   CellOutput
	Data     []byte
	Header   *[32]byte
	DepType  DepType
}

// MockHeaderDep mirrors one mock_info header_dep entry: a full header
// keyed by its own hash.
type MockHeaderDep struct {
	Hash   [32]byte
	Header Header
}

// Header is the subset of block-header fields the VM's header-dependency
// syscalls expose.
type Header struct {
	Number    uint64
	Timestamp uint64
	Hash      [32]byte
}

// Loader resolves an out-point or a header hash the mock transaction did
// not supply directly, e.g. against a live node or a fixture directory.
type Loader interface {
	LoadCell(OutPoint) (CellOutput, []byte, error)
	LoadHeader([32]byte) (Header, error)
}

// MockTransaction is the three-list shape a mock-tx JSON document
// describes: direct-resolution inputs/deps/headers. It does not carry the
// transaction skeleton itself.
type MockTransaction struct {
	Inputs     []MockInput
	CellDeps   []MockCellDep
	HeaderDeps []MockHeaderDep
}

// Resource is the resolved, read-only view a verifier queries from. It is
// safe to share a read-only Resource across multiple verifier runs.
type Resource struct {
	cells        map[OutPoint]*CellMeta
	headers      map[[32]byte]Header
	inputOrder   []OutPoint
	cellDepOrder []OutPoint
}

// Build resolves every input, cell dep (expanding dep-groups), and header
// dep named in tx, falling back to loader for anything mock_info does not
// supply directly. Input iteration order is preserved.
func Build(tx MockTransaction, loader Loader) (*Resource, error) {
	r := &Resource{
		cells:   make(map[OutPoint]*CellMeta),
		headers: make(map[[32]byte]Header),
	}

	for _, h := range tx.HeaderDeps {
		r.headers[h.Hash] = h.Header
	}

	for _, in := range tx.Inputs {
		meta, err := resolveInput(in, loader)
		if err != nil {
			return nil, err
		}
		r.cells[in.OutPoint] = meta
		r.inputOrder = append(r.inputOrder, in.OutPoint)
	}

	for _, dep := range tx.CellDeps {
		meta, err := resolveCellDep(dep, loader)
		if err != nil {
			return nil, err
		}
		r.cells[dep.OutPoint] = meta
		r.cellDepOrder = append(r.cellDepOrder, dep.OutPoint)

		if dep.DepType == DepTypeDepGroup {
			subPoints, err := parseDepGroup(meta.Data)
			if err != nil {
				return nil, err
			}
			for _, sp := range subPoints {
				if _, ok := r.cells[sp]; ok {
					continue
				}
				output, data, err := loader.LoadCell(sp)
				if err != nil {
					return nil, errs.External("resolve dep-group member %x:%d: %v", sp.TxHash, sp.Index, err)
				}
				r.cells[sp] = &CellMeta{OutPoint: sp, Output: output, Data: data}
			}
		}
	}

	for _, h := range tx.HeaderDeps {
		if _, ok := r.headers[h.Hash]; !ok {
			hdr, err := loader.LoadHeader(h.Hash)
			if err != nil {
				return nil, errs.External("resolve header dep %x: %v", h.Hash, err)
			}
			r.headers[h.Hash] = hdr
		}
	}

	return r, nil
}

func resolveInput(in MockInput, loader Loader) (*CellMeta, error) {
	if in.Data != nil || in.Output.Lock.CodeHash != [32]byte{} {
		return &CellMeta{OutPoint: in.OutPoint, Output: in.Output, Data: in.Data, Header: in.Header}, nil
	}
	output, data, err := loader.LoadCell(in.OutPoint)
	if err != nil {
		return nil, errs.External("resolve input %x:%d: %v", in.OutPoint.TxHash, in.OutPoint.Index, err)
	}
	return &CellMeta{OutPoint: in.OutPoint, Output: output, Data: data}, nil
}

func resolveCellDep(dep MockCellDep, loader Loader) (*CellMeta, error) {
	if dep.Data != nil || dep.Output.Lock.CodeHash != [32]byte{} {
		return &CellMeta{OutPoint: dep.OutPoint, Output: dep.Output, Data: dep.Data, Header: dep.Header}, nil
	}
	output, data, err := loader.LoadCell(dep.OutPoint)
	if err != nil {
		return nil, errs.External("resolve cell dep %x:%d: %v", dep.OutPoint.TxHash, dep.OutPoint.Index, err)
	}
	return &CellMeta{OutPoint: dep.OutPoint, Output: output, Data: data}, nil
}

// parseDepGroup parses a dep-group cell's data as a length-prefixed
// vector of out-points: a little-endian u32 count, then count*(32-byte
// tx hash + u32 index) entries.
func parseDepGroup(data []byte) ([]OutPoint, error) {
	if len(data) < 4 {
		return nil, errs.Usage("dep-group data too short for length prefix")
	}
	count := binary.LittleEndian.Uint32(data[:4])
	const entrySize = 36
	want := 4 + int(count)*entrySize
	if len(data) < want {
		return nil, errs.Usage("dep-group data too short: want %d bytes, have %d", want, len(data))
	}
	out := make([]OutPoint, count)
	for i := uint32(0); i < count; i++ {
		off := 4 + int(i)*entrySize
		var op OutPoint
		copy(op.TxHash[:], data[off:off+32])
		op.Index = binary.LittleEndian.Uint32(data[off+32 : off+36])
		out[i] = op
	}
	return out, nil
}

// GetCellData returns the data bytes for a resolved out-point.
func (r *Resource) GetCellData(op OutPoint) ([]byte, bool) {
	meta, ok := r.cells[op]
	if !ok {
		return nil, false
	}
	return meta.Data, true
}

// GetCellDataHash returns the hash of a resolved cell's data, computed by
// hasher. The resource package stays agnostic of the concrete hash
// function so it can be reused against any chain's hashing scheme.
func (r *Resource) GetCellDataHash(op OutPoint, hasher func([]byte) [32]byte) ([32]byte, bool) {
	meta, ok := r.cells[op]
	if !ok {
		return [32]byte{}, false
	}
	return hasher(meta.Data), true
}

// GetCellMeta returns the full resolved cell-meta for an out-point.
func (r *Resource) GetCellMeta(op OutPoint) (*CellMeta, bool) {
	meta, ok := r.cells[op]
	return meta, ok
}

// GetHeader returns the resolved header for a block hash.
func (r *Resource) GetHeader(hash [32]byte) (Header, bool) {
	h, ok := r.headers[hash]
	return h, ok
}

// CheckValid reports whether hash resolves to a known header.
func (r *Resource) CheckValid(hash [32]byte) bool {
	_, ok := r.headers[hash]
	return ok
}

// InputOrder returns input out-points in the order they were declared.
func (r *Resource) InputOrder() []OutPoint {
	return append([]OutPoint(nil), r.inputOrder...)
}

// CellDepOrder returns cell-dep out-points in the order they were
// declared, the index space a spawn syscall's cell_index argument names.
func (r *Resource) CellDepOrder() []OutPoint {
	return append([]OutPoint(nil), r.cellDepOrder...)
}
