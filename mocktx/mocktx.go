// Package mocktx defines the JSON shape of a mock transaction document
// and the pre-check that validates it against the on-chain transaction
// skeleton it accompanies. Templating and JSON parsing of the surrounding
// file are handled before this package sees the document; see Expand for
// the template substitution step, kept here because it operates on the
// same raw text this package ultimately parses.
package mocktx

import (
	"encoding/hex"
	"sort"

	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/resource"
)

// JSONOutPoint is the wire shape of an out-point.
type JSONOutPoint struct {
	TxHash string `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

// JSONScript is the wire shape of a lock or type script.
type JSONScript struct {
	CodeHash string `json:"code_hash"`
	HashType string `json:"hash_type"`
	Args     string `json:"args"`
}

// JSONCellOutput is the wire shape of a cell's on-chain fields.
type JSONCellOutput struct {
	Capacity string      `json:"capacity"`
	Lock     JSONScript  `json:"lock"`
	Type     *JSONScript `json:"type,omitempty"`
}

// JSONMockCellInput is one mock_info.inputs (or cell_deps) entry.
type JSONMockCellInput struct {
	Input   *JSONOutPoint  `json:"input,omitempty"`
	CellDep *JSONOutPoint  `json:"cell_dep,omitempty"`
	Output  JSONCellOutput `json:"output"`
	Data    string         `json:"data"`
	Header  string         `json:"header,omitempty"`
	DepType string         `json:"dep_type,omitempty"`
}

// JSONHeaderDep is one mock_info.header_deps entry: a full header keyed
// by its own hash.
type JSONHeaderDep struct {
	Hash      string `json:"hash"`
	Number    uint64 `json:"number"`
	Timestamp uint64 `json:"timestamp"`
}

// MockInfo is the mock_info object: the direct-resolution material the
// resource resolver consumes.
type MockInfo struct {
	Inputs     []JSONMockCellInput `json:"inputs"`
	CellDeps   []JSONMockCellInput `json:"cell_deps"`
	HeaderDeps []JSONHeaderDep     `json:"header_deps"`
}

// TxSkeleton is the tx object: the on-chain transaction shape pre_check
// validates mock_info against.
type TxSkeleton struct {
	CellDeps   []JSONOutPoint   `json:"cell_deps"`
	Inputs     []JSONOutPoint   `json:"inputs"`
	Outputs    []JSONCellOutput `json:"outputs"`
	OutputsData []string        `json:"outputs_data"`
	Witnesses  []string         `json:"witnesses"`
	HeaderDeps []string         `json:"header_deps"`
}

// Document is the full mock-transaction JSON document: mock_info plus
// the tx skeleton it must be consistent with.
type Document struct {
	MockInfo MockInfo   `json:"mock_info"`
	Tx       TxSkeleton `json:"tx"`
}

// PreCheck validates that mock cell-deps (after dep-group expansion)
// equal tx cell-deps as sorted sets, that mock inputs equal tx inputs as
// ordered sequences, and that header-dep lists match as ordered
// sequences.
func PreCheck(doc Document, expandDepGroup func(JSONOutPoint) ([]JSONOutPoint, error)) error {
	var mockDeps []JSONOutPoint
	for _, d := range doc.MockInfo.CellDeps {
		op := *d.CellDep
		mockDeps = append(mockDeps, op)
		if d.DepType == "dep_group" {
			expanded, err := expandDepGroup(op)
			if err != nil {
				return err
			}
			mockDeps = append(mockDeps, expanded...)
		}
	}
	if !sameSet(mockDeps, doc.Tx.CellDeps) {
		return errs.Usage("mock cell_deps do not match tx cell_deps as sets")
	}

	var mockInputs []JSONOutPoint
	for _, in := range doc.MockInfo.Inputs {
		mockInputs = append(mockInputs, *in.Input)
	}
	if !sameSequence(mockInputs, doc.Tx.Inputs) {
		return errs.Usage("mock inputs do not match tx inputs as an ordered sequence")
	}

	var mockHeaders []string
	for _, h := range doc.MockInfo.HeaderDeps {
		mockHeaders = append(mockHeaders, h.Hash)
	}
	if !sameStringSequence(mockHeaders, doc.Tx.HeaderDeps) {
		return errs.Usage("mock header_deps do not match tx header_deps as an ordered sequence")
	}

	return nil
}

func sameSet(a, b []JSONOutPoint) bool {
	if len(a) != len(b) {
		return false
	}
	ak := keysOf(a)
	bk := keysOf(b)
	sort.Strings(ak)
	sort.Strings(bk)
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
	}
	return true
}

func sameSequence(a, b []JSONOutPoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if outPointKey(a[i]) != outPointKey(b[i]) {
			return false
		}
	}
	return true
}

func sameStringSequence(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func keysOf(ops []JSONOutPoint) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = outPointKey(op)
	}
	return out
}

func outPointKey(op JSONOutPoint) string { return op.TxHash + ":" + hex.EncodeToString(indexBytes(op.Index)) }

func indexBytes(index uint32) []byte {
	return []byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)}
}

// ToResourceOutPoint converts the wire out-point shape to the resource
// package's binary shape.
func ToResourceOutPoint(op JSONOutPoint) (resource.OutPoint, error) {
	raw, err := hex.DecodeString(trimHexPrefix(op.TxHash))
	if err != nil || len(raw) != 32 {
		return resource.OutPoint{}, errs.Usage("invalid tx_hash %q", op.TxHash)
	}
	var out resource.OutPoint
	copy(out.TxHash[:], raw)
	out.Index = op.Index
	return out, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
