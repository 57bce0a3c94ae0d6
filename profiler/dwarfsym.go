package profiler

import (
	"debug/dwarf"
	"debug/elf"
)

// DwarfSymbolizer resolves addresses against an ELF binary's embedded
// DWARF line and function tables.
type DwarfSymbolizer struct {
	data      *dwarf.Data
	functions map[uint64]string // entry address -> function name
}

// NewDwarfSymbolizer opens f's DWARF sections and indexes every
// subprogram's low_pc as a function-entry address.
func NewDwarfSymbolizer(f *elf.File) (*DwarfSymbolizer, error) {
	data, err := f.DWARF()
	if err != nil {
		return nil, err
	}
	s := &DwarfSymbolizer{data: data, functions: make(map[uint64]string)}
	s.indexSubprograms()
	return s, nil
}

func (s *DwarfSymbolizer) indexSubprograms() {
	reader := s.data.Reader()
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			return
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}
		lowPC, ok := entry.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			continue
		}
		name, _ := entry.Val(dwarf.AttrName).(string)
		s.functions[lowPC] = name
	}
}

// IsFunctionEntry reports whether addr is a known subprogram's low_pc.
func (s *DwarfSymbolizer) IsFunctionEntry(addr uint64) bool {
	_, ok := s.functions[addr]
	return ok
}

// Lookup resolves addr to (file, function, line) using DWARF's line
// table and the indexed subprogram with the nearest entry at or below
// addr (subprogram end addresses are not checked). Missing
// information is reported as empty strings, matching the profiler's "??"
// convention.
func (s *DwarfSymbolizer) Lookup(addr uint64) (file, function string, line int) {
	lineReader, err := s.data.LineReader(s.compileUnitFor(addr))
	if err == nil && lineReader != nil {
		var entry dwarf.LineEntry
		best := dwarf.LineEntry{}
		found := false
		for {
			if err := lineReader.Next(&entry); err != nil {
				break
			}
			if entry.Address <= addr {
				best = entry
				found = true
			}
		}
		if found {
			file = best.File.Name
			line = best.Line
		}
	}

	if name, ok := s.functions[addr]; ok {
		function = name
	} else {
		function = s.enclosingFunction(addr)
	}
	return file, function, line
}

// compileUnitFor returns the compile unit whose address range contains
// addr, falling back to the first compile unit found when none claims it
// (a stripped-ranges binary, or an address outside any unit's low/high_pc).
func (s *DwarfSymbolizer) compileUnitFor(addr uint64) *dwarf.Entry {
	reader := s.data.Reader()
	var first *dwarf.Entry
	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			return first
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		if first == nil {
			first = entry
		}
		ranges, err := s.data.Ranges(entry)
		if err != nil {
			continue
		}
		for _, r := range ranges {
			if addr >= r[0] && addr < r[1] {
				return entry
			}
		}
	}
}

func (s *DwarfSymbolizer) enclosingFunction(addr uint64) string {
	var best uint64
	var bestName string
	for lowPC, name := range s.functions {
		if lowPC <= addr && lowPC >= best {
			best = lowPC
			bestName = name
		}
	}
	return bestName
}
