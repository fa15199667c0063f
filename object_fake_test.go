package objdiff

import (
	"debug/elf"
	"encoding/binary"
)

var (
	howto64   = x86_64Howtos[uint32(elf.R_X86_64_64)]
	howto32   = x86_64Howtos[uint32(elf.R_X86_64_32)]
	howto32S  = x86_64Howtos[uint32(elf.R_X86_64_32S)]
	howtoPC32 = x86_64Howtos[uint32(elf.R_X86_64_PC32)]
)

// fakeObject is an in-memory Object for driving the engine in tests.
type fakeObject struct {
	sections []*Section
	byName   map[string]*Section
	contents map[*Section][]byte
	relocs   map[*Section][]RawReloc
	symbols  []*Symbol
	symIndex map[*Symbol]int
	labels   Labels

	abs, undef *Section
}

func newFakeObject() *fakeObject {
	return &fakeObject{
		byName:   make(map[string]*Section),
		contents: make(map[*Section][]byte),
		relocs:   make(map[*Section][]RawReloc),
		symIndex: make(map[*Symbol]int),
		abs:      pseudoSection(-1, "*ABS*", SectionAbsolute),
		undef:    pseudoSection(-2, "*UND*", SectionUndefined),
	}
}

// addSection adds a section and its section symbol.
func (o *fakeObject) addSection(name string, flags SectionFlags, data []byte) *Section {
	s := &Section{Index: len(o.sections), Name: name, Flags: flags, Size: uint64(len(data))}
	o.sections = append(o.sections, s)
	if _, ok := o.byName[name]; !ok {
		o.byName[name] = s
	}
	o.contents[s] = append([]byte(nil), data...)
	s.Symbol = o.symbol(name, s, 0)
	return s
}

func (o *fakeObject) symbol(name string, s *Section, value uint64) *Symbol {
	sym := &Symbol{Name: name, Section: s, Value: value}
	o.symIndex[sym] = len(o.symbols)
	o.symbols = append(o.symbols, sym)
	return sym
}

func (o *fakeObject) undefined(name string) *Symbol {
	return o.symbol(name, o.undef, 0)
}

func (o *fakeObject) reloc(s *Section, off uint64, sym *Symbol, addend int64, h *Howto) {
	idx := NoSymbol
	if sym != nil {
		idx = o.symIndex[sym]
	}
	o.relocs[s] = append(o.relocs[s], RawReloc{Offset: off, Symbol: idx, Addend: addend, Howto: h})
}

// addExports adds an export table of name records backed by a string pool.
func (o *fakeObject) addExports(table string, names ...string) *Section {
	var pool []byte
	offsets := make([]int64, len(names))
	for i, name := range names {
		offsets[i] = int64(len(pool))
		pool = append(pool, name...)
		pool = append(pool, 0)
	}
	strs := o.addSection(table+"_strings", SecAlloc|SecHasContents|SecReadonly, pool)
	tab := o.addSection(table, SecAlloc|SecHasContents|SecReloc, make([]byte, 16*len(names)))
	for i, name := range names {
		o.reloc(tab, uint64(16*i), o.undefined(name), 0, howto64)
		o.reloc(tab, uint64(16*i+8), strs.Symbol, offsets[i], howto64)
	}
	return tab
}

func (o *fakeObject) Sections() []*Section { return o.sections }

func (o *fakeObject) SectionByName(name string) *Section { return o.byName[name] }

func (o *fakeObject) Symbols() ([]*Symbol, error) { return o.symbols, nil }

func (o *fakeObject) ReadSection(s *Section) ([]byte, error) { return o.contents[s], nil }

func (o *fakeObject) Relocations(s *Section) ([]RawReloc, error) { return o.relocs[s], nil }

func (o *fakeObject) Label(sym *Symbol) string { return o.labels.Lookup(sym) }

func (o *fakeObject) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

func (o *fakeObject) AddrSize() int { return 8 }

func (o *fakeObject) AbsSection() *Section { return o.abs }
