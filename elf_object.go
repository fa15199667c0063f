package objdiff

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/pkg/errors"
)

type readerAtCloser interface {
	io.ReaderAt
	io.Closer
}

// ElfObject is an Object backed by an ELF relocatable file.
type ElfObject struct {
	File   *elf.File
	Path   string
	Labels Labels

	closer    io.Closer
	sections  []*Section
	byName    map[string]*Section
	byIndex   map[int]*Section
	relocSecs map[int][]*elf.Section
	symbols   []*Symbol

	abs, undef, common *Section
}

// OpenElf maps and parses the object file at path.
func OpenElf(path string, labels Labels) (*ElfObject, error) {
	r, err := openMapped(path)
	if err != nil {
		return nil, err
	}
	obj, err := NewElfObject(r, labels)
	if err != nil {
		r.Close()
		return nil, errors.Wrap(err, path)
	}
	obj.Path = path
	obj.closer = r
	return obj, nil
}

func NewElfObject(r io.ReaderAt, labels Labels) (*ElfObject, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse elf file")
	}
	if f.Type != elf.ET_REL {
		return nil, errors.Wrapf(ErrNotRelocatable, "elf type %s", f.Type)
	}

	o := &ElfObject{
		File:      f,
		Labels:    labels,
		byName:    make(map[string]*Section),
		byIndex:   make(map[int]*Section),
		relocSecs: make(map[int][]*elf.Section),
		abs:       pseudoSection(int(elf.SHN_ABS), "*ABS*", SectionAbsolute),
		undef:     pseudoSection(int(elf.SHN_UNDEF), "*UND*", SectionUndefined),
		common:    pseudoSection(int(elf.SHN_COMMON), "*COM*", SectionCommon),
	}

	for _, s := range f.Sections {
		if s.Type == elf.SHT_REL || s.Type == elf.SHT_RELA {
			o.relocSecs[int(s.Info)] = append(o.relocSecs[int(s.Info)], s)
		}
	}
	for i, s := range f.Sections {
		switch s.Type {
		case elf.SHT_NULL, elf.SHT_SYMTAB, elf.SHT_STRTAB, elf.SHT_REL, elf.SHT_RELA,
			elf.SHT_GROUP, elf.SHT_SYMTAB_SHNDX:
			continue
		}
		sect := &Section{
			Index:     i,
			Name:      s.Name,
			Flags:     elfSectionFlags(s, len(o.relocSecs[i]) > 0),
			Alignment: p2align(s.Addralign),
			Size:      s.Size,
		}
		o.sections = append(o.sections, sect)
		o.byIndex[i] = sect
		if _, ok := o.byName[s.Name]; !ok {
			o.byName[s.Name] = sect
		}
	}

	if err := o.loadSymbols(); err != nil {
		return nil, err
	}
	for _, sect := range o.sections {
		if sect.Symbol == nil {
			sect.Symbol = &Symbol{Name: sect.Name, Section: sect}
		}
	}
	return o, nil
}

func pseudoSection(index int, name string, kind SectionKind) *Section {
	s := &Section{Index: index, Name: name, Kind: kind}
	s.Symbol = &Symbol{Name: name, Section: s}
	return s
}

func p2align(align uint64) uint8 {
	if align == 0 {
		return 0
	}
	return uint8(bits.TrailingZeros64(align))
}

func elfSectionFlags(s *elf.Section, hasRelocs bool) SectionFlags {
	var f SectionFlags
	alloc := s.Flags&elf.SHF_ALLOC != 0
	exec := s.Flags&elf.SHF_EXECINSTR != 0
	write := s.Flags&elf.SHF_WRITE != 0
	if alloc {
		f |= SecAlloc
	}
	if s.Type != elf.SHT_NOBITS {
		f |= SecHasContents
		if alloc {
			f |= SecLoad
		}
	}
	if exec {
		f |= SecCode
	}
	if alloc && !write {
		f |= SecReadonly
	}
	if alloc && write && !exec {
		f |= SecData
	}
	if hasRelocs {
		f |= SecReloc
	}
	if s.Flags&elf.SHF_MERGE != 0 {
		f |= SecMerge
	}
	if s.Flags&elf.SHF_STRINGS != 0 {
		f |= SecStrings
	}
	return f
}

func (o *ElfObject) loadSymbols() error {
	syms, err := o.File.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return errors.Wrap(err, "get symbols")
	}
	o.symbols = make([]*Symbol, 0, len(syms))
	for _, es := range syms {
		sym := &Symbol{Name: es.Name, Value: es.Value}
		switch es.Section {
		case elf.SHN_UNDEF:
			sym.Section = o.undef
		case elf.SHN_ABS:
			sym.Section = o.abs
		case elf.SHN_COMMON:
			sym.Section = o.common
		default:
			sect := o.byIndex[int(es.Section)]
			if sect == nil {
				sym.Section = o.undef
				break
			}
			sym.Section = sect
			if elf.ST_TYPE(es.Info) == elf.STT_SECTION {
				sym.Name = sect.Name
				if sect.Symbol == nil {
					sect.Symbol = sym
				}
			}
		}
		o.symbols = append(o.symbols, sym)
	}
	return nil
}

func (o *ElfObject) Sections() []*Section { return o.sections }

func (o *ElfObject) SectionByName(name string) *Section { return o.byName[name] }

func (o *ElfObject) Symbols() ([]*Symbol, error) { return o.symbols, nil }

func (o *ElfObject) AbsSection() *Section { return o.abs }

func (o *ElfObject) ByteOrder() binary.ByteOrder { return o.File.ByteOrder }

func (o *ElfObject) AddrSize() int {
	if o.File.Class == elf.ELFCLASS64 {
		return 8
	}
	return 4
}

func (o *ElfObject) Label(sym *Symbol) string { return o.Labels.Lookup(sym) }

// ReadSection returns the contents of s. Sections without file data read
// as zeros.
func (o *ElfObject) ReadSection(s *Section) ([]byte, error) {
	if s.IsPseudo() {
		return nil, nil
	}
	es := o.File.Sections[s.Index]
	if es.Type == elf.SHT_NOBITS {
		return make([]byte, s.Size), nil
	}
	data, err := es.Data()
	if err != nil {
		return nil, errors.Wrapf(err, "read section data %s", s.Name)
	}
	return data, nil
}

// Relocations decodes every relocation section that applies to s, in file
// order.
func (o *ElfObject) Relocations(s *Section) ([]RawReloc, error) {
	if s.IsPseudo() {
		return nil, nil
	}
	var out []RawReloc
	for _, rs := range o.relocSecs[s.Index] {
		data, err := rs.Data()
		if err != nil {
			return nil, errors.Wrapf(err, "read rel section data %s", rs.Name)
		}
		relocs, err := o.decodeRelocs(rs, data)
		if err != nil {
			return nil, errors.Wrap(err, rs.Name)
		}
		out = append(out, relocs...)
	}
	return out, nil
}

func (o *ElfObject) decodeRelocs(rs *elf.Section, data []byte) ([]RawReloc, error) {
	var (
		out    []RawReloc
		reader = bytes.NewReader(data)
		bo     = o.File.ByteOrder
		is64   = o.File.Class == elf.ELFCLASS64
		rela   = rs.Type == elf.SHT_RELA
	)
	for reader.Len() > 0 {
		var (
			off, symNo uint64
			typ        uint32
			addend     int64
			err        error
		)
		switch {
		case is64 && rela:
			var r elf.Rela64
			err = binary.Read(reader, bo, &r)
			off, symNo, typ, addend = r.Off, uint64(elf.R_SYM64(r.Info)), elf.R_TYPE64(r.Info), r.Addend
		case is64:
			var r elf.Rel64
			err = binary.Read(reader, bo, &r)
			off, symNo, typ = r.Off, uint64(elf.R_SYM64(r.Info)), elf.R_TYPE64(r.Info)
		case rela:
			var r elf.Rela32
			err = binary.Read(reader, bo, &r)
			off, symNo, typ, addend = uint64(r.Off), uint64(elf.R_SYM32(r.Info)), elf.R_TYPE32(r.Info), int64(r.Addend)
		default:
			var r elf.Rel32
			err = binary.Read(reader, bo, &r)
			off, symNo, typ = uint64(r.Off), uint64(elf.R_SYM32(r.Info)), elf.R_TYPE32(r.Info)
		}
		if err != nil {
			return nil, errors.Wrap(err, "read relocation entry")
		}
		if isNoneReloc(o.File.Machine, typ) {
			continue
		}
		howto, err := LookupHowto(o.File.Machine, typ)
		if err != nil {
			return nil, errors.Wrapf(err, "relocation at %#x", off)
		}
		sym := NoSymbol
		if symNo != 0 {
			if symNo > uint64(len(o.symbols)) {
				return nil, errors.Wrapf(ErrOutOfRange, "relocation at %#x: symbol %d", off, symNo)
			}
			sym = int(symNo - 1)
		}
		out = append(out, RawReloc{Offset: off, Symbol: sym, Addend: addend, Howto: howto})
	}
	return out, nil
}

func (o *ElfObject) Close() error {
	if o.closer == nil {
		return nil
	}
	err := o.closer.Close()
	o.closer = nil
	return err
}
