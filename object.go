package objdiff

import (
	"encoding/binary"
	"strings"
)

// SectionFlags mirror the classic object-file section attributes.
type SectionFlags uint32

const (
	SecAlloc SectionFlags = 1 << iota
	SecLoad
	SecReloc
	SecReadonly
	SecCode
	SecData
	SecHasContents
	SecMerge
	SecStrings
)

var sectionFlagNames = []string{
	"ALLOC", "LOAD", "RELOC", "READONLY", "CODE", "DATA", "CONTENTS", "MERGE", "STRINGS",
}

func (f SectionFlags) String() string {
	var names []string
	for i, name := range sectionFlagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// SectionKind separates real sections from the pseudo-sections symbols can
// live in without occupying file space.
type SectionKind uint8

const (
	SectionRegular SectionKind = iota
	SectionAbsolute
	SectionUndefined
	SectionCommon
)

// Section is a raw section as enumerated by an Object.
type Section struct {
	// Index is the reader's own index for the section.
	Index int
	Name  string
	Kind  SectionKind
	Flags SectionFlags
	// Alignment is a power-of-two exponent.
	Alignment uint8
	Size      uint64
	// Symbol is the section's defining symbol.
	Symbol *Symbol
}

func (s *Section) IsAbsolute() bool { return s.Kind == SectionAbsolute }

// IsPseudo reports whether s is one of the reader's pseudo-sections
// (absolute, undefined or common).
func (s *Section) IsPseudo() bool { return s.Kind != SectionRegular }

type Symbol struct {
	Name    string
	Section *Section
	Value   uint64
}

// NoSymbol marks a relocation without a symbol operand. It resolves to the
// absolute null symbol.
const NoSymbol = -1

// RawReloc is a relocation entry as the reader reports it. Symbol indexes
// the slice returned by Object.Symbols.
type RawReloc struct {
	Offset uint64
	Symbol int
	Addend int64
	Howto  *Howto
}

// Object is the object-file reader the engine consumes.
type Object interface {
	Sections() []*Section
	SectionByName(name string) *Section
	Symbols() ([]*Symbol, error)
	ReadSection(s *Section) ([]byte, error)
	Relocations(s *Section) ([]RawReloc, error)
	// Label returns the external display label of sym.
	Label(sym *Symbol) string
	ByteOrder() binary.ByteOrder
	// AddrSize is the size of a pointer in bytes.
	AddrSize() int
	// AbsSection returns the absolute pseudo-section; its Symbol is the null
	// reference.
	AbsSection() *Section
}
