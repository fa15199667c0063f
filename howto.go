package objdiff

import (
	"debug/elf"

	"github.com/pkg/errors"
)

// Overflow is the overflow-handling policy of a relocation field. It also
// decides whether the field is sign-extended when decoded.
type Overflow uint8

const (
	OverflowDont Overflow = iota
	OverflowBitfield
	OverflowSigned
	OverflowUnsigned
)

func (o Overflow) String() string {
	switch o {
	case OverflowDont:
		return "dont"
	case OverflowBitfield:
		return "bitfield"
	case OverflowSigned:
		return "signed"
	case OverflowUnsigned:
		return "unsigned"
	}
	return "unknown"
}

// Howto describes how a relocation's value is encoded in section contents.
type Howto struct {
	Name string
	// Size is the width in bytes of the word holding the field.
	Size       int
	Bitsize    uint
	Bitpos     uint
	Rightshift uint
	PCRelative bool
	// PCRelOffset is set when the addend already accounts for the address
	// of the field.
	PCRelOffset bool
	Overflow    Overflow
	SrcMask     uint64
	DstMask     uint64
}

func mask(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return 1<<bits - 1
}

// simpleHowto describes a field occupying the low bits of its word.
func simpleHowto(name string, size int, bits uint, pcrel bool, ovf Overflow) *Howto {
	return &Howto{
		Name:        name,
		Size:        size,
		Bitsize:     bits,
		PCRelative:  pcrel,
		PCRelOffset: pcrel,
		Overflow:    ovf,
		SrcMask:     mask(bits),
		DstMask:     mask(bits),
	}
}

// branchHowto describes a scaled pc-relative branch displacement stored at
// bitpos.
func branchHowto(name string, bits, bitpos, shift uint) *Howto {
	return &Howto{
		Name:        name,
		Size:        4,
		Bitsize:     bits,
		Bitpos:      bitpos,
		Rightshift:  shift,
		PCRelative:  true,
		PCRelOffset: true,
		Overflow:    OverflowSigned,
		SrcMask:     mask(bits) << bitpos,
		DstMask:     mask(bits) << bitpos,
	}
}

var x86_64Howtos = map[uint32]*Howto{
	uint32(elf.R_X86_64_64):            simpleHowto("R_X86_64_64", 8, 64, false, OverflowBitfield),
	uint32(elf.R_X86_64_PC32):          simpleHowto("R_X86_64_PC32", 4, 32, true, OverflowSigned),
	uint32(elf.R_X86_64_GOT32):         simpleHowto("R_X86_64_GOT32", 4, 32, false, OverflowSigned),
	uint32(elf.R_X86_64_PLT32):         simpleHowto("R_X86_64_PLT32", 4, 32, true, OverflowSigned),
	uint32(elf.R_X86_64_GOTPCREL):      simpleHowto("R_X86_64_GOTPCREL", 4, 32, true, OverflowSigned),
	uint32(elf.R_X86_64_32):            simpleHowto("R_X86_64_32", 4, 32, false, OverflowUnsigned),
	uint32(elf.R_X86_64_32S):           simpleHowto("R_X86_64_32S", 4, 32, false, OverflowSigned),
	uint32(elf.R_X86_64_16):            simpleHowto("R_X86_64_16", 2, 16, false, OverflowBitfield),
	uint32(elf.R_X86_64_PC16):          simpleHowto("R_X86_64_PC16", 2, 16, true, OverflowBitfield),
	uint32(elf.R_X86_64_8):             simpleHowto("R_X86_64_8", 1, 8, false, OverflowBitfield),
	uint32(elf.R_X86_64_PC8):           simpleHowto("R_X86_64_PC8", 1, 8, true, OverflowSigned),
	uint32(elf.R_X86_64_DTPOFF32):      simpleHowto("R_X86_64_DTPOFF32", 4, 32, false, OverflowSigned),
	uint32(elf.R_X86_64_TPOFF32):       simpleHowto("R_X86_64_TPOFF32", 4, 32, false, OverflowSigned),
	uint32(elf.R_X86_64_TLSGD):         simpleHowto("R_X86_64_TLSGD", 4, 32, true, OverflowSigned),
	uint32(elf.R_X86_64_TLSLD):         simpleHowto("R_X86_64_TLSLD", 4, 32, true, OverflowSigned),
	uint32(elf.R_X86_64_GOTTPOFF):      simpleHowto("R_X86_64_GOTTPOFF", 4, 32, true, OverflowSigned),
	uint32(elf.R_X86_64_PC64):          simpleHowto("R_X86_64_PC64", 8, 64, true, OverflowBitfield),
	uint32(elf.R_X86_64_GOTOFF64):      simpleHowto("R_X86_64_GOTOFF64", 8, 64, false, OverflowBitfield),
	uint32(elf.R_X86_64_GOTPC32):       simpleHowto("R_X86_64_GOTPC32", 4, 32, true, OverflowSigned),
	uint32(elf.R_X86_64_SIZE32):        simpleHowto("R_X86_64_SIZE32", 4, 32, false, OverflowUnsigned),
	uint32(elf.R_X86_64_SIZE64):        simpleHowto("R_X86_64_SIZE64", 8, 64, false, OverflowUnsigned),
	uint32(elf.R_X86_64_GOTPCRELX):     simpleHowto("R_X86_64_GOTPCRELX", 4, 32, true, OverflowSigned),
	uint32(elf.R_X86_64_REX_GOTPCRELX): simpleHowto("R_X86_64_REX_GOTPCRELX", 4, 32, true, OverflowSigned),
}

var i386Howtos = map[uint32]*Howto{
	uint32(elf.R_386_32):         simpleHowto("R_386_32", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_PC32):       simpleHowto("R_386_PC32", 4, 32, true, OverflowBitfield),
	uint32(elf.R_386_GOT32):      simpleHowto("R_386_GOT32", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_PLT32):      simpleHowto("R_386_PLT32", 4, 32, true, OverflowBitfield),
	uint32(elf.R_386_GOTOFF):     simpleHowto("R_386_GOTOFF", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_GOTPC):      simpleHowto("R_386_GOTPC", 4, 32, true, OverflowBitfield),
	uint32(elf.R_386_GOT32X):     simpleHowto("R_386_GOT32X", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_16):         simpleHowto("R_386_16", 2, 16, false, OverflowBitfield),
	uint32(elf.R_386_PC16):       simpleHowto("R_386_PC16", 2, 16, true, OverflowBitfield),
	uint32(elf.R_386_8):          simpleHowto("R_386_8", 1, 8, false, OverflowBitfield),
	uint32(elf.R_386_PC8):        simpleHowto("R_386_PC8", 1, 8, true, OverflowSigned),
	uint32(elf.R_386_TLS_IE):     simpleHowto("R_386_TLS_IE", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_TLS_GOTIE):  simpleHowto("R_386_TLS_GOTIE", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_TLS_LE):     simpleHowto("R_386_TLS_LE", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_TLS_GD):     simpleHowto("R_386_TLS_GD", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_TLS_LDM):    simpleHowto("R_386_TLS_LDM", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_TLS_LDO_32): simpleHowto("R_386_TLS_LDO_32", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_TLS_IE_32):  simpleHowto("R_386_TLS_IE_32", 4, 32, false, OverflowBitfield),
	uint32(elf.R_386_TLS_LE_32):  simpleHowto("R_386_TLS_LE_32", 4, 32, false, OverflowBitfield),
}

var aarch64Howtos = map[uint32]*Howto{
	uint32(elf.R_AARCH64_ABS64):    simpleHowto("R_AARCH64_ABS64", 8, 64, false, OverflowUnsigned),
	uint32(elf.R_AARCH64_ABS32):    simpleHowto("R_AARCH64_ABS32", 4, 32, false, OverflowUnsigned),
	uint32(elf.R_AARCH64_ABS16):    simpleHowto("R_AARCH64_ABS16", 2, 16, false, OverflowUnsigned),
	uint32(elf.R_AARCH64_PREL64):   simpleHowto("R_AARCH64_PREL64", 8, 64, true, OverflowSigned),
	uint32(elf.R_AARCH64_PREL32):   simpleHowto("R_AARCH64_PREL32", 4, 32, true, OverflowSigned),
	uint32(elf.R_AARCH64_PREL16):   simpleHowto("R_AARCH64_PREL16", 2, 16, true, OverflowSigned),
	uint32(elf.R_AARCH64_CALL26):   branchHowto("R_AARCH64_CALL26", 26, 0, 2),
	uint32(elf.R_AARCH64_JUMP26):   branchHowto("R_AARCH64_JUMP26", 26, 0, 2),
	uint32(elf.R_AARCH64_CONDBR19): branchHowto("R_AARCH64_CONDBR19", 19, 5, 2),
	uint32(elf.R_AARCH64_TSTBR14):  branchHowto("R_AARCH64_TSTBR14", 14, 5, 2),
}

// isNoneReloc reports whether typ is the machine's no-op relocation.
func isNoneReloc(m elf.Machine, typ uint32) bool {
	switch m {
	case elf.EM_X86_64:
		return typ == uint32(elf.R_X86_64_NONE)
	case elf.EM_386:
		return typ == uint32(elf.R_386_NONE)
	case elf.EM_AARCH64:
		return typ == uint32(elf.R_AARCH64_NONE)
	}
	return false
}

// LookupHowto returns the encoding descriptor of relocation type typ on
// machine m.
func LookupHowto(m elf.Machine, typ uint32) (*Howto, error) {
	var table map[uint32]*Howto
	switch m {
	case elf.EM_X86_64:
		table = x86_64Howtos
	case elf.EM_386:
		table = i386Howtos
	case elf.EM_AARCH64:
		table = aarch64Howtos
	default:
		return nil, errors.Wrapf(ErrUnknownReloc, "machine %s", m)
	}
	h, ok := table[typ]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownReloc, "%s type %d", m, typ)
	}
	return h, nil
}
