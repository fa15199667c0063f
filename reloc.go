package objdiff

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Reloc is a relocation entry resolved against its context's symbol table.
type Reloc struct {
	// Offset is where the encoded field lives in the owning section.
	Offset uint64
	Sym    *Symbol
	Addend int64
	Howto  *Howto
}

// readWord reads a size-byte integer at off in the object's byte order.
func (ss *Supersect) readWord(off uint64, size int) (uint64, error) {
	if off+uint64(size) > ss.Size() || off+uint64(size) < off {
		return 0, errors.Wrapf(ErrOutOfRange, "read %d bytes at %s+%x", size, ss.Name, off)
	}
	b := ss.Bytes()[off : off+uint64(size)]
	bo := ss.Parent.Object.ByteOrder()
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(bo.Uint16(b)), nil
	case 4:
		return uint64(bo.Uint32(b)), nil
	case 8:
		return bo.Uint64(b), nil
	}
	return 0, errors.Errorf("%s+%x: unsupported field width %d", ss.Name, off, size)
}

// RelocOffset decodes the value r designates relative to its symbol: the
// stored field is masked, sign-extended according to the overflow policy,
// scaled, and added to the addend. For pc-relative relocations the field's
// own offset is added unless the addend already includes it, and adjustPC
// adds the field width, since the program counter points past it.
func (ss *Supersect) RelocOffset(r *Reloc, adjustPC bool) (uint64, error) {
	h := r.Howto
	x, err := ss.readWord(r.Offset, h.Size)
	if err != nil {
		return 0, err
	}
	x &= h.SrcMask
	x >>= h.Bitpos
	signbit := h.DstMask >> h.Bitpos
	signbit &^= signbit >> 1
	switch h.Overflow {
	case OverflowSigned, OverflowBitfield:
		x |= -(x & signbit)
	case OverflowUnsigned:
	default:
		return 0, errors.Wrapf(ErrBadOverflow, "%s at %s+%x: %s", h.Name, ss.Name, r.Offset, h.Overflow)
	}
	x <<= h.Rightshift

	add := uint64(r.Addend)
	if h.PCRelative {
		if !h.PCRelOffset {
			add += r.Offset
		}
		if adjustPC {
			add += uint64(h.Size)
		}
	}
	return x + add, nil
}

// FindReloc returns the relocation whose field starts exactly at addr.
func (ss *Supersect) FindReloc(addr uint64) *Reloc {
	for _, r := range ss.Relocs.Data() {
		if r.Offset == addr {
			return r
		}
	}
	return nil
}

// ReadReloc resolves the size-byte reference stored at addr. Without a
// relocation the raw value is returned against the absolute null symbol.
func (ss *Supersect) ReadReloc(addr uint64, size int) (*Symbol, uint64, error) {
	val, err := ss.readWord(addr, size)
	if err != nil {
		return nil, 0, err
	}
	if r := ss.FindReloc(addr); r != nil {
		off, err := ss.RelocOffset(r, false)
		if err != nil {
			return nil, 0, err
		}
		return r.Sym, off, nil
	}
	return ss.Parent.Object.AbsSection().Symbol, val, nil
}

// ReadValue reads a plain value at addr. A relocation against anything but
// the absolute section there is unexpected and reported as a warning.
func (ss *Supersect) ReadValue(addr uint64, size int) (uint64, error) {
	sym, val, err := ss.ReadReloc(addr, size)
	if err != nil {
		return 0, err
	}
	if !sym.Section.IsAbsolute() {
		ss.Parent.Warn(&Warning{Section: ss.Name, Offset: addr, Msg: "unexpected non-absolute relocation"})
	}
	return val, nil
}

// ReadPointer follows the pointer stored at addr to the section and offset
// it designates. ok is false for a null pointer and for pointers into a
// pseudo-section.
func (ss *Supersect) ReadPointer(addr uint64) (data *Supersect, off uint64, ok bool, err error) {
	sym, val, err := ss.ReadReloc(addr, ss.Parent.Object.AddrSize())
	if err != nil {
		return nil, 0, false, err
	}
	data, err = ss.Parent.FetchSupersect(sym.Section)
	if err != nil {
		return nil, 0, false, err
	}
	off = sym.Value + val
	if sym.Section.IsAbsolute() && off == 0 {
		return nil, 0, false, nil
	}
	if sym.Section.IsPseudo() {
		ss.Parent.Warn(&Warning{Section: ss.Name, Offset: addr, Msg: "unexpected relocation to const section " + sym.Section.Name})
		return nil, 0, false, nil
	}
	return data, off, true, nil
}

// ReadString follows the pointer at addr to a nul-terminated string.
func (ss *Supersect) ReadString(addr uint64) (string, bool, error) {
	data, off, ok, err := ss.ReadPointer(addr)
	if err != nil || !ok {
		return "", false, err
	}
	if off >= data.Size() {
		return "", false, errors.Wrapf(ErrOutOfRange, "string at %s+%x", data.Name, off)
	}
	return cString(data.Bytes()[off:]), true, nil
}

// StrPointer renders the pointer at addr as symbol+offset.
func (ss *Supersect) StrPointer(addr uint64) (string, error) {
	sym, off, err := ss.ReadReloc(addr, ss.Parent.Object.AddrSize())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s+%x", sym.Name, off), nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
