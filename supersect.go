package objdiff

import (
	"bytes"

	"github.com/pkg/errors"
)

// Supersect is the mutable in-memory form of a section: its contents, the
// relocations read from the object and the relocations added since.
type Supersect struct {
	Parent *Context
	Name   string
	Flags  SectionFlags
	// Alignment is a power-of-two exponent. It only ever increases.
	Alignment uint8
	Class     SectionClass

	Contents  Vec[byte]
	Relocs    Vec[*Reloc]
	NewRelocs Vec[*Reloc]

	// section is nil for synthetic sections.
	section *Section
}

func (ss *Supersect) Section() *Section { return ss.section }

func (ss *Supersect) Synthetic() bool { return ss.section == nil }

func (ss *Supersect) Size() uint64 { return uint64(ss.Contents.Len()) }

func (ss *Supersect) Bytes() []byte { return ss.Contents.Data() }

// SameContents reports whether ss and other hold identical bytes.
func (ss *Supersect) SameContents(other *Supersect) bool {
	return bytes.Equal(ss.Bytes(), other.Bytes())
}

func alignUp(x, align uint64) uint64 {
	return (x + align - 1) &^ (align - 1)
}

// Grow appends room for n elements of size bytes each, starting at the next
// multiple of 1<<p2align. The padding and the new region are zeroed; only
// the region is returned.
func (ss *Supersect) Grow(n, size int, p2align uint8) []byte {
	if ss.Alignment < p2align {
		ss.Alignment = p2align
	}
	cur := uint64(ss.Contents.Len())
	pad := int(alignUp(cur, 1<<p2align) - cur)
	out := ss.Contents.Grow(pad + n*size)
	return out[pad:]
}

// Move transfers the whole state of src into ss and leaves src empty.
func (ss *Supersect) Move(src *Supersect) {
	*ss = *src
	src.Contents.Reset()
	src.Relocs.Reset()
	src.NewRelocs.Reset()
}

// CopyRange copies n bytes from src at srcOff into dest at destOff and
// duplicates every relocation of src inside the copied range into dest,
// shifted to the new position.
func CopyRange(dest *Supersect, destOff uint64, src *Supersect, srcOff uint64, n uint64) error {
	if srcOff+n > src.Size() {
		return errors.Wrapf(ErrOutOfRange, "copy from %s+%x, %d bytes", src.Name, srcOff, n)
	}
	if destOff+n > dest.Size() {
		return errors.Wrapf(ErrOutOfRange, "copy to %s+%x, %d bytes", dest.Name, destOff, n)
	}
	copy(dest.Bytes()[destOff:destOff+n], src.Bytes()[srcOff:srcOff+n])

	start, end := srcOff, srcOff+n
	delta := destOff - srcOff
	modRelocs(&dest.Relocs, src.Relocs.Data(), start, end, delta)
	modRelocs(&dest.NewRelocs, src.NewRelocs.Data(), start, end, delta)
	return nil
}

func modRelocs(dest *Vec[*Reloc], src []*Reloc, start, end, delta uint64) {
	for _, r := range src {
		if r.Offset >= start && r.Offset < end {
			dup := *r
			dup.Offset += delta
			dest.Push(&dup)
		}
	}
}
