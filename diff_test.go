package objdiff

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lea 0x0(%rip),%rdi; ret
var leaText = []byte{0x48, 0x8d, 0x3d, 0, 0, 0, 0, 0xc3}

type objectParams struct {
	table   string
	message string
	exports []string
}

// kernelObject builds an object with a function that loads a rodata table
// and prints a string, plus data and an export table.
func kernelObject(p objectParams) *fakeObject {
	obj := newFakeObject()
	str := obj.addSection(".rodata.str1.1", SecAlloc|SecReadonly|SecMerge|SecStrings, []byte(p.message+"\x00"))
	tbl := obj.addSection(".rodata.tbl", SecAlloc|SecReadonly, []byte(p.table))
	obj.addSection(".data.counter", SecAlloc|SecData, make([]byte, 8))
	obj.addSection(".bss.buf", SecAlloc|SecData, make([]byte, 64))

	text := obj.addSection(".text.f", SecAlloc|SecCode|SecReadonly, append(append([]byte(nil), leaText...), leaText...))
	obj.reloc(text, 3, tbl.Symbol, -4, howtoPC32)
	obj.reloc(text, 11, str.Symbol, -4, howtoPC32)

	if len(p.exports) > 0 {
		obj.addExports("__ksymtab", p.exports...)
	}
	return obj
}

func defaultParams() objectParams {
	return objectParams{table: "ABCD", message: "hello", exports: []string{"a", "b"}}
}

func diffObjects(t *testing.T, old, new Object) *Report {
	t.Helper()
	rep, err := Diff(old, new, nil, nil)
	require.NoError(t, err)
	return rep
}

func render(t *testing.T, rep *Report) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := rep.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestDiffIdentity(t *testing.T) {
	obj := kernelObject(defaultParams())
	rep := diffObjects(t, obj, obj)
	assert.True(t, rep.Empty(), "%+v", rep)
	assert.Equal(t, "\n\n\n\n", render(t, rep))

	rep = diffObjects(t, kernelObject(defaultParams()), kernelObject(defaultParams()))
	assert.True(t, rep.Empty(), "%+v", rep)
}

func TestDiffChangedCode(t *testing.T) {
	old := kernelObject(defaultParams())
	new := kernelObject(defaultParams())
	text := new.SectionByName(".text.f")
	new.contents[text][15] = 0x90

	rep := diffObjects(t, old, new)
	assert.Equal(t, []string{".text.f"}, rep.Changed)
	assert.Empty(t, rep.Added)
	assert.Empty(t, rep.Deleted)
	assert.Equal(t, "\n.text.f \n\n\n", render(t, rep))
}

func TestDiffRodataPropagates(t *testing.T) {
	old := kernelObject(defaultParams())
	p := defaultParams()
	p.table = "ABCE"
	new := kernelObject(p)

	rep := diffObjects(t, old, new)
	assert.Equal(t, []string{".text.f"}, rep.Changed, "code referencing changed rodata must be changed")
	assert.Equal(t, []string{".rodata.tbl"}, rep.Added)
	assert.Equal(t, []string{".rodata.tbl"}, rep.Deleted)
	assert.Empty(t, rep.Renames)
	assert.Equal(t, "\n.text.f \n.rodata.tbl \n.rodata.tbl \n", render(t, rep))
}

func TestDiffChangedString(t *testing.T) {
	old := kernelObject(defaultParams())
	p := defaultParams()
	p.message = "hellp"
	rep := diffObjects(t, old, kernelObject(p))
	assert.Equal(t, []string{".text.f"}, rep.Changed)
	// String sections are compared through their users only.
	assert.Empty(t, rep.Added)
	assert.Empty(t, rep.Deleted)
}

func TestDiffNewAndDeletedSections(t *testing.T) {
	old := kernelObject(defaultParams())
	old.addSection(".data.gone", SecAlloc|SecData, []byte{1})
	new := kernelObject(defaultParams())
	new.addSection(".text.g", SecAlloc|SecCode, []byte{0xc3})
	new.addSection(".altinstructions", SecAlloc, []byte{1, 2})
	old.labels = Labels{".data.gone": "gone_label"}

	rep := diffObjects(t, old, new)
	assert.Empty(t, rep.Changed, "new code sections are not changed sections")
	assert.Equal(t, []string{".text.g"}, rep.Added)
	assert.Equal(t, []string{"gone_label"}, rep.Deleted)
}

func TestDiffMatchesByLabel(t *testing.T) {
	old := kernelObject(defaultParams())
	old.addSection(".data.x", SecAlloc|SecData, []byte{1})
	old.labels = Labels{".data.x": "shared"}
	new := kernelObject(defaultParams())
	new.addSection(".data.y", SecAlloc|SecData, []byte{2})
	new.labels = Labels{".data.y": "shared"}

	rep := diffObjects(t, old, new)
	assert.Empty(t, rep.Added)
	assert.Empty(t, rep.Deleted)
}

func TestDiffRenames(t *testing.T) {
	old := kernelObject(defaultParams())
	old.labels = Labels{".text.f": "f_old", ".rodata.str1.1": "str_old"}
	new := kernelObject(defaultParams())
	new.labels = Labels{".text.f": "f_new", ".rodata.str1.1": "str_new"}

	rep := diffObjects(t, old, new)
	assert.Equal(t, []Rename{
		{Section: ".rodata.str1.1", NewLabel: "str_new", OldLabel: "str_old"},
		{Section: ".text.f", NewLabel: "f_new", OldLabel: "f_old"},
	}, rep.Renames)
	assert.Equal(t, "str_new str_old;f_new f_old;\n\n\n\n", render(t, rep))
}

func TestDiffExports(t *testing.T) {
	p := defaultParams()
	old := kernelObject(p)
	p.exports = []string{"a", "c"}
	new := kernelObject(p)

	rep := diffObjects(t, old, new)
	assert.Equal(t, []ExportGroup{{Prefix: "", Section: "__ksymtab", Names: []string{"c"}}}, rep.AddedExports)
	assert.Equal(t, []ExportGroup{{Prefix: "del_", Section: "__ksymtab", Names: []string{"b"}}}, rep.DeletedExports)
	assert.Equal(t, "\n\n\n\n__ksymtab c\ndel___ksymtab b\n", render(t, rep))
}

func TestDiffExportGroups(t *testing.T) {
	old := newFakeObject()
	old.addExports("__ksymtab", "a")
	new := newFakeObject()
	new.addExports("__ksymtab", "a", "b", "c")
	new.addExports("__ksymtab_gpl", "d")

	rep := diffObjects(t, old, new)
	assert.Equal(t, []ExportGroup{
		{Section: "__ksymtab", Names: []string{"b", "c"}},
		{Section: "__ksymtab_gpl", Names: []string{"d"}},
	}, rep.AddedExports)
	assert.Empty(t, rep.DeletedExports)
}

func TestDiffMalformedExportTable(t *testing.T) {
	old := kernelObject(defaultParams())
	new := kernelObject(defaultParams())
	tab := new.SectionByName("__ksymtab")
	new.relocs[tab] = new.relocs[tab][:3]

	_, err := Diff(old, new, nil, nil)
	assert.True(t, errors.Is(err, ErrMalformedExportTable))
}

func TestDiffCustomConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeletionPrefix = "___del_"
	p := defaultParams()
	old := kernelObject(p)
	p.exports = []string{"a"}

	rep, err := Diff(old, kernelObject(p), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []ExportGroup{{Prefix: "___del_", Section: "__ksymtab", Names: []string{"b"}}}, rep.DeletedExports)
}

func TestRelocsEqualStringLiterals(t *testing.T) {
	build := func(pool string, offsets ...int64) (*fakeObject, *Section) {
		obj := newFakeObject()
		str := obj.addSection(".rodata.str1.1", SecAlloc|SecReadonly, []byte(pool))
		text := obj.addSection(".text.f", SecAlloc|SecCode, make([]byte, 4*len(offsets)))
		for i, off := range offsets {
			obj.reloc(text, uint64(4*i), str.Symbol, off, howto32)
		}
		return obj, text
	}
	equal := func(oldObj *fakeObject, oldText *Section, newObj *fakeObject, newText *Section) bool {
		oldSS, err := newTestContext(t, oldObj).FetchSupersect(oldText)
		require.NoError(t, err)
		newSS, err := newTestContext(t, newObj).FetchSupersect(newText)
		require.NoError(t, err)
		eq, err := RelocsEqual(oldSS, newSS)
		require.NoError(t, err)
		return eq
	}

	oldObj, oldText := build("hello\x00world\x00", 0, 6)
	newObj, newText := build("xx\x00world\x00hello\x00", 9, 3)
	assert.True(t, equal(oldObj, oldText, newObj, newText), "same strings at different offsets")

	newObj, newText = build("xx\x00world\x00hello\x00", 0, 3)
	assert.False(t, equal(oldObj, oldText, newObj, newText), "different string")

	// Out-of-range references compare the whole sections.
	oldObj, oldText = build("hello\x00", 100)
	newObj, newText = build("hello\x00", 100)
	assert.True(t, equal(oldObj, oldText, newObj, newText))
	newObj, newText = build("hellp\x00", 100)
	assert.False(t, equal(oldObj, oldText, newObj, newText))
}

func TestRelocsEqualOrdinaryTargets(t *testing.T) {
	oldObj := newFakeObject()
	g := oldObj.addSection(".text.g", SecAlloc|SecCode, make([]byte, 16))
	f := oldObj.addSection(".text.f", SecAlloc|SecCode, make([]byte, 8))
	oldObj.reloc(f, 0, g.Symbol, 8, howto64)

	newObj := newFakeObject()
	g2 := newObj.addSection(".text.g", SecAlloc|SecCode, make([]byte, 16))
	helper := newObj.symbol("g_helper", g2, 8)
	f2 := newObj.addSection(".text.f", SecAlloc|SecCode, make([]byte, 8))
	newObj.reloc(f2, 0, helper, 0, howto64)

	rep := diffObjects(t, oldObj, newObj)
	assert.Empty(t, rep.Changed, "same target through a different symbol")

	newObj.relocs[f2][0].Addend = 4
	rep = diffObjects(t, oldObj, newObj)
	assert.Equal(t, []string{".text.f"}, rep.Changed)
}

func TestRelocsEqualCountMismatch(t *testing.T) {
	old := kernelObject(defaultParams())
	new := kernelObject(defaultParams())
	text := new.SectionByName(".text.f")
	new.relocs[text] = new.relocs[text][:1]

	rep := diffObjects(t, old, new)
	assert.Equal(t, []string{".text.f"}, rep.Changed)
}

func TestDiffTargetsDifferentSections(t *testing.T) {
	old := kernelObject(defaultParams())
	new := kernelObject(defaultParams())
	text := new.SectionByName(".text.f")
	counter := new.SectionByName(".data.counter")
	new.relocs[text][0].Symbol = new.symIndex[counter.Symbol]

	rep := diffObjects(t, old, new)
	assert.Equal(t, []string{".text.f"}, rep.Changed)
}
