package objdiff

import (
	"github.com/pkg/errors"
)

// Export is one entry of an export table.
type Export struct {
	Name    string
	Section *Section
}

// ExportedSymbols reads every export table of c. A table is an array of
// {value, name} pointer pairs, each pointer carried by a relocation.
func ExportedSymbols(c *Context) ([]Export, error) {
	var exports []Export
	ptrSize := uint64(c.Object.AddrSize())
	recSize := 2 * ptrSize
	for _, sect := range c.Sections() {
		if !c.Config.IsExportTable(sect.Name) {
			continue
		}
		ss, err := c.FetchSupersect(sect)
		if err != nil {
			return nil, err
		}
		if ss.Size()*2 != uint64(ss.Relocs.Len())*recSize {
			return nil, errors.Wrapf(ErrMalformedExportTable,
				"%s: %d bytes with %d relocations", ss.Name, ss.Size(), ss.Relocs.Len())
		}
		for rec := uint64(0); rec < ss.Size(); rec += recSize {
			name, ok, err := ss.ReadString(rec + ptrSize)
			if err != nil {
				return nil, errors.Wrapf(err, "%s record at %#x", ss.Name, rec)
			}
			if !ok {
				return nil, errors.Wrapf(ErrMalformedExportTable, "%s: record at %#x has no name", ss.Name, rec)
			}
			exports = append(exports, Export{Name: name, Section: sect})
		}
	}
	return exports, nil
}

// CompareExportedSymbols lists the exports of newc missing from oldc,
// grouped by runs of the same section.
func CompareExportedSymbols(oldc, newc *Context, prefix string) ([]ExportGroup, error) {
	newExports, err := ExportedSymbols(newc)
	if err != nil {
		return nil, err
	}
	oldExports, err := ExportedSymbols(oldc)
	if err != nil {
		return nil, err
	}

	type key struct{ name, section string }
	have := make(map[key]bool, len(oldExports))
	for _, old := range oldExports {
		have[key{old.Name, old.Section.Name}] = true
	}

	var (
		groups   []ExportGroup
		lastSect *Section
	)
	for _, exp := range newExports {
		if have[key{exp.Name, exp.Section.Name}] {
			continue
		}
		if exp.Section != lastSect {
			lastSect = exp.Section
			groups = append(groups, ExportGroup{Prefix: prefix, Section: exp.Section.Name})
		}
		g := &groups[len(groups)-1]
		g.Names = append(g.Names, exp.Name)
	}
	return groups, nil
}
