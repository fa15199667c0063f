package objdiff

import (
	"bufio"
	"fmt"
	"io"
)

// Rename is a section whose defining-symbol label differs between objects.
type Rename struct {
	Section  string
	NewLabel string
	OldLabel string
}

// ExportGroup is a run of exported names that one side has and the other
// lacks, all from the same export-table section.
type ExportGroup struct {
	Prefix  string
	Section string
	Names   []string
}

type Report struct {
	Renames []Rename
	// Changed holds code sections whose contents or references differ.
	Changed []string
	// Added holds names of sections new in the new object.
	Added []string
	// Deleted holds labels of sections absent from the new object.
	Deleted        []string
	AddedExports   []ExportGroup
	DeletedExports []ExportGroup
}

// Empty reports whether the two objects were found equivalent.
func (r *Report) Empty() bool {
	return len(r.Renames) == 0 && len(r.Changed) == 0 && len(r.Added) == 0 &&
		len(r.Deleted) == 0 && len(r.AddedExports) == 0 && len(r.DeletedExports) == 0
}

// WriteTo renders the report in the line format consumed by the patch
// builder.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	for _, rn := range r.Renames {
		fmt.Fprintf(cw, "%s %s;", rn.NewLabel, rn.OldLabel)
	}
	fmt.Fprint(cw, "\n")
	for _, name := range r.Changed {
		fmt.Fprintf(cw, "%s ", name)
	}
	fmt.Fprint(cw, "\n")
	for _, name := range r.Added {
		fmt.Fprintf(cw, "%s ", name)
	}
	fmt.Fprint(cw, "\n")
	for _, label := range r.Deleted {
		fmt.Fprintf(cw, "%s ", label)
	}
	for _, groups := range [][]ExportGroup{r.AddedExports, r.DeletedExports} {
		for _, g := range groups {
			fmt.Fprintf(cw, "\n%s%s", g.Prefix, g.Section)
			for _, name := range g.Names {
				fmt.Fprintf(cw, " %s", name)
			}
		}
	}
	fmt.Fprint(cw, "\n")
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.Flush()
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
