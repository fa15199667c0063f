package objdiff

import (
	"fmt"

	"github.com/pkg/errors"
)

// Fatal conditions. Any error returned by this package that is not a
// *Warning aborts the comparison.
var (
	ErrNotRelocatable       = errors.New("not a relocatable object")
	ErrUnknownReloc         = errors.New("unsupported relocation type")
	ErrBadOverflow          = errors.New("unrecognized overflow policy")
	ErrOutOfRange           = errors.New("offset out of range")
	ErrMalformedExportTable = errors.New("malformed export table")
	ErrBadLabelFile         = errors.New("malformed label file")
)

// Warning is a recoverable diagnostic. Warnings are logged and collected on
// the Context that produced them; the scan continues.
type Warning struct {
	Section string
	Offset  uint64
	Msg     string
}

func (w *Warning) Error() string {
	return fmt.Sprintf("%s at %s+%x", w.Msg, w.Section, w.Offset)
}

// IsWarning reports whether err is a recoverable diagnostic.
func IsWarning(err error) bool {
	var w *Warning
	return errors.As(err, &w)
}
