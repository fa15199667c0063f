//go:build !linux

package objdiff

import (
	"os"

	"github.com/pkg/errors"
)

func openMapped(path string) (readerAtCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return f, nil
}
