package objdiff

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Labels maps a symbol name to its external label.
type Labels map[string]string

// ReadLabels parses a label file: one "symbol label" pair per line. Blank
// lines and lines starting with '#' are skipped.
func ReadLabels(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read labels %s", path)
	}
	labels, err := ParseLabels(string(data))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return labels, nil
}

func ParseLabels(data string) (Labels, error) {
	labels := make(Labels)
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.Wrapf(ErrBadLabelFile, "line %d: want 2 fields, got %d", i+1, len(fields))
		}
		if prev, ok := labels[fields[0]]; ok && prev != fields[1] {
			return nil, errors.Wrapf(ErrBadLabelFile, "line %d: %s labelled both %s and %s", i+1, fields[0], prev, fields[1])
		}
		labels[fields[0]] = fields[1]
	}
	return labels, nil
}

// Lookup returns the label of sym, or its name when it has none.
func (l Labels) Lookup(sym *Symbol) string {
	if label, ok := l[sym.Name]; ok {
		return label
	}
	return sym.Name
}
