package objdiff

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the set of section-naming conventions the engine relies on.
type Config struct {
	// LabelPrefixes select the sections whose defining-symbol labels are
	// compared for renames.
	LabelPrefixes []string `yaml:"label_prefixes"`
	TextPrefix    string   `yaml:"text_prefix"`
	RodataPrefix  string   `yaml:"rodata_prefix"`
	StringPrefix  string   `yaml:"string_prefix"`

	ExportPrefix        string `yaml:"export_prefix"`
	ExportStringsSuffix string `yaml:"export_strings_suffix"`
	DeletionPrefix      string `yaml:"deletion_prefix"`

	// SpecialPrefixes name sections that never count as new or deleted.
	SpecialPrefixes []string `yaml:"special_prefixes"`
}

func DefaultConfig() *Config {
	return &Config{
		LabelPrefixes:       []string{".text", ".data", ".rodata", ".bss"},
		TextPrefix:          ".text",
		RodataPrefix:        ".rodata",
		StringPrefix:        ".rodata.str",
		ExportPrefix:        "__ksymtab",
		ExportStringsSuffix: "_strings",
		DeletionPrefix:      "del_",
		SpecialPrefixes: []string{
			".altinstructions",
			".altinstr_replacement",
			".smp_locks",
			".parainstructions",
			"__ex_table",
			"__bug_table",
			".comment",
			".note",
			".modinfo",
			".ksplice",
		},
	}
}

// LoadConfig overlays the YAML document at path on DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"text_prefix":   c.TextPrefix,
		"rodata_prefix": c.RodataPrefix,
		"string_prefix": c.StringPrefix,
		"export_prefix": c.ExportPrefix,

		"export_strings_suffix": c.ExportStringsSuffix,
	} {
		if v == "" {
			return errors.Errorf("%s must not be empty", name)
		}
	}
	if !strings.HasPrefix(c.StringPrefix, c.RodataPrefix) {
		return errors.Errorf("string_prefix %q is not a %q section", c.StringPrefix, c.RodataPrefix)
	}
	return nil
}

func (c *Config) DeepCopy() *Config {
	out := *c
	out.LabelPrefixes = append([]string(nil), c.LabelPrefixes...)
	out.SpecialPrefixes = append([]string(nil), c.SpecialPrefixes...)
	return &out
}

// Merge adds the special and label prefixes of a that c lacks.
func (c *Config) Merge(a *Config) {
	c.LabelPrefixes = mergePrefixes(c.LabelPrefixes, a.LabelPrefixes)
	c.SpecialPrefixes = mergePrefixes(c.SpecialPrefixes, a.SpecialPrefixes)
}

func mergePrefixes(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, p := range dst {
		seen[p] = true
	}
	for _, p := range src {
		if !seen[p] {
			seen[p] = true
			dst = append(dst, p)
		}
	}
	return dst
}

// SectionClass is the equivalence-relevant category of a section.
type SectionClass uint8

const (
	ClassOther SectionClass = iota
	ClassReadOnly
	ClassStringLiteral
)

func (k SectionClass) String() string {
	switch k {
	case ClassReadOnly:
		return "rodata"
	case ClassStringLiteral:
		return "string"
	}
	return "other"
}

func (c *Config) Classify(name string) SectionClass {
	switch {
	case strings.HasPrefix(name, c.StringPrefix):
		return ClassStringLiteral
	case strings.HasPrefix(name, c.RodataPrefix):
		return ClassReadOnly
	}
	return ClassOther
}

func (c *Config) IsText(name string) bool {
	return strings.HasPrefix(name, c.TextPrefix)
}

func (c *Config) IsSpecial(name string) bool {
	return hasAnyPrefix(name, c.SpecialPrefixes)
}

func (c *Config) HasLabelPrefix(name string) bool {
	return hasAnyPrefix(name, c.LabelPrefixes)
}

// IsExportTable reports whether name is an export-record array, as opposed
// to the string pool that backs it.
func (c *Config) IsExportTable(name string) bool {
	return strings.HasPrefix(name, c.ExportPrefix) &&
		!strings.HasSuffix(name, c.ExportStringsSuffix)
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
