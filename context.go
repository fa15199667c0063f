package objdiff

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Context is the memoized per-object state: the symbol table, the
// materialized sections and the synthetic sections created for the object.
type Context struct {
	Object Object
	Config *Config
	Syms   []*Symbol

	log        *zap.Logger
	supersects map[*Section]*Supersect
	// newSupersects keeps creation order; newByName enforces one per name.
	newSupersects []*Supersect
	newByName     map[string]*Supersect
	warnings      error
}

// NewContext snapshots obj's symbol table.
func NewContext(obj Object, cfg *Config, log *zap.Logger) (*Context, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	syms, err := obj.Symbols()
	if err != nil {
		return nil, errors.Wrap(err, "read symbol table")
	}
	return &Context{
		Object:     obj,
		Config:     cfg,
		Syms:       syms,
		log:        orNop(log),
		supersects: make(map[*Section]*Supersect),
		newByName:  make(map[string]*Supersect),
	}, nil
}

func (c *Context) Sections() []*Section { return c.Object.Sections() }

func (c *Context) SectionByName(name string) *Section { return c.Object.SectionByName(name) }

func (c *Context) Label(sym *Symbol) string { return c.Object.Label(sym) }

// FetchSupersect returns the materialized form of sect, reading its
// contents and relocations on first use.
func (c *Context) FetchSupersect(sect *Section) (*Supersect, error) {
	if sect == nil {
		return nil, errors.New("fetch of nil section")
	}
	if ss, ok := c.supersects[sect]; ok {
		return ss, nil
	}

	ss := &Supersect{
		Parent:    c,
		Name:      sect.Name,
		Flags:     sect.Flags,
		Alignment: sect.Alignment,
		Class:     c.Config.Classify(sect.Name),
		section:   sect,
	}

	data, err := c.Object.ReadSection(sect)
	if err != nil {
		return nil, errors.Wrapf(err, "read contents of %s", sect.Name)
	}
	if uint64(len(data)) != sect.Size {
		return nil, errors.Errorf("section %s: read %d bytes, want %d", sect.Name, len(data), sect.Size)
	}
	ss.Contents.Resize(len(data))
	copy(ss.Contents.Data(), data)

	raw, err := c.Object.Relocations(sect)
	if err != nil {
		return nil, errors.Wrapf(err, "read relocations of %s", sect.Name)
	}
	ss.Relocs.Reserve(len(raw))
	for _, r := range raw {
		reloc, err := c.resolve(ss, r)
		if err != nil {
			return nil, err
		}
		ss.Relocs.Push(reloc)
	}

	c.supersects[sect] = ss
	c.log.Debug("materialized section",
		zap.String("section", ss.Name),
		zap.Stringer("flags", ss.Flags),
		zap.Int("size", ss.Contents.Len()),
		zap.Int("relocs", ss.Relocs.Len()))
	return ss, nil
}

func (c *Context) resolve(ss *Supersect, r RawReloc) (*Reloc, error) {
	var sym *Symbol
	switch {
	case r.Symbol == NoSymbol:
		sym = c.Object.AbsSection().Symbol
	case r.Symbol >= 0 && r.Symbol < len(c.Syms):
		sym = c.Syms[r.Symbol]
	default:
		return nil, errors.Wrapf(ErrOutOfRange, "%s+%x: symbol index %d", ss.Name, r.Offset, r.Symbol)
	}
	if r.Howto == nil {
		return nil, errors.Wrapf(ErrUnknownReloc, "%s+%x: no encoding", ss.Name, r.Offset)
	}
	if r.Offset >= uint64(ss.Contents.Len()) {
		return nil, errors.Wrapf(ErrOutOfRange, "%s: relocation at %#x", ss.Name, r.Offset)
	}
	return &Reloc{Offset: r.Offset, Sym: sym, Addend: r.Addend, Howto: r.Howto}, nil
}

// NewSupersect returns the synthetic section called name, creating an empty
// one if this context has none yet.
func (c *Context) NewSupersect(name string) *Supersect {
	if ss, ok := c.newByName[name]; ok {
		return ss
	}
	ss := &Supersect{
		Parent: c,
		Name:   name,
		Flags:  SecAlloc | SecHasContents | SecReloc,
		Class:  c.Config.Classify(name),
	}
	c.newByName[name] = ss
	c.newSupersects = append(c.newSupersects, ss)
	return ss
}

// NewSupersects lists the synthetic sections in creation order.
func (c *Context) NewSupersects() []*Supersect { return c.newSupersects }

// Warn records a recoverable diagnostic.
func (c *Context) Warn(w *Warning) {
	c.log.Warn(w.Msg, zap.String("section", w.Section), zap.Uint64("offset", w.Offset))
	c.warnings = multierr.Append(c.warnings, w)
}

func (c *Context) Warnings() []error { return multierr.Errors(c.warnings) }

// Registry maps object handles to their contexts.
type Registry struct {
	Config *Config

	log      *zap.Logger
	contexts map[Object]*Context
}

func NewRegistry(cfg *Config, log *zap.Logger) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Registry{
		Config:   cfg,
		log:      orNop(log),
		contexts: make(map[Object]*Context),
	}
}

// Fetch returns the context of obj, creating it on first access.
func (r *Registry) Fetch(obj Object) (*Context, error) {
	if c, ok := r.contexts[obj]; ok {
		return c, nil
	}
	c, err := NewContext(obj, r.Config, r.log)
	if err != nil {
		return nil, err
	}
	r.contexts[obj] = c
	return c, nil
}
