package objdiff

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Engine compares two objects. It only reads from its contexts.
type Engine struct {
	Old, New *Context
	Config   *Config

	log *zap.Logger
}

func NewEngine(old, new *Context, log *zap.Logger) *Engine {
	return &Engine{Old: old, New: new, Config: new.Config, log: orNop(log)}
}

// Diff runs every pass over old and new and collects the results.
func Diff(old, new Object, cfg *Config, log *zap.Logger) (*Report, error) {
	reg := NewRegistry(cfg, log)
	oldCtx, err := reg.Fetch(old)
	if err != nil {
		return nil, errors.Wrap(err, "old object")
	}
	newCtx, err := reg.Fetch(new)
	if err != nil {
		return nil, errors.Wrap(err, "new object")
	}
	return NewEngine(oldCtx, newCtx, log).Run()
}

func (e *Engine) Run() (*Report, error) {
	var (
		rep Report
		err error
	)
	if rep.Renames, err = e.SectionSymbolRenames(); err != nil {
		return nil, err
	}
	err = e.ForeachNonmatching(func(_ *Context, s *Section) {
		rep.Changed = append(rep.Changed, s.Name)
	})
	if err != nil {
		return nil, err
	}
	err = ForeachNewSection(e.Old, e.New, func(_ *Context, s *Section) {
		rep.Added = append(rep.Added, s.Name)
	})
	if err != nil {
		return nil, err
	}
	err = ForeachNewSection(e.New, e.Old, func(c *Context, s *Section) {
		rep.Deleted = append(rep.Deleted, c.Label(s.Symbol))
	})
	if err != nil {
		return nil, err
	}
	if rep.AddedExports, err = CompareExportedSymbols(e.Old, e.New, ""); err != nil {
		return nil, err
	}
	if rep.DeletedExports, err = CompareExportedSymbols(e.New, e.Old, e.Config.DeletionPrefix); err != nil {
		return nil, err
	}
	e.log.Debug("diff complete",
		zap.Int("renames", len(rep.Renames)),
		zap.Int("changed", len(rep.Changed)),
		zap.Int("added", len(rep.Added)),
		zap.Int("deleted", len(rep.Deleted)))
	return &rep, nil
}

// SectionSymbolRenames finds same-named sections whose defining symbols
// carry different labels in the two objects.
func (e *Engine) SectionSymbolRenames() ([]Rename, error) {
	var renames []Rename
	for _, newp := range e.New.Sections() {
		if !e.Config.HasLabelPrefix(newp.Name) {
			continue
		}
		oldp := e.Old.SectionByName(newp.Name)
		if oldp == nil {
			continue
		}
		oldLabel := e.Old.Label(oldp.Symbol)
		newLabel := e.New.Label(newp.Symbol)
		if oldLabel == newLabel {
			continue
		}
		renames = append(renames, Rename{Section: newp.Name, NewLabel: newLabel, OldLabel: oldLabel})
	}
	return renames, nil
}

// ForeachNonmatching calls fn for every code section present in both objects
// whose bytes or relocation targets differ.
func (e *Engine) ForeachNonmatching(fn func(*Context, *Section)) error {
	for _, newp := range e.New.Sections() {
		if !e.Config.IsText(newp.Name) {
			continue
		}
		newSS, err := e.New.FetchSupersect(newp)
		if err != nil {
			return err
		}
		oldp := e.Old.SectionByName(newp.Name)
		if oldp == nil {
			continue
		}
		oldSS, err := e.Old.FetchSupersect(oldp)
		if err != nil {
			return err
		}
		if oldSS.SameContents(newSS) {
			eq, err := RelocsEqual(oldSS, newSS)
			if err != nil {
				return err
			}
			if eq {
				continue
			}
		}
		e.log.Debug("section changed", zap.String("section", newp.Name))
		fn(e.New, newp)
	}
	return nil
}

// ForeachNewSection calls fn for every section of newc without a
// counterpart in oldc. Sections match by name or by defining-symbol label;
// a read-only data section only matches when its bytes are unchanged, so
// changed rodata is reported in both directions.
func ForeachNewSection(oldc, newc *Context, fn func(*Context, *Section)) error {
	cfg := newc.Config
	for _, newsect := range newc.Sections() {
		if cfg.Classify(newsect.Name) == ClassStringLiteral || cfg.IsSpecial(newsect.Name) {
			continue
		}
		found, err := findCounterpart(oldc, newc, newsect)
		if err != nil {
			return err
		}
		if !found {
			fn(newc, newsect)
		}
	}
	return nil
}

func findCounterpart(oldc, newc *Context, newsect *Section) (bool, error) {
	newLabel := newc.Label(newsect.Symbol)
	for _, oldsect := range oldc.Sections() {
		if newsect.Name != oldsect.Name && newLabel != oldc.Label(oldsect.Symbol) {
			continue
		}
		if newc.Config.Classify(newsect.Name) == ClassOther {
			return true, nil
		}
		newSS, err := newc.FetchSupersect(newsect)
		if err != nil {
			return false, err
		}
		oldSS, err := oldc.FetchSupersect(oldsect)
		if err != nil {
			return false, err
		}
		return oldSS.SameContents(newSS), nil
	}
	return false, nil
}

// RelocsEqual reports whether two sections' relocations designate the same
// things. References into ordinary sections must land on the same offset of
// a same-named section. References into string-literal sections compare the
// strings. Any other reference into read-only data requires the whole
// referenced sections to be identical.
func RelocsEqual(oldSS, newSS *Supersect) (bool, error) {
	if oldSS.Relocs.Len() != newSS.Relocs.Len() {
		return false, nil
	}
	newRelocs := newSS.Relocs.Data()
	for i, oldR := range oldSS.Relocs.Data() {
		newR := newRelocs[i]
		eq, err := relocEqual(oldSS, oldR, newSS, newR)
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

func relocEqual(oldSS *Supersect, oldR *Reloc, newSS *Supersect, newR *Reloc) (bool, error) {
	roOld, err := oldSS.Parent.FetchSupersect(oldR.Sym.Section)
	if err != nil {
		return false, err
	}
	roNew, err := newSS.Parent.FetchSupersect(newR.Sym.Section)
	if err != nil {
		return false, err
	}
	oldOff, err := oldSS.RelocOffset(oldR, true)
	if err != nil {
		return false, err
	}
	newOff, err := newSS.RelocOffset(newR, true)
	if err != nil {
		return false, err
	}
	if roOld.Name != roNew.Name {
		return false, nil
	}

	oldPos := oldR.Sym.Value + oldOff
	newPos := newR.Sym.Value + newOff
	switch roOld.Class {
	case ClassOther:
		return oldPos == newPos, nil
	case ClassStringLiteral:
		// Out-of-range references fall back to comparing whole sections.
		if oldPos < roOld.Size() && newPos < roNew.Size() {
			return cString(roOld.Bytes()[oldPos:]) == cString(roNew.Bytes()[newPos:]), nil
		}
	}
	return roOld.SameContents(roNew), nil
}
