package layout

import (
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/capnp-layout/catalog"
	"github.com/wippyai/capnp-layout/errors"
	"github.com/wippyai/capnp-layout/schema"
)

// State is where a struct is in planning.
type State uint8

const (
	// StateUnplanned structs have not been looked at, or failed.
	StateUnplanned State = iota
	// StatePlanning structs are having their sections laid out.
	StatePlanning
	// StateLaid structs have final offsets but pointer defaults are
	// not encoded yet.
	StateLaid
	// StatePlanned structs are complete and immutable.
	StatePlanned
)

var stateNames = [...]string{
	StateUnplanned: "unplanned",
	StatePlanning:  "planning",
	StateLaid:      "laid",
	StatePlanned:   "planned",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// StructSource hands out struct layouts. *Planner implements it.
type StructSource interface {
	Layout(n *schema.Node) (*Struct, error)
}

// DefaultEncoder encodes the default literal of a pointer field as a
// standalone message. src returns layouts whose offsets are final even
// if their own defaults are still being encoded.
type DefaultEncoder interface {
	EncodeDefault(src StructSource, f *Field) ([]byte, error)
}

// Options configures a Planner.
type Options struct {
	// Logger overrides the package logger.
	Logger *zap.Logger
	// Defaults encodes pointer defaults. Without it DefaultBytes stays nil.
	Defaults DefaultEncoder
}

// Planner plans struct layouts for one schema file and caches them.
// It is safe for concurrent use; planning itself is serialized.
type Planner struct {
	catalog  *catalog.Catalog
	logger   *zap.Logger
	defaults DefaultEncoder
	states   map[*schema.Node]State
	structs  map[*schema.Node]*Struct
	mu       sync.Mutex
}

func NewPlanner(file *schema.File, opts Options) *Planner {
	l := opts.Logger
	if l == nil {
		l = Logger()
	}
	return &Planner{
		catalog:  catalog.New(file),
		logger:   l,
		defaults: opts.Defaults,
		states:   make(map[*schema.Node]State),
		structs:  make(map[*schema.Node]*Struct),
	}
}

func (p *Planner) Catalog() *catalog.Catalog {
	return p.catalog
}

func (p *Planner) File() *schema.File {
	return p.catalog.File()
}

// State reports how far n has been planned.
func (p *Planner) State(n *schema.Node) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[n]
}

// Layout implements StructSource.
func (p *Planner) Layout(n *schema.Node) (*Struct, error) {
	return p.Plan(n)
}

// Plan returns the complete layout of struct n, planning it and any list
// element structs it depends on first. A failed plan publishes nothing
// and is retried on the next call.
func (p *Planner) Plan(n *schema.Node) (*Struct, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plan(n)
}

// PlanName plans the struct at a dotted path from the file root.
func (p *Planner) PlanName(name string) (*Struct, error) {
	n := p.catalog.File().Find(name)
	if n == nil || n.Kind != schema.NodeStruct {
		return nil, errors.NotFound(errors.PhasePlan, "struct", name)
	}
	return p.Plan(n)
}

// PlanAll plans every struct in the file, outer declarations first. It
// returns the layouts that succeeded together with all failures joined.
func (p *Planner) PlanAll() ([]*Struct, error) {
	var (
		out  []*Struct
		errs []error
	)
	for _, n := range p.catalog.File().Structs() {
		s, err := p.Plan(n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s)
	}
	return out, stderrors.Join(errs...)
}

func (p *Planner) plan(n *schema.Node) (*Struct, error) {
	if p.states[n] == StatePlanned {
		return p.structs[n], nil
	}
	s, err := p.lay(n)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New(errors.PhasePlan, errors.KindCyclicReference).
			Path(n.DisplayName()).
			Detail("struct layout requested while it is being laid out").
			Build()
	}
	if err := p.encodeDefaults(s); err != nil {
		return nil, err
	}
	p.states[n] = StatePlanned
	return s, nil
}

// lay computes offsets only. A struct already being laid out yields nil:
// it is reachable again through a list of itself, which needs nothing
// from its layout yet.
func (p *Planner) lay(n *schema.Node) (*Struct, error) {
	switch p.states[n] {
	case StatePlanning:
		return nil, nil
	case StateLaid, StatePlanned:
		return p.structs[n], nil
	}
	if n.Kind != schema.NodeStruct {
		return nil, errors.InvalidSchema([]string{n.DisplayName()}, n.Kind.String()+" has no layout")
	}

	p.states[n] = StatePlanning
	b := &builder{planner: p, node: n, top: &topStorage{}}
	s, err := b.build()
	if err != nil {
		delete(p.states, n)
		return nil, err
	}
	p.structs[n] = s
	p.states[n] = StateLaid

	p.logger.Debug("laid out struct",
		zap.String("struct", s.Name),
		zap.Uint32("data_words", s.DataWords),
		zap.Uint32("pointers", s.PointerCount),
		zap.Stringer("list_size", s.ListSize))
	return s, nil
}

func (p *Planner) encodeDefaults(s *Struct) error {
	if p.defaults == nil {
		return nil
	}
	src := laidSource{p}
	for _, f := range s.Fields {
		if !f.IsPointer() || f.Default == nil || f.DefaultBytes != nil {
			continue
		}
		msg, err := p.defaults.EncodeDefault(src, f)
		if err != nil {
			var e *errors.Error
			if stderrors.As(err, &e) && e.Kind == errors.KindInvalidDefault {
				return err
			}
			return errors.New(errors.PhaseDefault, errors.KindInvalidDefault).
				Path(append([]string{s.Name}, f.Path...)...).
				Type(f.Type.String()).
				Value(f.Default).
				Cause(err).
				Detail("encode default").
				Build()
		}
		f.DefaultBytes = msg
	}
	return nil
}

// laidSource serves layouts to the default encoder while the planner
// lock is held.
type laidSource struct {
	p *Planner
}

func (s laidSource) Layout(n *schema.Node) (*Struct, error) {
	st, err := s.p.lay(n)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.New(errors.PhaseDefault, errors.KindCyclicReference).
			Path(n.DisplayName()).
			Detail("default refers to a struct that is still being laid out").
			Build()
	}
	return st, nil
}
