package packages

// Set is an insertion-ordered collection of packages keyed by name.
type Set struct {
	order  []string
	byName map[string]*Package
}

func NewSet() *Set {
	return &Set{byName: map[string]*Package{}}
}

// Add inserts p. A package with the same name keeps its original position.
func (s *Set) Add(p *Package) {
	if _, exists := s.byName[p.Name()]; !exists {
		s.order = append(s.order, p.Name())
	}
	s.byName[p.Name()] = p
}

func (s *Set) Get(name string) (*Package, bool) {
	p, ok := s.byName[name]
	return p, ok
}

func (s *Set) Len() int { return len(s.order) }

// Names returns the package names in discovery order.
func (s *Set) Names() []string { return append([]string(nil), s.order...) }

// All returns the packages in discovery order.
func (s *Set) All() []*Package {
	out := make([]*Package, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}
