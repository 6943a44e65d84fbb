package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/thefounder-seb/btmg/internal/apperr"
)

// Reserved relationship types used for graph structure. User edge types
// must not collide with them.
var reservedEdgeTypes = map[string]struct{}{
	"CURRENT":  {},
	"PREVIOUS": {},
	"AUDITED":  {},
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether s is a safe label or relationship type.
func ValidIdent(s string) bool {
	return identRe.MatchString(s)
}

// EdgeKey identifies a compiled edge validator.
type EdgeKey struct {
	From string
	Type string
	To   string
}

// Validator normalizes a property map or reports every violation.
type Validator func(props map[string]any) (map[string]any, *apperr.ValidationError)

// Registry holds the compiled schema. Immutable after Compile; all
// readers share it without locks.
type Registry struct {
	def   *Def
	nodes map[string]Validator
	edges map[EdgeKey]Validator
}

// Compile builds per-label and per-edge validators from def. Any defect
// in the definition itself (bad identifier, empty enum, reserved edge
// type, dangling edge endpoint) is fatal.
func Compile(def *Def) (*Registry, error) {
	r := &Registry{
		def:   def,
		nodes: make(map[string]Validator, len(def.Nodes)),
		edges: make(map[EdgeKey]Validator, len(def.Edges)),
	}

	for _, n := range def.Nodes {
		if !ValidIdent(n.Label) {
			return nil, fmt.Errorf("schema: invalid node label %q", n.Label)
		}
		if _, dup := r.nodes[n.Label]; dup {
			return nil, fmt.Errorf("schema: duplicate node label %q", n.Label)
		}
		v, err := compileProps(n.Label, n.Properties, true)
		if err != nil {
			return nil, err
		}
		r.nodes[n.Label] = v
	}

	for _, e := range def.Edges {
		if !ValidIdent(e.Type) {
			return nil, fmt.Errorf("schema: invalid edge type %q", e.Type)
		}
		if _, reserved := reservedEdgeTypes[e.Type]; reserved {
			return nil, fmt.Errorf("schema: edge type %q is reserved", e.Type)
		}
		if _, ok := r.nodes[e.From]; !ok {
			return nil, fmt.Errorf("schema: edge %s: unknown from label %q", e.Type, e.From)
		}
		if _, ok := r.nodes[e.To]; !ok {
			return nil, fmt.Errorf("schema: edge %s: unknown to label %q", e.Type, e.To)
		}
		key := EdgeKey{From: e.From, Type: e.Type, To: e.To}
		if _, dup := r.edges[key]; dup {
			return nil, fmt.Errorf("schema: duplicate edge %s-[%s]->%s", e.From, e.Type, e.To)
		}
		var v Validator
		if len(e.Properties) == 0 {
			// Edges with no declared properties accept any map.
			v = func(props map[string]any) (map[string]any, *apperr.ValidationError) {
				if props == nil {
					return map[string]any{}, nil
				}
				return props, nil
			}
		} else {
			var err error
			v, err = compileProps(e.Type, e.Properties, true)
			if err != nil {
				return nil, err
			}
		}
		r.edges[key] = v
	}

	for _, c := range def.Constraints {
		if !ValidIdent(c.Label) || !ValidIdent(c.Property) {
			return nil, fmt.Errorf("schema: invalid constraint %s.%s", c.Label, c.Property)
		}
		if c.Kind != "index" && c.Kind != "unique" {
			return nil, fmt.Errorf("schema: constraint %s.%s: unknown kind %q", c.Label, c.Property, c.Kind)
		}
	}

	return r, nil
}

// Node returns the validator for label, or ErrUnknownLabel.
func (r *Registry) Node(label string) (Validator, error) {
	v, ok := r.nodes[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownLabel, label)
	}
	return v, nil
}

// Edge returns the validator for (from, type, to), or ErrUnknownEdge.
func (r *Registry) Edge(from, typ, to string) (Validator, error) {
	v, ok := r.edges[EdgeKey{From: from, Type: typ, To: to}]
	if !ok {
		return nil, fmt.Errorf("%w: %s-[%s]->%s", apperr.ErrUnknownEdge, from, typ, to)
	}
	return v, nil
}

// HasLabel reports whether label is declared.
func (r *Registry) HasLabel(label string) bool {
	_, ok := r.nodes[label]
	return ok
}

// HasEdgeType reports whether any edge with the given type is declared,
// regardless of endpoints.
func (r *Registry) HasEdgeType(typ string) bool {
	for k := range r.edges {
		if k.Type == typ {
			return true
		}
	}
	return false
}

// Labels returns all declared node labels, sorted.
func (r *Registry) Labels() []string {
	out := make([]string, 0, len(r.nodes))
	for l := range r.nodes {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// NodeDef returns the declaration for label, if present.
func (r *Registry) NodeDef(label string) (NodeDef, bool) {
	for _, n := range r.def.Nodes {
		if n.Label == label {
			return n, true
		}
	}
	return NodeDef{}, false
}

// Describe returns the raw definition backing the registry. Used by the
// read-only schema resource.
func (r *Registry) Describe() *Def {
	return r.def
}

// ConstraintStatements renders the declared constraints as SQL index
// statements over the state table's JSON property column. Executed by the
// graph store at open time.
func (r *Registry) ConstraintStatements() []string {
	var out []string
	for _, c := range r.def.Constraints {
		unique := ""
		if c.Kind == "unique" {
			unique = "UNIQUE "
		}
		out = append(out, fmt.Sprintf(
			"CREATE %sINDEX IF NOT EXISTS idx_prop_%s_%s ON states(json_extract(props, '$.%s')) WHERE is_head = 1 AND label = '%s'",
			unique, c.Label, c.Property, c.Property, c.Label,
		))
	}
	return out
}
