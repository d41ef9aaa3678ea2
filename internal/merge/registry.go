package merge

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/bashed/internal/record"
	"github.com/roach88/bashed/internal/schema"
)

// Kind is the structural operation a rule performs.
type Kind string

const (
	// KindOverride takes the last participating change of each subrecord.
	KindOverride Kind = "override"

	// KindUnion merges list elements as a set, first-seen in load order.
	KindUnion Kind = "union"

	// KindListMerge starts from the base list, adds what participants
	// added, and removes what remove-tag carriers removed.
	KindListMerge Kind = "listmerge"

	// KindAggregate combines numeric fields with a declared function.
	KindAggregate Kind = "aggregate"
)

// Func is the combining function of an aggregate rule.
type Func string

const (
	FuncSum  Func = "sum"  // base + sum of participant deltas
	FuncMax  Func = "max"  // largest of base and participants
	FuncMin  Func = "min"  // smallest of base and participants
	FuncLast Func = "last" // last participating change
)

// Rule is one merge rule bound to a record type.
type Rule struct {
	// Tag selects the participating plugins. Empty means every plugin.
	Tag string

	Kind Kind

	// Func is required for KindAggregate.
	Func Func

	// RemoveTag selects plugins whose removals apply (KindListMerge).
	RemoveTag string

	Subrecords []record.Signature

	// Fields restricts an aggregate to the named fields. Empty means every
	// numeric field of the subrecord.
	Fields []string
}

// Binding is the merge policy of one record type.
type Binding struct {
	Type  record.Signature
	Rules []Rule
}

// Tags returns the distinct selection tags of the binding, sorted.
func (b Binding) Tags() []string {
	set := make(map[string]bool)
	for _, r := range b.Rules {
		if r.Tag != "" {
			set[r.Tag] = true
		}
		if r.RemoveTag != "" {
			set[r.RemoveTag] = true
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// Registry maps record types to merge policies.
//
// A type with no binding merges by last-override-wins unless the registry
// was built WithoutFallback.
//
// Thread-safety: populate before use; lookups are safe for concurrent use
// once no more bindings are registered.
type Registry struct {
	bindings map[record.Signature]Binding
	fallback bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithoutFallback makes record types with no binding fail with PolicyError
// instead of merging by last-override-wins.
func WithoutFallback() RegistryOption {
	return func(r *Registry) {
		r.fallback = false
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{bindings: make(map[record.Signature]Binding), fallback: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromTable returns a registry holding the policies of a schema table.
func FromTable(t *schema.Table, opts ...RegistryOption) (*Registry, error) {
	r := NewRegistry(opts...)
	for _, sig := range slices.SortedFunc(maps.Keys(t.Policies), record.Signature.Compare) {
		defs := t.Policies[sig]
		rules := make([]Rule, len(defs))
		for i, d := range defs {
			rules[i] = Rule{
				Tag:        d.Tag,
				Kind:       Kind(d.Kind),
				Func:       Func(d.Func),
				RemoveTag:  d.RemoveTag,
				Subrecords: slices.Clone(d.Subrecords),
				Fields:     slices.Clone(d.Fields),
			}
		}
		if err := r.Register(sig, rules...); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register binds rules to a record type, replacing any earlier binding.
// Rules apply in the given order.
func (r *Registry) Register(sig record.Signature, rules ...Rule) error {
	for _, rule := range rules {
		if err := checkKind(sig, rule); err != nil {
			return err
		}
	}
	r.bindings[sig] = Binding{Type: sig, Rules: slices.Clone(rules)}
	return nil
}

// Lookup returns the binding of a record type.
func (r *Registry) Lookup(sig record.Signature) (Binding, bool) {
	b, ok := r.bindings[sig]
	return b, ok
}

// Fallback reports whether unbound types merge by last-override-wins.
func (r *Registry) Fallback() bool {
	return r.fallback
}

// Types returns the bound record types, sorted.
func (r *Registry) Types() []record.Signature {
	return slices.SortedFunc(maps.Keys(r.bindings), record.Signature.Compare)
}

// Check verifies that the binding of sig can apply to the layouts of t. A
// missing binding is an error only without fallback.
func (r *Registry) Check(t *schema.Table, sig record.Signature) error {
	b, ok := r.bindings[sig]
	if !ok {
		if r.fallback {
			return nil
		}
		return &PolicyError{Code: ErrCodeNoPolicy, Type: sig, Message: "no merge policy registered"}
	}
	for _, rule := range b.Rules {
		if err := checkLayout(t, sig, rule); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(sig record.Signature, rule Rule) error {
	invalid := func(format string, args ...any) error {
		return &PolicyError{Code: ErrCodeInvalidRule, Type: sig, Tag: rule.Tag, Message: fmt.Sprintf(format, args...)}
	}
	switch rule.Kind {
	case KindOverride, KindUnion, KindListMerge:
		if rule.Func != "" {
			return invalid("func %q only applies to aggregate rules", rule.Func)
		}
	case KindAggregate:
		switch rule.Func {
		case FuncSum, FuncMax, FuncMin, FuncLast:
		default:
			return invalid("unknown aggregate func %q", rule.Func)
		}
	default:
		return invalid("unknown rule kind %q", rule.Kind)
	}
	if rule.RemoveTag != "" && rule.Kind != KindListMerge {
		return invalid("remove_tag only applies to listmerge rules")
	}
	if len(rule.Subrecords) == 0 {
		return invalid("no subrecords")
	}
	return nil
}

func checkLayout(t *schema.Table, sig record.Signature, rule Rule) error {
	for _, sub := range rule.Subrecords {
		invalid := func(msg string) error {
			return &PolicyError{Code: ErrCodeInvalidRule, Type: sig, Tag: rule.Tag, Subrecord: sub, Message: msg}
		}
		if rule.Kind == KindOverride {
			continue
		}
		def, ok := t.Subrecord(sig, sub)
		if !ok {
			return invalid("subrecord has no layout")
		}
		switch rule.Kind {
		case KindUnion, KindListMerge:
			if !def.List() {
				return invalid("subrecord is not a list")
			}
		case KindAggregate:
			if def.List() {
				return invalid("aggregate needs a scalar subrecord")
			}
			fields := rule.Fields
			if len(fields) == 0 {
				for _, f := range def.Fields {
					if f.Kind.Numeric() {
						fields = append(fields, f.Name)
					}
				}
				if len(fields) == 0 {
					return invalid("subrecord has no numeric fields")
				}
			}
			for _, name := range fields {
				fd, ok := def.Field(name)
				if !ok {
					return invalid(fmt.Sprintf("unknown field %q", name))
				}
				if !fd.Kind.Numeric() {
					return invalid(fmt.Sprintf("field %q is %s, not numeric", name, fd.Kind))
				}
			}
		}
	}
	return nil
}
