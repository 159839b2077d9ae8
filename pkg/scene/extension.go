package scene

import (
	"sort"

	"go.uber.org/multierr"

	"github.com/Faultbox/mesh3mf/pkg/formats"
)

// Extension contributes optional-namespace data to a build. A fresh
// Extension is created for each build; it takes part only if at least one
// model part declares its namespace.
type Extension interface {
	// Namespace is the XML namespace URI the extension handles.
	Namespace() string

	// Load is called once for every model part that declares Namespace.
	// A returned error is reported but does not fail the build.
	Load(part *formats.Model) error

	// VertexColors returns a per-vertex RGB buffer for the object's mesh,
	// or nil if the extension has no color for it.
	VertexColors(obj *formats.Object) []float32
}

// ExtensionFactory creates an Extension.
type ExtensionFactory func() Extension

// Registry maps namespace URIs to extension factories.
type Registry map[string]ExtensionFactory

// NewRegistry returns a registry holding the built-in materials extension.
func NewRegistry(linearColors bool) Registry {
	r := make(Registry)
	r.Register(MaterialNamespace, MaterialsFactory(linearColors))
	return r
}

// Register adds or replaces the factory for namespace.
func (r Registry) Register(namespace string, f ExtensionFactory) {
	r[namespace] = f
}

// PartAccepter is implemented by extensions that also handle parts which do
// not declare their namespace, such as core-namespace resources.
type PartAccepter interface {
	Accepts(part *formats.Model) bool
}

// activeExtensions is the set of extensions instantiated for one build.
type activeExtensions []Extension

// activate instantiates every registered extension and loads each part that
// declares its namespace. Extensions that load no part are dropped. They are
// ordered by namespace so that color precedence is stable.
func (r Registry) activate(parts []*formats.Model) (activeExtensions, error) {
	namespaces := make([]string, 0, len(r))
	for ns := range r {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var (
		active activeExtensions
		errs   error
	)
	for _, ns := range namespaces {
		ext := r[ns]()
		accepter, _ := ext.(PartAccepter)
		loaded := false
		for _, part := range parts {
			if !part.Declares(ns) && (accepter == nil || !accepter.Accepts(part)) {
				continue
			}
			errs = multierr.Append(errs, ext.Load(part))
			loaded = true
		}
		if loaded {
			active = append(active, ext)
		}
	}
	return active, errs
}

// vertexColors returns the first color buffer any active extension provides.
func (a activeExtensions) vertexColors(obj *formats.Object) []float32 {
	for _, ext := range a {
		if c := ext.VertexColors(obj); c != nil {
			return c
		}
	}
	return nil
}
