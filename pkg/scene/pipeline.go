package scene

import (
	"errors"
	"fmt"
	"maps"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/mesh3mf/pkg/container"
	"github.com/Faultbox/mesh3mf/pkg/formats"
)

// DefaultMaxInstances bounds object visits during resolution.
const DefaultMaxInstances = 1_000_000

// Pipeline turns 3MF package bytes into Geometry. A Pipeline holds no
// per-build state and is safe for concurrent use.
type Pipeline struct {
	log          *zap.Logger
	targetSize   float64
	maxInstances int
	extensions   Registry
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for recoverable anomalies.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithTargetSize sets the normalized extent of the longest axis.
func WithTargetSize(size float64) Option {
	return func(p *Pipeline) {
		p.targetSize = size
	}
}

// WithMaxInstances sets the resolution visit limit. Zero disables it.
func WithMaxInstances(n int) Option {
	return func(p *Pipeline) {
		p.maxInstances = n
	}
}

// WithExtensions replaces the extension registry. A nil or empty registry
// disables extensions, including colors.
func WithExtensions(r Registry) Option {
	return func(p *Pipeline) {
		p.extensions = r
	}
}

// NewPipeline creates a pipeline with the materials extension, target size
// DefaultTargetSize and a no-op logger.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		log:          zap.NewNop(),
		targetSize:   DefaultTargetSize,
		maxInstances: DefaultMaxInstances,
		extensions:   NewRegistry(false),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package is a parsed package. Parts holds every model part that parsed,
// including Root.
type Package struct {
	Archive *container.Archive
	Root    *formats.Model
	Parts   []*formats.Model
}

// Build parses a 3MF package and assembles its build into Geometry.
func (p *Pipeline) Build(data []byte) (*Geometry, error) {
	pkg, err := p.Open(data)
	if err != nil {
		return nil, err
	}
	return p.Assemble(pkg)
}

// Open reads the archive and parses its model parts. The root part comes
// from the package relationships; if they are missing, point at an absent
// part or at a part that does not parse, every part under 3D/ is scanned and
// the first with build items becomes the root. Parts that fail to parse are
// logged and skipped; when none parse, the first failure is returned.
func (p *Pipeline) Open(data []byte) (*Package, error) {
	archive, err := container.Open(data)
	if err != nil {
		return nil, err
	}

	rootPath, err := formats.ResolveRootModelPath(archive)
	if err != nil {
		p.log.Debug("no root relationship, scanning model parts", zap.Error(err))
		rootPath = ""
	} else if !archive.Contains(rootPath) {
		p.log.Warn("root relationship targets a missing part, scanning model parts",
			zap.String("part", rootPath))
		rootPath = ""
	}

	pkg := &Package{Archive: archive}
	var firstErr error
	if rootPath != "" {
		root, err := p.parsePart(archive, rootPath)
		if err != nil {
			p.log.Warn("root part failed to parse, scanning model parts",
				zap.String("part", rootPath), zap.Error(err))
			firstErr = err
		} else {
			pkg.Root = root
			pkg.Parts = append(pkg.Parts, root)
		}
	}

	for _, name := range formats.ModelParts(archive.List()) {
		if name == rootPath {
			continue
		}
		part, err := p.parsePart(archive, name)
		if err != nil {
			p.log.Warn("skipping model part", zap.String("part", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		pkg.Parts = append(pkg.Parts, part)
	}

	if pkg.Root == nil {
		if len(pkg.Parts) == 0 {
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, fmt.Errorf("%w: no model part in package", ErrEntryNotFound)
		}
		pkg.Root = fallbackRoot(pkg.Parts)
		p.log.Debug("selected root part by scan", zap.String("part", pkg.Root.Path))
	}

	return pkg, nil
}

// Assemble resolves the root build list across all parts of pkg, applies
// extension colors and assembles the result.
func (p *Pipeline) Assemble(pkg *Package) (*Geometry, error) {
	objects, err := NewObjectTable(pkg.Parts)
	if err != nil {
		return nil, err
	}

	instances, err := ResolveObjects(objects, pkg.Root.Build, p.maxInstances)
	if err != nil {
		var refErr *ReferenceError
		if errors.As(err, &refErr) && refErr.Part == "" {
			refErr.Part = pkg.Root.Path
		}
		return nil, err
	}

	if len(p.extensions) > 0 && len(instances) > 0 {
		exts, err := p.extensions.activate(pkg.Parts)
		for _, e := range multierr.Errors(err) {
			p.log.Warn("extension issue", zap.Error(e))
		}
		colors := make(map[*formats.Object][]float32)
		for i := range instances {
			obj := instances[i].Object
			c, ok := colors[obj]
			if !ok {
				c = exts.vertexColors(obj)
				colors[obj] = c
			}
			instances[i].Colors = c
		}
	}

	g, err := Assemble(instances, p.targetSize)
	if err != nil {
		return nil, err
	}
	g.Unit = pkg.Root.Unit
	g.Metadata = maps.Clone(pkg.Root.Metadata)

	p.log.Debug("assembled scene",
		zap.String("root", pkg.Root.Path),
		zap.Int("parts", len(pkg.Parts)),
		zap.Int("instances", g.Instances),
		zap.Int("vertices", g.VertexCount()),
		zap.Int("triangles", g.TriangleCount()),
		zap.Bool("colors", g.Colors != nil))
	return g, nil
}

func (p *Pipeline) parsePart(archive *container.Archive, name string) (*formats.Model, error) {
	data, err := archive.Read(name)
	if err != nil {
		return nil, err
	}
	part, err := formats.ParseModelPart(name, data)
	if err != nil {
		return nil, err
	}
	for _, issue := range multierr.Errors(part.Err()) {
		p.log.Warn("model issue", zap.String("part", name), zap.Error(issue))
	}
	return part, nil
}

// fallbackRoot picks the first part with build items, else the first part.
func fallbackRoot(parts []*formats.Model) *formats.Model {
	for _, part := range parts {
		if len(part.Build) > 0 {
			return part
		}
	}
	return parts[0]
}
