// tmftool is a CLI utility for inspecting 3MF packages and assembling their
// scenes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/mesh3mf/internal/assets"
	"github.com/Faultbox/mesh3mf/internal/config"
	"github.com/Faultbox/mesh3mf/internal/logger"
	"github.com/Faultbox/mesh3mf/pkg/container"
	"github.com/Faultbox/mesh3mf/pkg/formats"
	"github.com/Faultbox/mesh3mf/pkg/scene"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "info":
		cmdInfo(args)
	case "list", "ls":
		cmdList(args)
	case "extract", "x":
		cmdExtract(args)
	case "search", "find":
		cmdSearch(args)
	case "build", "b":
		cmdBuild(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tmftool - 3MF package utility

Usage:
  tmftool <command> [options]

Commands:
  info <file.3mf>                    Show package parts, objects and issues
  list <file.3mf> [pattern]          List entries (optional glob pattern)
  extract <file.3mf> <path> [output] Extract entry or entries to directory
  search <file.3mf> <pattern>        Search entries by name
  build [options] <file.3mf>...      Assemble the scene and print a summary
  config [-o path]                   Write the effective config as YAML

Examples:
  tmftool info cube.3mf
  tmftool list cube.3mf "*.model"
  tmftool extract cube.3mf 3D/3dmodel.model ./output
  tmftool build -size 1 -obj cube.obj cube.3mf`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openArchive(path string) *container.Archive {
	data, err := os.ReadFile(path)
	if err != nil {
		fail("Error: %v", err)
	}
	archive, err := container.Open(data)
	if err != nil {
		fail("Error: %v", err)
	}
	return archive
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		fail("Usage: tmftool info <file.3mf>")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fail("Error: %v", err)
	}
	pkg, err := scene.NewPipeline().Open(data)
	if err != nil {
		fail("Error: %v", err)
	}

	entries := pkg.Archive.Entries()
	var compressed, uncompressed uint64
	for _, e := range entries {
		compressed += e.CompressedSize
		uncompressed += e.UncompressedSize
	}

	fmt.Printf("Package: %s\n", args[0])
	fmt.Printf("Entries: %d\n", len(entries))
	fmt.Printf("Size:    %.2f KB (%.2f KB uncompressed)\n", float64(compressed)/1024, float64(uncompressed)/1024)
	fmt.Printf("Root:    %s\n", pkg.Root.Path)
	fmt.Printf("Unit:    %s (%g mm)\n", pkg.Root.Unit, pkg.Root.Unit.Millimeters())

	if len(pkg.Root.Metadata) > 0 {
		fmt.Println()
		fmt.Println("Metadata:")
		keys := make([]string, 0, len(pkg.Root.Metadata))
		for k := range pkg.Root.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-16s %s\n", k, pkg.Root.Metadata[k])
		}
	}

	fmt.Println()
	fmt.Println("Model parts:")
	for _, part := range pkg.Parts {
		printPart(part)
	}
}

func printPart(part *formats.Model) {
	kinds := make(map[formats.ObjectKind]int)
	var meshes, groups, empty, triangles int
	for _, obj := range part.Objects {
		kinds[obj.Kind]++
		switch {
		case obj.Empty:
			empty++
		case obj.Mesh != nil:
			meshes++
			triangles += len(obj.Mesh.Triangles)
		default:
			groups++
		}
	}

	fmt.Printf("  %s\n", part.Path)
	fmt.Printf("    objects:    %d (%d mesh, %d components, %d empty)\n", len(part.Objects), meshes, groups, empty)
	fmt.Printf("    kinds:      %d model, %d support, %d other\n",
		kinds[formats.ObjectModel], kinds[formats.ObjectSupport], kinds[formats.ObjectOther])
	fmt.Printf("    triangles:  %d\n", triangles)
	fmt.Printf("    build:      %d items\n", len(part.Build))
	if len(part.Extensions) > 0 || len(part.BaseMaterials) > 0 {
		fmt.Printf("    materials:  %d base groups, %d extension resources\n", len(part.BaseMaterials), len(part.Extensions))
	}
	if len(part.RequiredExtensions) > 0 {
		fmt.Printf("    requires:   %s\n", strings.Join(part.RequiredExtensions, " "))
	}
	for _, issue := range multierr.Errors(part.Err()) {
		fmt.Printf("    issue:      %v\n", issue)
	}
}

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("n", 0, "Limit output to N entries (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fail("Usage: tmftool list <file.3mf> [pattern]")
	}

	archive := openArchive(fs.Arg(0))

	pattern := ""
	if fs.NArg() > 1 {
		pattern = strings.ToLower(fs.Arg(1))
	}

	files := archive.Match(func(name string) bool {
		if pattern == "" {
			return true
		}
		matched, _ := filepath.Match(pattern, strings.ToLower(filepath.Base(name)))
		return matched || strings.Contains(strings.ToLower(name), pattern)
	})
	sort.Strings(files)

	count := 0
	for _, f := range files {
		fmt.Println(f)
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}

	if pattern != "" {
		fmt.Fprintf(os.Stderr, "\n(%d entries matched)\n", count)
	}
}

func cmdExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 2 {
		fail("Usage: tmftool extract <file.3mf> <path> [output_dir]")
	}

	entryPath := fs.Arg(1)
	outputDir := "."
	if fs.NArg() > 2 {
		outputDir = fs.Arg(2)
	}

	archive := openArchive(fs.Arg(0))

	// Check if it's a pattern
	if strings.Contains(entryPath, "*") {
		extractPattern(archive, entryPath, outputDir)
		return
	}

	data, err := archive.Read(entryPath)
	if errors.Is(err, container.ErrEntryNotFound) {
		fail("Entry not found: %s", entryPath)
	}
	if err != nil {
		fail("Error reading entry: %v", err)
	}

	outputPath := filepath.Join(outputDir, filepath.Base(entryPath))
	if err := writeFile(outputPath, data); err != nil {
		fail("Error: %v", err)
	}
	fmt.Printf("Extracted: %s (%d bytes)\n", outputPath, len(data))
}

func extractPattern(archive *container.Archive, pattern, outputDir string) {
	pattern = strings.ToLower(pattern)
	files := archive.Match(func(name string) bool {
		matched, _ := filepath.Match(pattern, strings.ToLower(filepath.Base(name)))
		return matched
	})

	extracted := 0
	for _, f := range files {
		data, err := archive.Read(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", f, err)
			continue
		}

		// Preserve directory structure
		outputPath := filepath.Join(outputDir, filepath.FromSlash(f))
		if err := writeFile(outputPath, data); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		fmt.Printf("Extracted: %s\n", outputPath)
		extracted++
	}

	fmt.Fprintf(os.Stderr, "\nExtracted %d entries\n", extracted)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func cmdSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	limit := fs.Int("n", 50, "Limit results (0 = all)")
	fs.Parse(args)

	if fs.NArg() < 2 {
		fail("Usage: tmftool search <file.3mf> <pattern>")
	}

	archive := openArchive(fs.Arg(0))
	pattern := strings.ToLower(fs.Arg(1))

	count := 0
	for _, f := range archive.List() {
		if strings.Contains(strings.ToLower(f), pattern) {
			fmt.Println(f)
			count++
			if *limit > 0 && count >= *limit {
				fmt.Fprintf(os.Stderr, "\n(showing first %d matches, use -n 0 for all)\n", *limit)
				break
			}
		}
	}

	if count == 0 {
		fmt.Fprintln(os.Stderr, "No entries found")
	} else if *limit == 0 || count < *limit {
		fmt.Fprintf(os.Stderr, "\n(%d entries found)\n", count)
	}
}

func cmdBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	objPath := fs.String("obj", "", "Write the assembled scene as Wavefront OBJ (single input only)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fail("Usage: tmftool build [options] <file.3mf>...")
	}
	if *objPath != "" && fs.NArg() > 1 {
		fail("-obj takes a single input package")
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fail("Error: %v", err)
	}
	if err := logger.InitFromConfig(cfg.Logging, true); err != nil {
		fail("Error: %v", err)
	}
	defer logger.Sync()

	pipeline := scene.NewPipeline(cfg.SceneOptions(logger.Named("scene"))...)
	manager := assets.NewManager(pipeline, assets.FileFetcher{Root: cfg.Loader.Root}, cfg.Loader.CacheEntries)
	manager.SetLogger(logger.Named("assets"))
	defer manager.Close()

	failed := 0
	for _, source := range fs.Args() {
		ctx, cancel := context.Background(), context.CancelFunc(func() {})
		if cfg.Loader.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, cfg.Loader.Timeout)
		}
		g, err := manager.Load(ctx, source)
		cancel()
		if err != nil {
			logger.Error("build failed", zap.String("source", source), zap.Error(err))
			failed++
			continue
		}

		printGeometry(source, g)

		if *objPath != "" {
			if err := writeOBJ(*objPath, g); err != nil {
				fail("Error: %v", err)
			}
			fmt.Printf("Wrote:     %s\n", *objPath)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func printGeometry(source string, g *scene.Geometry) {
	fmt.Printf("Package:   %s\n", source)
	if title := g.Metadata["Title"]; title != "" {
		fmt.Printf("Title:     %s\n", title)
	}
	fmt.Printf("Instances: %d\n", g.Instances)
	fmt.Printf("Vertices:  %d\n", g.VertexCount())
	fmt.Printf("Triangles: %d\n", g.TriangleCount())
	fmt.Printf("Colors:    %v\n", g.Colors != nil)
	fmt.Printf("Unit:      %s\n", g.Unit)
	fmt.Printf("Center:    (%.4g, %.4g, %.4g)\n", g.Center.X, g.Center.Y, g.Center.Z)
	fmt.Printf("Scale:     %.6g\n", g.Scale)
	fmt.Printf("Bounds:    (%.4g, %.4g, %.4g) - (%.4g, %.4g, %.4g)\n",
		g.Bounds.Min[0], g.Bounds.Min[1], g.Bounds.Min[2],
		g.Bounds.Max[0], g.Bounds.Max[1], g.Bounds.Max[2])
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	flags := config.RegisterFlags(fs)
	out := fs.String("o", "", "Write to this path instead of stdout")
	save := fs.Bool("save", false, "Write to the user config directory")
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		fail("Error: %v", err)
	}

	switch {
	case *save:
		path, err := cfg.Save()
		if err != nil {
			fail("Error: %v", err)
		}
		fmt.Printf("Wrote: %s\n", path)
	case *out != "":
		if err := cfg.SaveTo(*out); err != nil {
			fail("Error: %v", err)
		}
		fmt.Printf("Wrote: %s\n", *out)
	default:
		data, err := cfg.Marshal()
		if err != nil {
			fail("Error: %v", err)
		}
		os.Stdout.Write(data)
	}
}
