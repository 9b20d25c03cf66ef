// Package main is the entry point for rankstamp-meta, the offline list
// export/import tool. It opens the configured local store directly, so
// the server should be stopped before running it against the same data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rankstamp/rankstamp/internal/liststore"
	"github.com/rankstamp/rankstamp/internal/serialization"
	"gopkg.in/yaml.v3"
)

// storeLocation names a local store engine and its path on disk.
type storeLocation struct {
	engine string
	path   string
}

func resolveStore(configPath string) (storeLocation, error) {
	loc := storeLocation{engine: "sqlite", path: "./data/rankstamp.db"}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return storeLocation{}, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return storeLocation{}, err
	}
	store, _ := raw["store"].(map[string]any)
	if store == nil {
		return loc, nil
	}
	if engine, _ := store["engine"].(string); engine != "" {
		loc.engine = engine
	}
	section, _ := store[loc.engine].(map[string]any)
	if section == nil {
		return loc, nil
	}
	if path, _ := section["path"].(string); path != "" {
		loc.path = path
	}
	return loc, nil
}

// openLocalStore opens the store for offline access. Only the local
// engines are supported; remote stores are served through the HTTP API.
func openLocalStore(loc storeLocation) (liststore.Store, error) {
	switch loc.engine {
	case "sqlite":
		return liststore.NewSQLiteStore(loc.path)
	case "pebble":
		return liststore.NewPebbleStore(loc.path)
	default:
		return nil, fmt.Errorf("store engine %q is not supported offline; use the server API", loc.engine)
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: rankstamp-meta <export|import> [flags]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "export":
		rc := runExport(os.Args[2:])
		os.Exit(rc)
	case "import":
		rc := runImport(os.Args[2:])
		os.Exit(rc)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\nUsage: rankstamp-meta <export|import> [flags]\n", command)
		os.Exit(1)
	}
}

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "rankstamp.yaml", "Config file path")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	format := fs.String("format", "json", "Output format")
	output := fs.String("output", "-", "Output file path (- for stdout)")
	lists := fs.String("lists", "", "Comma-separated list IDs (default all)")
	fs.Parse(args)

	if *format != "json" {
		fmt.Fprintf(os.Stderr, "Error: unsupported format: %s\n", *format)
		return 1
	}

	loc := storeLocation{engine: "sqlite", path: *dbPath}
	if loc.path == "" {
		var err error
		loc, err = resolveStore(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			return 1
		}
	}

	store, err := openLocalStore(loc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return 1
	}
	defer store.Close()

	opts := &serialization.ExportOptions{}
	if *lists != "" {
		opts.Lists = strings.Split(*lists, ",")
		for i := range opts.Lists {
			opts.Lists[i] = strings.TrimSpace(opts.Lists[i])
		}
	}

	data, err := serialization.Export(context.Background(), store, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		return 1
	}

	if *output == "-" {
		fmt.Println(string(data))
	} else {
		if err := os.WriteFile(*output, append(data, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Exported to %s\n", *output)
	}

	return 0
}

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "rankstamp.yaml", "Config file path")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	input := fs.String("input", "-", "Input file path (- for stdin)")
	replace := fs.Bool("replace", false, "Replace lists named in the document before importing")
	fs.Parse(args)

	loc := storeLocation{engine: "sqlite", path: *dbPath}
	if loc.path == "" {
		var err error
		loc, err = resolveStore(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
			return 1
		}
	}

	var jsonData []byte
	var err error
	if *input == "-" {
		jsonData, err = os.ReadFile("/dev/stdin")
	} else {
		jsonData, err = os.ReadFile(*input)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		return 1
	}

	store, err := openLocalStore(loc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return 1
	}
	defer store.Close()

	opts := &serialization.ImportOptions{Replace: *replace}

	result, err := serialization.Import(context.Background(), store, jsonData, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		return 1
	}

	for _, section := range []string{"lists", "items"} {
		count, ok := result.Counts[section]
		if !ok {
			continue
		}
		skip := result.Skipped[section]
		msg := fmt.Sprintf("  %s: %d imported", section, count)
		if skip > 0 {
			msg += fmt.Sprintf(", %d skipped", skip)
		}
		fmt.Fprintln(os.Stderr, msg)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "  WARNING: %s\n", w)
	}

	return 0
}
