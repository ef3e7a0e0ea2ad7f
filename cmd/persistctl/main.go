// Command persistctl inspects and edits a persistence data directory
// directly, without a running server.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"persistence-engine/internal/compression"
	"persistence-engine/internal/config"
	"persistence-engine/internal/envelope"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/persistence"
	"persistence-engine/internal/storage"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	out     io.Writer
	errOut  io.Writer
	json    bool
	verbose bool
	kind    storage.Kind
	cfg     *config.Config
	manager *persistence.Manager
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("persistctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to configuration file")
	preset := fs.String("preset", "", "Configuration preset: development, debug, release, production")
	dataPath := fs.String("data", "", "Data directory (overrides the configuration)")
	kindName := fs.String("kind", "", "Storage kind (default from configuration)")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	verbose := fs.Bool("v", false, "Verbose output")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}

	cfg, err := config.LoadPreset(*preset, *configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *dataPath != "" {
		cfg.Paths.Data = *dataPath
	}
	name := cfg.Storage.DefaultKind
	if *kindName != "" {
		name = *kindName
	}
	kind, err := storage.ParseKind(name)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if *verbose {
		cfg.Logging = logging.DebugLoggingConfig()
	} else {
		cfg.Logging.Output = "discard"
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	manager := persistence.New(persistence.WithSink(logging.NewLogger(&cfg.Logging)))
	if result := manager.Initialize(ctx, cfg); result != storage.Success {
		fmt.Fprintf(stderr, "Failed to initialize persistence: %s\n", result)
		return 1
	}
	defer manager.Shutdown(context.Background())

	c := &cli{
		out:     stdout,
		errOut:  stderr,
		json:    *jsonOutput,
		verbose: *verbose,
		kind:    kind,
		cfg:     cfg,
		manager: manager,
	}

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "save", "put":
		return c.handleSave(ctx, cmdArgs)
	case "load", "get":
		return c.handleLoad(ctx, cmdArgs)
	case "delete", "del":
		return c.handleDelete(ctx, cmdArgs)
	case "exists":
		return c.handleExists(ctx, cmdArgs)
	case "list", "keys":
		return c.handleList(ctx)
	case "clear":
		return c.handleClear(ctx, cmdArgs)
	case "stats":
		return c.handleStats(ctx)
	case "inspect":
		return c.handleInspect(cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 2
	}
}

// fail reports a non-success result and returns the exit status.
func (c *cli) fail(op string, result storage.Result, start time.Time) int {
	if c.json {
		c.outputJSON(map[string]interface{}{
			"success":     false,
			"result":      result.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	} else {
		fmt.Fprintf(c.errOut, "Error: %s failed: %s\n", op, result)
	}
	return 1
}

func (c *cli) done(start time.Time, extra map[string]interface{}) {
	if c.json {
		data := map[string]interface{}{
			"success":     true,
			"kind":        c.kind.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		for k, v := range extra {
			data[k] = v
		}
		c.outputJSON(data)
		return
	}
	if c.verbose {
		fmt.Fprintf(c.out, "(%s, took %v)\n", c.kind, time.Since(start))
	}
}

// handleSave stores a value. A value of "@path" reads the file at path, "-"
// reads standard input.
func (c *cli) handleSave(ctx context.Context, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(c.errOut, "Usage: save <key> <value|@file|->")
		return 2
	}
	key, value := args[0], args[1]

	var data []byte
	switch {
	case value == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(c.errOut, "Error reading stdin: %v\n", err)
			return 1
		}
		data = b
	case strings.HasPrefix(value, "@"):
		b, err := os.ReadFile(value[1:])
		if err != nil {
			fmt.Fprintf(c.errOut, "Error reading %s: %v\n", value[1:], err)
			return 1
		}
		data = b
	default:
		data = []byte(value)
	}

	start := time.Now()
	if result := c.manager.SaveBytes(ctx, key, data, c.kind); !result.OK() {
		return c.fail("save", result, start)
	}
	if !c.json {
		fmt.Fprintln(c.out, "OK")
	}
	c.done(start, map[string]interface{}{"size": len(data)})
	return 0
}

func (c *cli) handleLoad(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(c.errOut, "Usage: load <key>")
		return 2
	}

	start := time.Now()
	data, result := c.manager.LoadBytes(ctx, args[0], c.kind)
	if result == storage.NotFound && !c.json {
		fmt.Fprintln(c.out, "(nil)")
		return 1
	}
	if !result.OK() {
		return c.fail("load", result, start)
	}

	if c.json {
		extra := map[string]interface{}{"size": len(data)}
		if utf8.Valid(data) {
			extra["value"] = string(data)
		} else {
			extra["value"] = base64.StdEncoding.EncodeToString(data)
			extra["encoding"] = "base64"
		}
		c.done(start, extra)
		return 0
	}
	if utf8.Valid(data) {
		fmt.Fprintln(c.out, string(data))
	} else {
		fmt.Fprintln(c.out, base64.StdEncoding.EncodeToString(data))
	}
	c.done(start, nil)
	return 0
}

func (c *cli) handleDelete(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(c.errOut, "Usage: delete <key>")
		return 2
	}

	start := time.Now()
	result := c.manager.Delete(ctx, args[0], c.kind)
	switch {
	case result == storage.NotFound:
		if c.json {
			c.done(start, map[string]interface{}{"existed": false})
		} else {
			fmt.Fprintln(c.out, "0")
		}
		return 0
	case !result.OK():
		return c.fail("delete", result, start)
	}
	if c.json {
		c.done(start, map[string]interface{}{"existed": true})
	} else {
		fmt.Fprintln(c.out, "1")
		c.done(start, nil)
	}
	return 0
}

func (c *cli) handleExists(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(c.errOut, "Usage: exists <key>")
		return 2
	}

	start := time.Now()
	exists, result := c.manager.Exists(ctx, args[0], c.kind)
	if !result.OK() {
		return c.fail("exists", result, start)
	}
	if c.json {
		c.done(start, map[string]interface{}{"exists": exists})
		return 0
	}
	if exists {
		fmt.Fprintln(c.out, "1")
	} else {
		fmt.Fprintln(c.out, "0")
	}
	c.done(start, nil)
	return 0
}

func (c *cli) handleList(ctx context.Context) int {
	start := time.Now()
	keys, result := c.manager.ListKeys(ctx, c.kind)
	if !result.OK() {
		return c.fail("list", result, start)
	}
	sort.Strings(keys)

	if c.json {
		if keys == nil {
			keys = []string{}
		}
		c.done(start, map[string]interface{}{"keys": keys, "count": len(keys)})
		return 0
	}
	if len(keys) == 0 {
		fmt.Fprintln(c.out, "(empty list)")
		return 0
	}
	for i, key := range keys {
		fmt.Fprintf(c.out, "%d) %s\n", i+1, key)
	}
	c.done(start, nil)
	return 0
}

// handleClear needs --yes, or "all" to clear every kind.
func (c *cli) handleClear(ctx context.Context, args []string) int {
	all, confirmed := false, false
	for _, a := range args {
		switch a {
		case "all":
			all = true
		case "--yes", "-y":
			confirmed = true
		}
	}
	if !confirmed {
		fmt.Fprintln(c.errOut, "Refusing to clear without --yes")
		return 2
	}

	start := time.Now()
	var result storage.Result
	if all {
		result = c.manager.ClearAll(ctx)
	} else {
		result = c.manager.Clear(ctx, c.kind)
	}
	if !result.OK() {
		return c.fail("clear", result, start)
	}
	if !c.json {
		fmt.Fprintln(c.out, "OK")
	}
	c.done(start, map[string]interface{}{"all": all})
	return 0
}

func (c *cli) handleStats(ctx context.Context) int {
	start := time.Now()
	all, result := c.manager.StatisticsAll(ctx)
	if result == storage.NotInitialized {
		return c.fail("stats", result, start)
	}

	kinds := make([]storage.Kind, 0, len(all))
	for kind := range all {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	if c.json {
		providers := make(map[string]storage.Statistics, len(all))
		for kind, stats := range all {
			providers[kind.String()] = stats
		}
		c.done(start, map[string]interface{}{"result": result.String(), "providers": providers})
		return 0
	}

	for _, kind := range kinds {
		stats := all[kind]
		available := "unknown"
		if stats.AvailableSpaceBytes >= 0 {
			available = humanize.Bytes(uint64(stats.AvailableSpaceBytes))
		}
		fmt.Fprintf(c.out, "%s:\n", kind)
		fmt.Fprintf(c.out, "  Items: %s\n", humanize.Comma(stats.ItemCount))
		fmt.Fprintf(c.out, "  Size: %s\n", humanize.Bytes(uint64(stats.TotalSizeBytes)))
		fmt.Fprintf(c.out, "  Available: %s\n", available)
		fmt.Fprintf(c.out, "  Healthy: %v\n", stats.Healthy)
		if !stats.LastModified.IsZero() {
			fmt.Fprintf(c.out, "  Last modified: %s\n", humanize.Time(stats.LastModified))
		}
	}
	c.done(start, nil)
	return 0
}

// handleInspect reads a binary-file entry from disk and reports its envelope
// header without decoding the payload.
func (c *cli) handleInspect(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(c.errOut, "Usage: inspect <key>")
		return 2
	}
	key := args[0]
	if err := storage.ValidateFileKey(key); err != nil {
		fmt.Fprintf(c.errOut, "Error: %v\n", err)
		return 2
	}

	path := filepath.Join(c.cfg.BinaryPath(), c.cfg.Storage.KeyPrefix+key+c.cfg.Storage.BinaryExtension)
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.errOut, "Error: %v\n", err)
		return 1
	}

	start := time.Now()
	header, err := envelope.ReadHeader(raw)
	if err != nil {
		if c.json {
			c.outputJSON(map[string]interface{}{"path": path, "valid": false, "error": err.Error()})
		} else {
			fmt.Fprintf(c.out, "%s: invalid envelope: %v\n", path, err)
		}
		return 1
	}

	algorithm := "none"
	if header.Compressed {
		payload, _, _ := envelope.Decode(raw)
		if algorithm, err = compression.Algorithm(payload); err != nil {
			algorithm = "unknown"
		}
	}

	if c.json {
		c.outputJSON(map[string]interface{}{
			"path":           path,
			"valid":          true,
			"version":        header.Version,
			"compressed":     header.Compressed,
			"algorithm":      algorithm,
			"payload_length": header.Length,
			"file_size":      len(raw),
			"duration_ms":    time.Since(start).Milliseconds(),
		})
		return 0
	}
	fmt.Fprintf(c.out, "Path: %s\n", path)
	fmt.Fprintf(c.out, "Version: %d\n", header.Version)
	fmt.Fprintf(c.out, "Compressed: %v\n", header.Compressed)
	if header.Compressed {
		fmt.Fprintf(c.out, "Algorithm: %s\n", algorithm)
	}
	fmt.Fprintf(c.out, "Payload: %s\n", humanize.Bytes(uint64(header.Length)))
	fmt.Fprintf(c.out, "File: %s\n", humanize.Bytes(uint64(len(raw))))
	return 0
}

func (c *cli) outputJSON(data interface{}) {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(c.errOut, "Error formatting JSON: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, string(output))
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `persistctl - Persistence Engine data tool

Usage:
  persistctl [options] <command> [args...]

Options:
  -config string
        Path to configuration file
  -preset string
        Configuration preset: development, debug, release, production
  -data string
        Data directory (overrides the configuration)
  -kind string
        Storage kind: keyvalue, jsonfile, binaryfile, database, cloud
  -timeout duration
        Command timeout (default "30s")
  -v    Verbose output
  -json Output in JSON format

Commands:
  save <key> <value|@file|->
        Store a value, read from a file with @file or stdin with -
  load <key>
        Print a value; binary values are printed as base64
  delete <key>
        Delete a key
  exists <key>
        Check if a key exists
  list
        List keys of the selected kind
  clear [all] --yes
        Remove every key of the selected kind, or of every kind
  stats
        Show statistics for every kind
  inspect <key>
        Show the envelope header of a binary-file entry

Examples:
  persistctl -data ./data save settings '{"volume":7}'
  persistctl -kind jsonfile load score
  persistctl -kind binaryfile inspect slot1
  persistctl -json stats
`)
}
