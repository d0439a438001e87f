// Command schemagen writes one JSON Schema document per wire message type
// in the transport package, so client implementations in any language can
// validate frames against a generated contract instead of hand-transcribing
// the Go structs. It runs as a build-time step, never at server startup.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"

	"duelcore/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	flagSet := flag.NewFlagSet("schemagen", flag.ContinueOnError)
	flagSet.SetOutput(stderr)

	var outDir string
	flagSet.StringVar(&outDir, "out", "", "Directory to write one <TypeName>.schema.json file per wire message type.")

	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage of %s:\n", flagSet.Name())
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if outDir == "" {
		flagSet.Usage()
		return fmt.Errorf("schemagen: missing required flag --out")
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		flagSet.Usage()
		return fmt.Errorf("schemagen: unexpected arguments: %v", extra)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("schemagen: create output directory: %w", err)
	}

	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	targets := []struct {
		name string
		typ  reflect.Type
	}{
		{"ClientHello", reflect.TypeOf(transport.ClientHello{})},
		{"ServerWelcome", reflect.TypeOf(transport.ServerWelcome{})},
		{"JoinBaseline", reflect.TypeOf(transport.JoinBaseline{})},
		{"InputCmd", reflect.TypeOf(transport.InputCmd{})},
		{"Snapshot", reflect.TypeOf(transport.Snapshot{})},
	}

	for _, target := range targets {
		schema := reflector.ReflectFromType(target.typ)
		if schema == nil {
			return fmt.Errorf("schemagen: failed to reflect schema for %s", target.name)
		}
		schema.Title = "duelcore " + target.name
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("schemagen: marshal schema for %s: %w", target.name, err)
		}
		path := filepath.Join(outDir, target.name+".schema.json")
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("schemagen: write %s: %w", path, err)
		}
		fmt.Fprintf(stderr, "schemagen: wrote %s\n", path)
	}

	return nil
}
