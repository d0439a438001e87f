// Command replayverify re-simulates a recorded match artifact from its
// stored seed and applied-input stream and confirms it reproduces the
// artifact's initialization and final digests. All of the actual logic
// lives in replay.Verify; this is a thin flag-driven front end.
package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"duelcore/logging"
	"duelcore/logging/sinks"
	"duelcore/replay"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flagSet := flag.NewFlagSet("replayverify", flag.ContinueOnError)
	flagSet.SetOutput(stderr)

	var artifactPath string
	var development bool
	flagSet.StringVar(&artifactPath, "artifact", "", "Path to a .replay.json.gz artifact file.")
	flagSet.BoolVar(&development, "development", false, "Warn instead of failing on a build fingerprint mismatch.")

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

	if artifactPath == "" {
		flagSet.Usage()
		return fmt.Errorf("replayverify: missing required flag --artifact")
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		flagSet.Usage()
		return fmt.Errorf("replayverify: unexpected arguments: %v", extra)
	}

	artifact, err := loadArtifact(artifactPath)
	if err != nil {
		return fmt.Errorf("replayverify: load artifact: %w", err)
	}

	mode := replay.ModeStrict
	if development {
		mode = replay.ModeDevelopment
	}

	router, err := logging.NewRouter(logging.DefaultConfig(), logging.SystemClock{}, nil, map[string]logging.Sink{
		"console": sinks.NewConsoleSink(stdout),
	})
	if err != nil {
		return fmt.Errorf("replayverify: construct logging router: %w", err)
	}
	defer router.Close(context.Background())

	ctx := context.Background()
	if err := replay.Verify(ctx, router, artifact, replay.CurrentFingerprint(), mode); err != nil {
		var verr *replay.VerifyError
		if errors.As(err, &verr) {
			return fmt.Errorf("replayverify: FAIL at step %q: %s", verr.Step, verr.Reason)
		}
		return fmt.Errorf("replayverify: %w", err)
	}

	fmt.Fprintf(stdout, "replayverify: PASS (checkpoint_tick=%d, end_reason=%s)\n", artifact.CheckpointTick, artifact.EndReason)
	return nil
}

func loadArtifact(path string) (*replay.Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	var artifact replay.Artifact
	if err := json.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("decode artifact json: %w", err)
	}
	return &artifact, nil
}
