package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"fundledger/internal/app"
	"fundledger/internal/config"
	"fundledger/internal/tradingday"

	"github.com/google/subcommands"
	"gopkg.in/yaml.v3"
)

var configPath string

var commands = []subcommands.Command{
	&openCmd{},
	&applyCmd{},
	&revertCmd{},
	&flowsCmd{},
	&snapshotCmd{},
	&syncCmd{},
	&reconcileCmd{},
	&runCmd{},
	&runsCmd{},
	&importDividendsCmd{},
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// withCore loads the config, wires the services and runs fn.
func withCore(ctx context.Context, fn func(*app.Core) error) subcommands.ExitStatus {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	core, err := app.NewCore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer core.Close()
	if err := fn(core); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// parseDay parses s, falling back to fallback when s is empty.
func parseDay(s string, fallback tradingday.Date) (tradingday.Date, error) {
	d, err := tradingday.Parse(s)
	if err != nil {
		return tradingday.Date{}, err
	}
	if d.IsZero() {
		return fallback, nil
	}
	return d, nil
}

// printYAML writes v as block YAML using its JSON field names.
func printYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return err
	}
	blockStyle(&node)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	if n.Kind == yaml.ScalarNode && n.Style == yaml.DoubleQuotedStyle {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
