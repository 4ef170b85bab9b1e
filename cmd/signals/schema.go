package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	engine_v1 "github.com/rxtech-lab/argo-signals/internal/backtest/engine/engine_v1"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	schemaFileName = "backtest-engine-v1-config.json"
	sampleFileName = "backtest-engine-v1-config.yaml"
)

// writeSchema writes the engine config JSON schema into dir, plus a sample config
// pointing at it when none exists yet. It returns the written paths.
func writeSchema(dir string) ([]string, error) {
	config := engine_v1.DefaultConfig()

	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	schemaPath := filepath.Join(dir, schemaFileName)
	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		return nil, fmt.Errorf("failed to write schema: %w", err)
	}

	written := []string{schemaPath}

	samplePath := filepath.Join(dir, sampleFileName)
	if _, err := os.Stat(samplePath); os.IsNotExist(err) {
		yamlBytes, err := yaml.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sample config: %w", err)
		}

		yamlBytes = append([]byte("# yaml-language-server: $schema="+schemaFileName+"\n"), yamlBytes...)

		if err := os.WriteFile(samplePath, yamlBytes, 0644); err != nil {
			return nil, fmt.Errorf("failed to write sample config: %w", err)
		}

		written = append(written, samplePath)
	}

	return written, nil
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Write the engine config JSON schema and a sample config",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"o"},
				Usage:   "Output directory",
				Value:   "config",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			written, err := writeSchema(cmd.String("dir"))
			if err != nil {
				return err
			}

			for _, path := range written {
				if _, err := fmt.Fprintf(cmd.Root().Writer, "Wrote %s\n", path); err != nil {
					return err
				}
			}

			return nil
		},
	}
}
