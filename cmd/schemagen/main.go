package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"netsync/server"
)

// schemagen 根据 ws 消息类型生成 JSON Schema（schemas/*.schema.json）
func main() {
	var outDir string
	flag.StringVar(&outDir, "dir", "schemas", "directory to write the JSON schemas")
	flag.Parse()

	reflector := jsonschema.Reflector{}
	targets := []struct {
		file  string
		title string
		v     any
	}{
		{"state.schema.json", "NetSync room state", new(server.StateMessage)},
		{"intent.schema.json", "NetSync key intent", new(server.IntentMessage)},
	}
	for _, t := range targets {
		schema := reflector.Reflect(t.v)
		schema.Title = t.title
		if err := writeSchema(filepath.Join(outDir, t.file), schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
			os.Exit(1)
		}
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
