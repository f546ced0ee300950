package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

const testSpec = `openapi: 3.0.0
info:
  title: Pets
  version: "1.0"
paths:
  /pets:
    get:
      summary: List pets
      responses:
        "200":
          description: ok
    post:
      summary: Add a pet
      requestBody:
        content:
          application/json:
            schema:
              type: object
              properties:
                name:
                  type: string
      responses:
        "201":
          description: created
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(server.BuildInfo{Version: "1.2.3", Commit: "abc"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	want := "yas-mcp version 1.2.3 (commit abc, built unknown)"
	if strings.TrimSpace(out) != want {
		t.Errorf("version = %q, want %q", out, want)
	}
}

func TestToolsCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "logging:\n  level: error\n")
	spec := writeFile(t, dir, "pets.yaml", testSpec)

	out, err := execute(t, "tools", "--config", cfg, "--swagger-file", spec)
	if err != nil {
		t.Fatalf("tools: %v\n%s", err, out)
	}
	for _, want := range []string{"Total tools: 2", "get_pets", "post_pets"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestToolsCommandAdjustments(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "logging:\n  level: error\n")
	spec := writeFile(t, dir, "pets.yaml", testSpec)
	adj := writeFile(t, dir, "adj.yaml", "routes:\n  - path: /pets\n    methods: [GET]\n")

	out, err := execute(t, "tools", "--config", cfg, "--swagger-file", spec, "--adjustments-file", adj)
	if err != nil {
		t.Fatalf("tools: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Total tools: 1") || strings.Contains(out, "post_pets") {
		t.Errorf("adjustments not applied:\n%s", out)
	}
}

func TestMissingSwaggerFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "logging:\n  level: error\n")
	t.Setenv("YAS_MCP_SWAGGER_FILE", "")

	_, err := execute(t, "tools", "--config", cfg)
	if !server.IsType(err, server.ErrorTypeConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestDatabaseSourceNeedsURL(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "logging:\n  level: error\n")
	t.Setenv("YAS_MCP_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "tools", "--config", cfg, "--swagger-file", "db:pets")
	if !server.IsType(err, server.ErrorTypeConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := newRootCmd(server.BuildInfo{})
	if err := cmd.ParseFlags([]string{"--mode", "http", "-p", "8080", "-e", "http://api", "--poll-interval", "0"}); err != nil {
		t.Fatal(err)
	}

	cfg := server.DefaultConfig("dev")
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.ValidateArguments = true

	var f flags
	f.mode, f.port, f.endpoint, f.pollInterval = "http", 8080, "http://api", "0"
	applyFlags(cmd.Flags(), &f, cfg)

	if cfg.Server.Mode != server.ModeHTTP || cfg.Server.Port != 8080 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Endpoint.BaseURL != "http://api" {
		t.Errorf("base url = %q", cfg.Endpoint.BaseURL)
	}
	if cfg.Database.PollInterval != "0" {
		t.Errorf("poll interval = %q", cfg.Database.PollInterval)
	}
	if cfg.Server.Host != "0.0.0.0" || !cfg.Server.ValidateArguments {
		t.Error("unset flags overrode config values")
	}
}
