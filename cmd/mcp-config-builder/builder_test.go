package main

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/chzyer/readline"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ubermorgenland/yas-mcp/pkg/adjuster"
	"github.com/ubermorgenland/yas-mcp/pkg/logger"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/yas-mcp/pkg/requester"
)

// scripted answers prompts from a fixed list, then reports EOF
type scripted struct {
	lines   []string
	prompts []string
	err     error
}

func (s *scripted) SetPrompt(p string) { s.prompts = append(s.prompts, p) }

func (s *scripted) Readline() (string, error) {
	if len(s.lines) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func tool(method, path string) openapi2mcp.CompiledTool {
	return openapi2mcp.CompiledTool{
		Route: requester.RouteConfig{Method: method, Path: path},
		Tool:  mcp.Tool{Name: openapi2mcp.NormalizeToolName(path, method), Description: method + " " + path},
	}
}

var sample = []openapi2mcp.CompiledTool{
	tool("GET", "/pets"),
	tool("POST", "/pets"),
	tool("GET", "/pets/{id}"),
	tool("DELETE", "/pets/{id}"),
}

func TestBuilderRun(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  adjuster.Adjustments
	}{
		{
			name:  "pick and describe",
			lines: []string{"y", "List every pet", "n", "yes", "", "no"},
			want: adjuster.Adjustments{
				Routes: []adjuster.RouteSelection{
					{Path: "/pets", Methods: []string{"GET"}},
					{Path: "/pets/{id}", Methods: []string{"GET"}},
				},
				Descriptions: []adjuster.RouteDescription{
					{Path: "/pets", Updates: []adjuster.RouteFieldUpdate{{Method: "GET", NewDescription: "List every pet"}}},
				},
			},
		},
		{
			name:  "all",
			lines: []string{"n", "a"},
			want: adjuster.Adjustments{
				Routes: []adjuster.RouteSelection{
					{Path: "/pets", Methods: []string{"POST"}},
					{Path: "/pets/{id}", Methods: []string{"GET", "DELETE"}},
				},
			},
		},
		{
			name:  "quit",
			lines: []string{"y", "", "q"},
			want: adjuster.Adjustments{
				Routes: []adjuster.RouteSelection{{Path: "/pets", Methods: []string{"GET"}}},
			},
		},
		{
			name:  "end of input keeps selection",
			lines: []string{"y", ""},
			want: adjuster.Adjustments{
				Routes: []adjuster.RouteSelection{{Path: "/pets", Methods: []string{"GET"}}},
			},
		},
		{
			name:  "invalid answer is asked again",
			lines: []string{"maybe", "y", "", "q"},
			want: adjuster.Adjustments{
				Routes: []adjuster.RouteSelection{{Path: "/pets", Methods: []string{"GET"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			b := &builder{in: &scripted{lines: tt.lines}, out: &out}
			got, err := b.run(sample)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("adjustments = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBuilderInterrupt(t *testing.T) {
	b := &builder{in: &scripted{lines: []string{"y", ""}, err: readline.ErrInterrupt}, out: io.Discard}
	if _, err := b.run(sample); !errors.Is(err, errAborted) {
		t.Fatalf("run = %v, want errAborted", err)
	}
}

func TestBuilderOutputLoadsBack(t *testing.T) {
	b := &builder{in: &scripted{lines: []string{"y", "Create", "y", "", "n", "n"}}, out: io.Discard}
	adj, err := b.run(sample[1:])
	if err != nil {
		t.Fatal(err)
	}

	path := t.TempDir() + "/adj.yaml"
	if err := adjuster.Save(path, adj); err != nil {
		t.Fatal(err)
	}
	a := adjuster.New(logger.Nop())
	if err := a.Load(path); err != nil {
		t.Fatal(err)
	}
	if !a.ExistsInMcp("/pets", "POST") || a.ExistsInMcp("/pets/{id}", "DELETE") {
		t.Error("selection did not round trip")
	}
	if got := a.GetDescription("/pets", "POST", "orig"); got != "Create" {
		t.Errorf("description = %q", got)
	}
}
