package gemini

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func rawTool(name, input, output string) mcp.Tool {
	t := mcp.Tool{Name: name, Description: "d", RawInputSchema: json.RawMessage(input)}
	if output != "" {
		t.RawOutputSchema = json.RawMessage(output)
	}
	return t
}

func TestValidateTool(t *testing.T) {
	obj := `{"type":"object","properties":{}}`
	tests := []struct {
		name       string
		tool       mcp.Tool
		valid      bool
		errContain string
	}{
		{"valid", rawTool("get_pets", obj, `{"type":"object"}`), true, ""},
		{"long name", rawTool(strings.Repeat("a", 65), obj, ""), false, "exceeds 64"},
		{"dash", rawTool("get-pets", obj, ""), false, "invalid characters"},
		{"leading digit", rawTool("1pets", obj, ""), false, "invalid characters"},
		{"oneOf", rawTool("t", `{"type":"object","oneOf":[{"type":"object"}]}`, ""), false, "'oneOf'"},
		{"nested ref", rawTool("t", `{"type":"object","properties":{"a":{"$ref":"#/x"}}}`, ""), false, "In property 'a': Schema contains unsupported keyword '$ref'"},
		{"additionalProperties", rawTool("t", `{"type":"object","additionalProperties":false}`, ""), false, "additionalProperties"},
		{"array output", rawTool("t", obj, `{"type":"array"}`), false, "found 'array'"},
		{"bad schema", rawTool("t", `{"type":"object","required":"nope"}`, ""), false, "does not compile"},
		{"typed schema", mcp.Tool{Name: "t", Description: "d", InputSchema: mcp.ToolInputSchema{Type: "object"}}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateTool(tt.tool)
			if r.IsValid != tt.valid {
				t.Fatalf("IsValid = %v, errors %v", r.IsValid, r.Errors)
			}
			if tt.errContain == "" {
				return
			}
			found := false
			for _, e := range r.Errors {
				if strings.Contains(e, tt.errContain) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %q", r.Errors, tt.errContain)
			}
		})
	}
}

func TestValidateToolWarnsWithoutDescription(t *testing.T) {
	r := ValidateTool(mcp.Tool{Name: "t", InputSchema: mcp.ToolInputSchema{Type: "object"}})
	if !r.IsValid || len(r.Warnings) != 1 {
		t.Errorf("result = %+v", r)
	}
}

func TestValidateAllAndReport(t *testing.T) {
	tools := []mcp.Tool{
		rawTool("good", `{"type":"object","properties":{}}`, ""),
		rawTool("bad-name", `{"type":"object","properties":{}}`, ""),
	}
	report := ValidateAll(tools)
	if report.TotalTools != 2 || report.ValidTools != 1 || report.InvalidTools != 1 {
		t.Fatalf("report = %+v", report)
	}

	var buf bytes.Buffer
	PrintReport(&buf, report, false)
	out := buf.String()
	if !strings.Contains(out, "bad-name") || strings.Contains(out, "good\n") {
		t.Errorf("report output:\n%s", out)
	}

	buf.Reset()
	PrintReport(&buf, report, true)
	if !strings.Contains(buf.String(), "good") {
		t.Errorf("verbose report output:\n%s", buf.String())
	}
}
