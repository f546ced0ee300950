// Package gemini checks compiled tools against the stricter schema rules of
// Gemini-based MCP clients and records JSONL session transcripts.
package gemini

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"
)

// MaxToolNameLength is the longest tool name Gemini accepts
const MaxToolNameLength = 64

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// unsupportedKeywords may not appear anywhere in an input schema
var unsupportedKeywords = []string{"oneOf", "anyOf", "allOf", "$ref", "additionalProperties"}

// ValidationResult is the verdict for one tool
type ValidationResult struct {
	ToolName string   `json:"tool_name"`
	IsValid  bool     `json:"is_valid"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

// CompatibilityReport aggregates results for a tool set
type CompatibilityReport struct {
	TotalTools   int                `json:"total_tools"`
	ValidTools   int                `json:"valid_tools"`
	InvalidTools int                `json:"invalid_tools"`
	Results      []ValidationResult `json:"results"`
}

// ValidateTool checks one tool
func ValidateTool(tool mcp.Tool) ValidationResult {
	result := ValidationResult{ToolName: tool.Name, IsValid: true}

	if n := len(tool.Name); n > MaxToolNameLength {
		result.fail("Tool name exceeds %d characters (%d chars): '%s'", MaxToolNameLength, n, tool.Name)
	}
	if !toolNamePattern.MatchString(tool.Name) {
		result.fail("Tool name contains invalid characters: '%s'", tool.Name)
	}

	input, err := inputSchema(tool)
	if err != nil {
		result.fail("Input schema is not valid JSON: %v", err)
	} else {
		for _, issue := range schemaIssues(input, "") {
			result.fail("%s", issue)
		}
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(input)); err != nil {
			result.fail("Input schema does not compile: %v", err)
		}
	}

	if t, ok := outputSchemaType(tool); ok && t != "object" {
		result.fail("Output schema type must be 'object', found '%s'", t)
	}

	if tool.Description == "" {
		result.Warnings = append(result.Warnings, "Tool has no description")
	}
	return result
}

// ValidateAll checks every tool
func ValidateAll(tools []mcp.Tool) CompatibilityReport {
	report := CompatibilityReport{TotalTools: len(tools), Results: make([]ValidationResult, 0, len(tools))}
	for _, t := range tools {
		r := ValidateTool(t)
		if r.IsValid {
			report.ValidTools++
		}
		report.Results = append(report.Results, r)
	}
	report.InvalidTools = report.TotalTools - report.ValidTools
	return report
}

func inputSchema(tool mcp.Tool) (map[string]any, error) {
	raw := tool.RawInputSchema
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(tool.InputSchema); err != nil {
			return nil, err
		}
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// outputSchemaType returns the declared type of the output schema, if any
func outputSchemaType(tool mcp.Tool) (string, bool) {
	if len(tool.RawOutputSchema) > 0 {
		var out struct {
			Type any `json:"type"`
		}
		if json.Unmarshal(tool.RawOutputSchema, &out) != nil || out.Type == nil {
			return "", false
		}
		return fmt.Sprint(out.Type), true
	}
	if tool.OutputSchema.Type == "" {
		return "", false
	}
	return tool.OutputSchema.Type, true
}

// schemaIssues walks schema through properties, prefixing nested findings
// with their property path
func schemaIssues(schema map[string]any, prefix string) []string {
	var issues []string
	for _, kw := range unsupportedKeywords {
		if _, ok := schema[kw]; ok {
			issues = append(issues, fmt.Sprintf("%sSchema contains unsupported keyword '%s'", prefix, kw))
		}
	}

	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if child, ok := props[name].(map[string]any); ok {
			issues = append(issues, schemaIssues(child, fmt.Sprintf("%sIn property '%s': ", prefix, name))...)
		}
	}
	return issues
}
