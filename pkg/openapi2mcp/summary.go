// summary.go
package openapi2mcp

import (
	"fmt"
	"io"
)

// PrintToolSummary prints a human-readable summary of compiled tools: the
// total, a breakdown by HTTP method and one line per tool.
//
// Output example:
//
//	Total tools: 3
//	Methods:
//	  GET: 2
//	  POST: 1
//	Tools:
//	  get_pets                       GET /pets
//	  get_pets__petId__              GET /pets/{petId}
//	  post_pets                      POST /pets
func PrintToolSummary(w io.Writer, tools []CompiledTool) {
	methodCount := map[string]int{}
	for _, t := range tools {
		methodCount[t.Route.Method]++
	}
	fmt.Fprintf(w, "Total tools: %d\n", len(tools))
	if len(methodCount) > 0 {
		fmt.Fprintln(w, "Methods:")
		for _, m := range methodOrder {
			if n := methodCount[m]; n > 0 {
				fmt.Fprintf(w, "  %s: %d\n", m, n)
			}
		}
	}
	if len(tools) > 0 {
		fmt.Fprintln(w, "Tools:")
		for _, t := range tools {
			fmt.Fprintf(w, "  %-30s %s %s\n", t.Tool.Name, t.Route.Method, t.Route.Path)
		}
	}
}
