package server

import "fmt"

// BuildInfo identifies a build. main fills it from ldflags-set variables.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Banner renders the version line printed by `yas-mcp version`
func (b BuildInfo) Banner() string {
	return fmt.Sprintf("yas-mcp version %s (commit %s, built %s)", orUnknown(b.Version), orUnknown(b.Commit), orUnknown(b.Date))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
