package mcpclient

import (
	"fmt"
	"regexp"
)

// toolNameRegex validates the "server.tool" format: both parts must start
// with a word character and contain only word characters and hyphens.
var toolNameRegex = regexp.MustCompile(`^([\w][\w-]*)\.([\w][\w-]*)$`)

// SplitToolName splits a canonical "server.tool" name into its parts.
func SplitToolName(name string) (server, tool string, err error) {
	matches := toolNameRegex.FindStringSubmatch(name)
	if matches == nil {
		return "", "", fmt.Errorf(
			"invalid tool name %q: must be in 'server.tool' format (e.g. 'billing-server.get_invoices')", name)
	}
	return matches[1], matches[2], nil
}

// QualifiedName builds the canonical "server.tool" name ToolAdapter presents
// to the ChatClient for a discovered MCP tool.
func QualifiedName(server, tool string) string {
	return server + "." + tool
}
