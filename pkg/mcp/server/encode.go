package server

import (
	"encoding/json"

	"github.com/ubermorgenland/yas-mcp/pkg/mcp/protocol"
)

// mustMarshal encodes a response built from plain values, which cannot fail
func mustMarshal(resp *protocol.Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		panic(err)
	}
	return data
}
