package wire

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Operation string `json:"operation"`
	Data      any    `json:"data"`
}

// Encode builds an outbound command frame. It is a pure function with no
// I/O; payload validation is the server's job at the connection boundary.
func Encode(operation string, data any) ([]byte, error) {
	p, err := json.Marshal(envelope{Operation: operation, Data: data})
	if err != nil {
		return nil, fmt.Errorf("internal/wire: could not encode %s payload to JSON: %w", operation, err)
	}
	return p, nil
}
