package types

import (
	"fmt"
	"strings"
)

// CircuitSeparator joins the contract tag and the circuit name.
const CircuitSeparator = "#"

// CircuitID identifies a compiled circuit as "<contractTag>#<circuitName>",
// for example "donation#donate". It is the key used to locate every ZK
// artifact of the circuit.
type CircuitID string

// NewCircuitID builds the identifier of circuit name in contract tag.
func NewCircuitID(tag, name string) CircuitID {
	return CircuitID(tag + CircuitSeparator + name)
}

// ParseCircuitID validates s and returns it as a CircuitID. Surrounding
// whitespace is trimmed.
func ParseCircuitID(s string) (CircuitID, error) {
	s = strings.TrimSpace(s)
	tag, name, ok := strings.Cut(s, CircuitSeparator)
	if !ok || tag == "" || name == "" || strings.Contains(name, CircuitSeparator) {
		return "", fmt.Errorf("invalid circuit id %q: expected <contractTag>#<circuitName>", s)
	}
	return CircuitID(s), nil
}

// Tag returns the contract tag part of the identifier.
func (c CircuitID) Tag() string {
	tag, _, _ := strings.Cut(string(c), CircuitSeparator)
	return tag
}

// Name returns the circuit name part of the identifier. Identifiers without
// a tag are returned whole.
func (c CircuitID) Name() string {
	_, name, ok := strings.Cut(string(c), CircuitSeparator)
	if !ok {
		return string(c)
	}
	return name
}

func (c CircuitID) String() string {
	return string(c)
}
