package types

// Event is a structured record of a successful state transition. Attributes
// are flat string pairs so downstream consumers (RPC, indexers) never need the
// emitting module's types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
