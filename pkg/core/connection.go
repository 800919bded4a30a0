package core

// Connection is a named database connection known to the orchestrator.
// Passwords are never stored.
type Connection struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type" yaml:"type"` // postgres, mysql, ...
	Host   string `json:"host,omitempty" yaml:"host,omitempty"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty"`
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"` // database name
	Login  string `json:"login,omitempty" yaml:"login,omitempty"`
}
