package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceType identifies the kind of data source a task talks to.
type SourceType int

const (
	// SourceNone means the task has no known data source.
	SourceNone SourceType = iota
	// SourcePostgreSQL is a PostgreSQL database.
	SourcePostgreSQL
	// SourceMySQL is a MySQL or MariaDB database.
	SourceMySQL
	// SourceANSI is a generic SQL database.
	SourceANSI
	// SourceSnowflake is a Snowflake warehouse.
	SourceSnowflake
)

var sourceTypeNames = map[SourceType]string{
	SourceNone:       "NONE",
	SourcePostgreSQL: "POSTGRESQL",
	SourceMySQL:      "MYSQL",
	SourceANSI:       "ANSI",
	SourceSnowflake:  "SNOWFLAKE",
}

// String returns the upper-case source type name.
func (s SourceType) String() string {
	if name, ok := sourceTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SourceType(%d)", int(s))
}

// ParseSourceType is the inverse of SourceType.String.
func ParseSourceType(name string) (SourceType, error) {
	for st, n := range sourceTypeNames {
		if strings.EqualFold(n, name) {
			return st, nil
		}
	}
	return SourceNone, fmt.Errorf("unknown source type %q", name)
}

// MarshalJSON encodes the source type by name.
func (s SourceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a source type name.
func (s *SourceType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	st, err := ParseSourceType(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// TableRef is a normalized, possibly schema-qualified table identifier.
type TableRef struct {
	Catalog string `json:"catalog,omitempty"`
	Schema  string `json:"schema,omitempty"`
	Name    string `json:"name"`
}

// String joins the non-empty name parts with dots: catalog.schema.name.
func (t TableRef) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Catalog, t.Schema, t.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// IsZero reports whether the reference names nothing.
func (t TableRef) IsZero() bool {
	return t.Name == ""
}

// TableNames renders a list of references as strings.
func TableNames(refs []TableRef) []string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.String()
	}
	return names
}

// Metadata is the lineage record produced for one task.
type Metadata struct {
	Name       string     `json:"name"`
	SourceType SourceType `json:"source_type"`
	SourceName string     `json:"source_name,omitempty"`
	Inputs     []TableRef `json:"inputs"`
	Outputs    []TableRef `json:"outputs"`

	// Location is a permalink to the code that defines the task, if known.
	Location string `json:"location,omitempty"`
}
