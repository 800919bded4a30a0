// Package core defines the shared language of lineagekit.
//
// This package contains:
//   - Task descriptors handed over by the workflow orchestrator (Task, Dialect)
//   - Lineage results (Metadata, TableRef, SourceType)
//   - Supporting records (Location, Connection)
//   - Error taxonomy (ErrMalformedTask, MalformedTaskError)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
