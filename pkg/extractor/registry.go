package extractor

import (
	"log/slog"

	"github.com/leapstack-labs/lineagekit/pkg/core"
)

// Locator resolves the file that defines a task to a source permalink.
type Locator interface {
	Locate(path string) (string, error)
}

// Extractors selects the extractor for a task. It is read-only after
// construction and safe for concurrent use.
type Extractors struct {
	extractors []Extractor
	locator    Locator
	logger     *slog.Logger
}

// NewExtractors creates a registry that tries extractors in the given
// order and falls back to a DefaultExtractor.
// If logger is nil, a discard logger is used.
func NewExtractors(logger *slog.Logger, extractors ...Extractor) *Extractors {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	list := make([]Extractor, 0, len(extractors)+1)
	for _, e := range extractors {
		if e != nil {
			list = append(list, e)
		}
	}
	list = append(list, DefaultExtractor{})
	return &Extractors{extractors: list, logger: logger}
}

// Default returns the standard registry: PostgreSQL, MySQL, ANSI and
// Snowflake extractors, then the default.
func Default(logger *slog.Logger) *Extractors {
	return NewExtractors(logger,
		NewPostgresExtractor(logger),
		NewMySQLExtractor(logger),
		NewANSIExtractor(logger),
		NewSnowflakeExtractor(logger),
	)
}

// WithLocator returns a copy of the registry that sets Metadata.Location
// for tasks with a FilePath. Locator failures are logged, not returned.
func (r *Extractors) WithLocator(l Locator) *Extractors {
	cp := *r
	cp.locator = l
	return &cp
}

// List returns the registered extractors in the order they are tried,
// the default last.
func (r *Extractors) List() []Extractor {
	out := make([]Extractor, len(r.extractors))
	copy(out, r.extractors)
	return out
}

// ExtractorFor returns the first extractor whose CanExtract accepts the
// task. It never returns nil.
func (r *Extractors) ExtractorFor(task *core.Task) Extractor {
	for _, e := range r.extractors {
		if e.CanExtract(task) {
			return e
		}
	}
	// Not reached: the default extractor matches every task.
	return DefaultExtractor{}
}

// Extract runs the matching extractor on the task.
func (r *Extractors) Extract(task *core.Task) (*core.Metadata, error) {
	md, err := r.ExtractorFor(task).Extract(task)
	if err != nil {
		return nil, err
	}

	if r.locator != nil && task.FilePath != "" {
		loc, err := r.locator.Locate(task.FilePath)
		if err != nil {
			r.logger.Debug("source location unavailable", "task", md.Name, "path", task.FilePath, "error", err)
		} else {
			md.Location = loc
		}
	}
	return md, nil
}
