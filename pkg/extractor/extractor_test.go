package extractor_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/leapstack-labs/lineagekit/internal/testutil"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskName(t *testing.T) {
	tests := []struct {
		name      string
		task      *core.Task
		want      string
		wantField string
	}{
		{"composed", &core.Task{WorkflowID: "daily_etl", TaskID: "load_users"}, "daily_etl.load_users", ""},
		{"missing task id", &core.Task{WorkflowID: "daily_etl"}, "", "task_id"},
		{"missing workflow id", &core.Task{TaskID: "load_users"}, "", "workflow_id"},
		{"blank workflow id", &core.Task{WorkflowID: "  ", TaskID: "x"}, "", "workflow_id"},
		{"nil task", nil, "", "task"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractor.TaskName(tt.task)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrMalformedTask)
			var mte *core.MalformedTaskError
			require.True(t, errors.As(err, &mte))
			assert.Equal(t, tt.wantField, mte.Field)
		})
	}
}

func TestDefaultExtractor(t *testing.T) {
	var d extractor.DefaultExtractor
	assert.True(t, d.CanExtract(nil))
	assert.True(t, d.CanExtract(&core.Task{Dialect: core.DialectPostgres}))

	md, err := d.Extract(&core.Task{WorkflowID: "w", TaskID: "t", SQL: "SELECT * FROM a"})
	require.NoError(t, err)
	assert.Equal(t, "w.t", md.Name)
	assert.Equal(t, core.SourceNone, md.SourceType)
	assert.Empty(t, md.Inputs)
	assert.Empty(t, md.Outputs)
}

func TestExtractorFor_Selection(t *testing.T) {
	pg := extractor.NewPostgresExtractor(testutil.NewTestLogger(t))
	reg := extractor.NewExtractors(testutil.NewTestLogger(t), pg)

	got := reg.ExtractorFor(&core.Task{WorkflowID: "w", TaskID: "t", Dialect: core.DialectPostgres})
	assert.Same(t, pg, got)

	got = reg.ExtractorFor(&core.Task{WorkflowID: "w", TaskID: "t", Dialect: core.DialectMySQL})
	assert.IsType(t, extractor.DefaultExtractor{}, got)
}

func TestExtractorFor_RegistrationOrder(t *testing.T) {
	first := extractor.NewSQLExtractor(core.DialectANSI, extractor.ScannerFor(nil), nil)
	second := extractor.NewSQLExtractor(core.DialectANSI, extractor.ScannerFor(nil), nil)
	reg := extractor.NewExtractors(nil, first, second)

	assert.Same(t, first, reg.ExtractorFor(&core.Task{Dialect: core.DialectANSI}))
}

func TestSQLExtractor_SourceTypeFromDialect(t *testing.T) {
	tests := []struct {
		tag  core.Dialect
		want core.SourceType
	}{
		{core.DialectPostgres, core.SourcePostgreSQL},
		{core.DialectMySQL, core.SourceMySQL},
		{core.DialectANSI, core.SourceANSI},
		{core.DialectSnowflake, core.SourceSnowflake},
		{core.Dialect("oracle"), core.SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.tag.String(), func(t *testing.T) {
			e := extractor.NewSQLExtractor(tt.tag, extractor.ScannerFor(nil), nil)
			md, err := e.Extract(&core.Task{WorkflowID: "w", TaskID: "t", Dialect: tt.tag, SQL: "SELECT * FROM s"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, md.SourceType)
			assert.Equal(t, []string{"s"}, core.TableNames(md.Inputs))
		})
	}
}

// The default extractor is always reachable, so selection never fails.
func TestExtractorFor_AlwaysMatches(t *testing.T) {
	registries := map[string]*extractor.Extractors{
		"empty":   extractor.NewExtractors(nil),
		"nil":     extractor.NewExtractors(nil, nil),
		"default": extractor.Default(nil),
	}
	tasks := []*core.Task{
		nil,
		{},
		{Dialect: core.DialectNone},
		{Dialect: core.Dialect("oracle")},
		{Dialect: core.DialectPostgres},
	}

	for name, reg := range registries {
		t.Run(name, func(t *testing.T) {
			list := reg.List()
			require.NotEmpty(t, list)
			assert.IsType(t, extractor.DefaultExtractor{}, list[len(list)-1])
			for _, task := range tasks {
				assert.NotNil(t, reg.ExtractorFor(task))
			}
		})
	}
}

func TestExtract_EndToEnd(t *testing.T) {
	reg := extractor.NewExtractors(testutil.NewTestLogger(t), extractor.NewPostgresExtractor(testutil.NewTestLogger(t)))

	md, err := reg.Extract(&core.Task{
		WorkflowID:   "daily_etl",
		TaskID:       "load_users",
		Dialect:      core.DialectPostgres,
		ConnectionID: "analytics_db",
		SQL:          "INSERT INTO users SELECT id, name FROM staging_users",
	})
	require.NoError(t, err)
	assert.Equal(t, "daily_etl.load_users", md.Name)
	assert.Equal(t, core.SourcePostgreSQL, md.SourceType)
	assert.Equal(t, "analytics_db", md.SourceName)
	assert.Equal(t, []string{"staging_users"}, core.TableNames(md.Inputs))
	assert.Equal(t, []string{"users"}, core.TableNames(md.Outputs))
}

func TestExtract_Dialects(t *testing.T) {
	reg := extractor.Default(testutil.NewTestLogger(t))

	tests := []struct {
		dialect    core.Dialect
		sql        string
		sourceType core.SourceType
		in         []string
		out        []string
	}{
		{core.DialectPostgres, `INSERT INTO "Audit" SELECT * FROM Events`, core.SourcePostgreSQL, []string{"events"}, []string{"Audit"}},
		{core.DialectMySQL, "INSERT INTO `Audit` SELECT * FROM Events", core.SourceMySQL, []string{"Events"}, []string{"Audit"}},
		{core.DialectANSI, "INSERT INTO audit SELECT * FROM events", core.SourceANSI, []string{"events"}, []string{"audit"}},
		{core.DialectSnowflake, "INSERT INTO audit SELECT * FROM events", core.SourceSnowflake, []string{"EVENTS"}, []string{"AUDIT"}},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			md, err := reg.Extract(&core.Task{WorkflowID: "w", TaskID: "t", Dialect: tt.dialect, SQL: tt.sql})
			require.NoError(t, err)
			assert.Equal(t, tt.sourceType, md.SourceType)
			assert.Equal(t, tt.in, core.TableNames(md.Inputs))
			assert.Equal(t, tt.out, core.TableNames(md.Outputs))
		})
	}
}

func TestExtract_MalformedSQLDegrades(t *testing.T) {
	logger, rec := testutil.NewRecordingLogger(t)
	reg := extractor.Default(logger)

	md, err := reg.Extract(&core.Task{WorkflowID: "w", TaskID: "ok", Dialect: core.DialectPostgres, SQL: "SELECT * FROM a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, core.TableNames(md.Inputs))
	_, logged := rec.Find("lineage degraded")
	assert.False(t, logged, "clean SQL is not reported")

	md, err = reg.Extract(&core.Task{WorkflowID: "w", TaskID: "broken", Dialect: core.DialectPostgres, SQL: "INSERT INTO"})
	require.NoError(t, err)
	assert.Equal(t, "w.broken", md.Name)
	assert.Empty(t, md.Inputs)
	assert.Empty(t, md.Outputs)

	entry, ok := rec.Find("lineage degraded")
	require.True(t, ok)
	assert.Equal(t, slog.LevelDebug, entry.Level)
	assert.Equal(t, "postgres", entry.Attrs["extractor"])
	assert.Equal(t, "w.broken", entry.Attrs["task"])
}

func TestExtract_MissingTaskID(t *testing.T) {
	reg := extractor.Default(nil)

	for _, d := range []core.Dialect{core.DialectPostgres, core.DialectNone} {
		md, err := reg.Extract(&core.Task{WorkflowID: "w", Dialect: d, SQL: "SELECT * FROM a"})
		require.Error(t, err)
		assert.Nil(t, md)
		assert.ErrorIs(t, err, core.ErrMalformedTask)
	}
}

type fakeLocator struct {
	url string
	err error
}

func (f fakeLocator) Locate(path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url + "/" + path, nil
}

func TestExtract_WithLocator(t *testing.T) {
	task := &core.Task{WorkflowID: "w", TaskID: "t", FilePath: "dags/w.py"}

	reg := extractor.Default(nil).WithLocator(fakeLocator{url: "https://example.com/blob/abc"})
	md, err := reg.Extract(task)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/blob/abc/dags/w.py", md.Location)

	logger, rec := testutil.NewRecordingLogger(t)
	reg = extractor.Default(logger).WithLocator(fakeLocator{err: errors.New("not a git repo")})
	md, err = reg.Extract(task)
	require.NoError(t, err)
	assert.Empty(t, md.Location)
	entry, ok := rec.Find("source location unavailable")
	require.True(t, ok)
	assert.Equal(t, "not a git repo", entry.Attrs["error"])
	assert.Equal(t, "dags/w.py", entry.Attrs["path"])

	md, err = extractor.Default(nil).Extract(task)
	require.NoError(t, err)
	assert.Empty(t, md.Location)
}

func TestExtractAll(t *testing.T) {
	reg := extractor.Default(testutil.NewTestLogger(t))
	tasks := []*core.Task{
		{WorkflowID: "w", TaskID: "a", Dialect: core.DialectPostgres, SQL: "INSERT INTO a SELECT * FROM s1"},
		{WorkflowID: "w", Dialect: core.DialectPostgres, SQL: "SELECT 1"},
		{WorkflowID: "w", TaskID: "c", Dialect: core.DialectMySQL, SQL: "INSERT INTO c SELECT * FROM s3"},
		{WorkflowID: "w", TaskID: "d"},
	}

	results, err := reg.ExtractAll(context.Background(), tasks, extractor.BatchOptions{Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, results, len(tasks))

	for i, r := range results {
		assert.Same(t, tasks[i], r.Task)
	}
	assert.Equal(t, "w.a", results[0].Metadata.Name)
	assert.ErrorIs(t, results[1].Err, core.ErrMalformedTask)
	assert.Nil(t, results[1].Metadata)
	assert.Equal(t, []string{"s3"}, core.TableNames(results[2].Metadata.Inputs))
	assert.Equal(t, "w.d", results[3].Metadata.Name)
}

func TestExtractAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []*core.Task{{WorkflowID: "w", TaskID: "a"}}
	results, err := extractor.Default(nil).ExtractAll(ctx, tasks, extractor.BatchOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.Nil(t, results[0].Metadata)
}

func TestParserFor(t *testing.T) {
	tests := []struct {
		tag core.Dialect
		sql string
		in  []string
		out []string
	}{
		{core.DialectPostgres, `INSERT INTO "T" SELECT * FROM S`, []string{"s"}, []string{"T"}},
		{core.DialectMySQL, "INSERT INTO `T` SELECT * FROM S", []string{"S"}, []string{"T"}},
		{core.DialectSnowflake, "INSERT INTO t SELECT * FROM s", []string{"S"}, []string{"T"}},
		{core.DialectNone, "INSERT INTO T SELECT * FROM S", []string{"s"}, []string{"t"}},
	}

	for _, tt := range tests {
		t.Run(tt.tag.String(), func(t *testing.T) {
			fact := extractor.ParserFor(tt.tag)(tt.sql)
			assert.Equal(t, tt.in, core.TableNames(fact.InTables))
			assert.Equal(t, tt.out, core.TableNames(fact.OutTables))
		})
	}
}
