package mysqlast_test

import (
	"testing"

	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/lineage/mysqlast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrict(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		in   []string
		out  []string
	}{
		{
			name: "insert select",
			sql:  "INSERT INTO users SELECT id, name FROM staging_users",
			in:   []string{"staging_users"},
			out:  []string{"users"},
		},
		{
			name: "replace into",
			sql:  "REPLACE INTO cache SELECT * FROM src",
			in:   []string{"src"},
			out:  []string{"cache"},
		},
		{
			name: "update join assigns first table",
			sql:  "UPDATE orders o JOIN customers c ON o.cid = c.id SET o.flag = 1",
			in:   []string{"customers"},
			out:  []string{"orders"},
		},
		{
			name: "single table update",
			sql:  "UPDATE accounts SET balance = 0 WHERE id IN (SELECT account_id FROM closed)",
			in:   []string{"closed"},
			out:  []string{"accounts"},
		},
		{
			name: "multi table delete resolves alias",
			sql:  "DELETE o FROM orders o JOIN customers c ON o.cid = c.id WHERE c.banned = 1",
			in:   []string{"customers"},
			out:  []string{"orders"},
		},
		{
			name: "delete",
			sql:  "DELETE FROM sessions WHERE expires_at < NOW()",
			out:  []string{"sessions"},
		},
		{
			name: "backticks keep case",
			sql:  "SELECT * FROM `Sales`.`Orders`",
			in:   []string{"Sales.Orders"},
		},
		{
			name: "create table like",
			sql:  "CREATE TABLE t2 LIKE t1",
			in:   []string{"t1"},
			out:  []string{"t2"},
		},
		{
			name: "truncate",
			sql:  "TRUNCATE TABLE staging",
			out:  []string{"staging"},
		},
		{
			name: "drop is not lineage",
			sql:  "DROP TABLE old_table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fact, err := mysqlast.ParseStrict(tt.sql)
			require.NoError(t, err)
			if tt.in == nil {
				assert.Empty(t, fact.InTables)
			} else {
				assert.Equal(t, tt.in, core.TableNames(fact.InTables))
			}
			if tt.out == nil {
				assert.Empty(t, fact.OutTables)
			} else {
				assert.Equal(t, tt.out, core.TableNames(fact.OutTables))
			}
		})
	}
}

func TestParseStrict_CTE(t *testing.T) {
	fact, err := mysqlast.ParseStrict(
		"WITH recent AS (SELECT * FROM orders) SELECT * FROM recent JOIN customers c ON recent.id = c.id")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"orders", "customers"}, core.TableNames(fact.InTables))
	assert.Empty(t, fact.OutTables)
}

func TestParseStrict_CTEScope(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		in   []string
	}{
		{
			name: "cte in derived table does not hide outer table",
			sql:  "SELECT * FROM (WITH t AS (SELECT * FROM s) SELECT * FROM t) x JOIN t ON true",
			in:   []string{"s", "t"},
		},
		{
			name: "outer cte visible in subquery",
			sql:  "WITH t AS (SELECT * FROM s) SELECT * FROM (SELECT * FROM t) x",
			in:   []string{"s"},
		},
		{
			name: "recursive cte references itself",
			sql:  "WITH RECURSIVE r AS (SELECT 1 AS n UNION ALL SELECT n + 1 FROM r WHERE n < 3) SELECT * FROM r",
			in:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fact, err := mysqlast.ParseStrict(tt.sql)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.in, core.TableNames(fact.InTables))
		})
	}
}

func TestParseStrict_Error(t *testing.T) {
	_, err := mysqlast.ParseStrict("INSERT INTO")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse mysql")
}

func TestParse_FallsBackToScanner(t *testing.T) {
	// MERGE is outside the MySQL grammar.
	fact := mysqlast.Parse("MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN DELETE")
	assert.Equal(t, []string{"s"}, core.TableNames(fact.InTables))
	assert.Equal(t, []string{"t"}, core.TableNames(fact.OutTables))

	fact = mysqlast.Parse("INSERT INTO")
	assert.True(t, fact.IsEmpty())
	assert.True(t, fact.Degraded)
}
