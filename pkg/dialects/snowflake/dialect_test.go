package snowflake

import (
	"testing"

	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/leapstack-labs/lineagekit/pkg/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	d := Snowflake

	require.NotNil(t, d)

	assert.Equal(t, "snowflake", d.Name)
	assert.Equal(t, byte('"'), d.Identifiers.Quote)
	assert.True(t, d.DollarQuoting)
	assert.Equal(t, "ORDERS", d.NormalizeName("orders"))
	assert.True(t, d.IsReservedWord("QUALIFY"))
}

func TestDialectRegistration(t *testing.T) {
	d, ok := dialect.Get("snowflake")
	require.True(t, ok, "snowflake dialect should be registered")
	assert.Same(t, Snowflake, d)

	d, ok = dialect.ForTag(core.DialectSnowflake)
	require.True(t, ok)
	assert.Same(t, Snowflake, d)
}
