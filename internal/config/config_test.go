package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"HOST", "PORT", "LEDGER_DRIVER", "LOG_LEVEL", "LOG_DIR"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	assert.Equal(t, Default(), c)
	assert.Equal(t, ":4000", c.Addr())
	require.NoError(t, c.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("LEDGER_DRIVER", "mysql")
	t.Setenv("MYSQL_DSN", "app:secret@tcp(db:3306)/airline")
	t.Setenv("CUSTOMER_CANCEL_WINDOW", "48h")
	t.Setenv("COMMIT_RECHECK", "false")
	t.Setenv("LONG_HAUL_MINUTES", "not-a-number")

	c := FromEnv()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, DriverMySQL, c.Driver)
	assert.Equal(t, 48*time.Hour, c.CustomerCancelWindow)
	assert.False(t, c.CommitRecheck)
	assert.Equal(t, 360, c.LongHaulMinutes, "bad values fall back to the default")
	require.NoError(t, c.Validate())
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	c := FromEnv()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-p", "9090", "--home-base", "ATH", "--manager-notice", "24h"}))

	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, "ATH", c.HomeBase)
	assert.Equal(t, 24*time.Hour, c.ManagerCancelNotice)
	assert.Equal(t, 5, c.RetentionFeePercent)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Driver = DriverMySQL
	assert.Error(t, c.Validate())

	c = Default()
	c.Driver = "postgres"
	assert.Error(t, c.Validate())

	c = Default()
	c.RetentionFeePercent = 150
	assert.Error(t, c.Validate())
}
