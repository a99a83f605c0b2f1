package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	rq := require.New(t)
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("COMMISSION_OVERRIDES", "7:19.5,12:22")
	t.Setenv("ADMIN_IDS", "1,2")

	cfg, err := Load()
	rq.NoError(err)

	rq.Equal(DriverSQLite, cfg.Database.Driver)
	rq.Equal("data/bot.db", cfg.Database.ConnString())
	rq.Equal(15.0, cfg.Quota.DefaultCommission)
	rq.Equal(5, cfg.Quota.FreeCalculationsLimit)
	rq.InDelta(4.8, cfg.Quota.DefaultStorageCost(), 1e-9)
	rq.Equal(149, cfg.Quota.SubscriptionPrice)
	rq.Equal(30, cfg.Quota.SubscriptionDays)
	rq.Equal(int64(10), cfg.RateLimit.Requests)
	rq.Equal(time.Minute, cfg.RateLimit.Window)
	rq.Equal(map[int]float64{7: 19.5, 12: 22}, cfg.WB.CommissionOverrides)
	rq.Len(cfg.HTTP.CORSOrigins, 4)
	rq.True(cfg.IsAdmin(2))
	rq.False(cfg.IsAdmin(3))
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }},
		{name: "free limit", mutate: func(c *Config) { c.Quota.FreeCalculationsLimit = -1 }},
		{name: "commission", mutate: func(c *Config) { c.Quota.DefaultCommission = 101 }},
		{name: "subscription days", mutate: func(c *Config) { c.Quota.SubscriptionDays = 0 }},
		{name: "override", mutate: func(c *Config) { c.WB.CommissionOverrides = map[int]float64{1: -2} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestDatabase_ConnString(t *testing.T) {
	d := Database{Driver: DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", Name: "n"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.ConnString())

	d.DSN = "postgres://x"
	require.Equal(t, "postgres://x", d.ConnString())
}

func validConfig() Config {
	return Config{
		Database: Database{Driver: DriverPostgres},
		Quota:    Quota{DefaultCommission: 15, FreeCalculationsLimit: 5, SubscriptionDays: 30},
	}
}
