// Package config holds the server settings. Values come from the
// environment first and may be overridden by command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

type Config struct {
	// HTTP
	Host string
	Port string

	// Ledger
	Driver       string
	MySQLDSN     string
	SnapshotPath string
	AirportsCSV  string

	// Scheduling
	HomeBase        string
	LongHaulMinutes int
	RouteCacheSize  int
	CommitRecheck   bool

	// Cancellation policy
	CustomerCancelWindow time.Duration
	RetentionFeePercent  int
	ManagerCancelNotice  time.Duration

	SweepInterval time.Duration

	LogLevel string
	LogDir   string
}

func Default() Config {
	return Config{
		Port:                 "4000",
		Driver:               DriverMemory,
		SnapshotPath:         "data/ledger.json",
		AirportsCSV:          "data/airports.csv",
		HomeBase:             "TLV",
		LongHaulMinutes:      360,
		RouteCacheSize:       256,
		CommitRecheck:        true,
		CustomerCancelWindow: 36 * time.Hour,
		RetentionFeePercent:  5,
		ManagerCancelNotice:  72 * time.Hour,
		SweepInterval:        time.Minute,
		LogLevel:             "info",
	}
}

// FromEnv starts from Default and applies any environment overrides.
func FromEnv() Config {
	d := Default()
	return Config{
		Host:                 getEnv("HOST", d.Host),
		Port:                 getEnv("PORT", d.Port),
		Driver:               getEnv("LEDGER_DRIVER", d.Driver),
		MySQLDSN:             getEnv("MYSQL_DSN", d.MySQLDSN),
		SnapshotPath:         getEnv("SNAPSHOT_PATH", d.SnapshotPath),
		AirportsCSV:          getEnv("AIRPORTS_CSV", d.AirportsCSV),
		HomeBase:             getEnv("HOME_BASE", d.HomeBase),
		LongHaulMinutes:      getEnvInt("LONG_HAUL_MINUTES", d.LongHaulMinutes),
		RouteCacheSize:       getEnvInt("ROUTE_CACHE_SIZE", d.RouteCacheSize),
		CommitRecheck:        getEnvBool("COMMIT_RECHECK", d.CommitRecheck),
		CustomerCancelWindow: getEnvDuration("CUSTOMER_CANCEL_WINDOW", d.CustomerCancelWindow),
		RetentionFeePercent:  getEnvInt("RETENTION_FEE_PERCENT", d.RetentionFeePercent),
		ManagerCancelNotice:  getEnvDuration("MANAGER_CANCEL_NOTICE", d.ManagerCancelNotice),
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL", d.SweepInterval),
		LogLevel:             getEnv("LOG_LEVEL", d.LogLevel),
		LogDir:               getEnv("LOG_DIR", d.LogDir),
	}
}

// BindFlags registers a flag for every setting, defaulting to the current
// values of c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "interface to listen on")
	fs.StringVarP(&c.Port, "port", "p", c.Port, "HTTP port")
	fs.StringVar(&c.Driver, "driver", c.Driver, "ledger driver: memory or mysql")
	fs.StringVar(&c.MySQLDSN, "mysql-dsn", c.MySQLDSN, "MySQL DSN for the mysql driver")
	fs.StringVar(&c.SnapshotPath, "snapshot", c.SnapshotPath, "memory ledger snapshot (.json or .msgpack.zst)")
	fs.StringVar(&c.AirportsCSV, "airports", c.AirportsCSV, "airports CSV loaded into an empty memory ledger")
	fs.StringVar(&c.HomeBase, "home-base", c.HomeBase, "airport code of resources with no flight history")
	fs.IntVar(&c.LongHaulMinutes, "long-haul-minutes", c.LongHaulMinutes, "routes longer than this are long-haul")
	fs.IntVar(&c.RouteCacheSize, "route-cache", c.RouteCacheSize, "number of routes kept in memory")
	fs.BoolVar(&c.CommitRecheck, "commit-recheck", c.CommitRecheck, "re-check availability inside the commit transaction")
	fs.DurationVar(&c.CustomerCancelWindow, "cancel-window", c.CustomerCancelWindow, "latest a customer may cancel before departure")
	fs.IntVar(&c.RetentionFeePercent, "cancel-fee", c.RetentionFeePercent, "percent of the total kept on customer cancellation")
	fs.DurationVar(&c.ManagerCancelNotice, "manager-notice", c.ManagerCancelNotice, "latest a manager may cancel before departure")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "how often departed flights are marked completed (0 disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "directory for rotated log files (empty logs to stderr only)")
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("mysql driver needs a DSN")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Driver)
	}
	if strings.TrimSpace(c.HomeBase) == "" {
		return fmt.Errorf("home base must be set")
	}
	if c.LongHaulMinutes <= 0 {
		return fmt.Errorf("long-haul threshold must be positive")
	}
	if c.RetentionFeePercent <= 0 || c.RetentionFeePercent > 100 {
		return fmt.Errorf("cancellation fee must be between 1 and 100 percent")
	}
	if c.CustomerCancelWindow < 0 || c.ManagerCancelNotice < 0 {
		return fmt.Errorf("cancellation windows cannot be negative")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
