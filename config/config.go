package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Inter     InterConfig     `mapstructure:"inter"`
	Security  SecurityConfig  `mapstructure:"security"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"` // admin HTTP port
	Debug        bool   `mapstructure:"debug"`
	AdminKey     string `mapstructure:"admin_key"`
	AdminKeyHash string `mapstructure:"admin_key_hash"` // bcrypt hash, takes precedence over admin_key
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// InterConfig configures the listener that world processes connect to.
type InterConfig struct {
	ListenAddr  string        `mapstructure:"listen_addr"`
	AllowedIPs  []string      `mapstructure:"allowed_ips"` // empty allows every world process
	SendBuf     int           `mapstructure:"send_buf"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // 0 disables the idle deadline
	// BoundItemsEnabled registers the guild-bound item retrieval handler.
	BoundItemsEnabled bool `mapstructure:"bound_items_enabled"`
	// AtomicBoundTransfer wraps inventory deletion, equip clearing and the
	// guild storage insert of a retrieval in one transaction.
	AtomicBoundTransfer bool          `mapstructure:"atomic_bound_transfer"`
	GuildLockTTL        time.Duration `mapstructure:"guild_lock_ttl"`
}

type SecurityConfig struct {
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	AdminIPs       []string `mapstructure:"admin_ips"`
}

type SchedulerConfig struct {
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file overrides anything.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/char.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("inter.listen_addr", ":6121")
	v.SetDefault("inter.send_buf", 256)
	v.SetDefault("inter.read_timeout", "0s")
	v.SetDefault("inter.bound_items_enabled", true)
	v.SetDefault("inter.atomic_bound_transfer", false)
	v.SetDefault("inter.guild_lock_ttl", "30s")
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("scheduler.stats_interval", "1m")
}
