package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Bids     BidsConfig     `mapstructure:"bids"`
	Auctions AuctionsConfig `mapstructure:"auctions"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type CacheConfig struct {
	AuctionTTL    time.Duration `mapstructure:"auction_ttl"`
	BidsTTL       time.Duration `mapstructure:"bids_ttl"`
	ActorTTL      time.Duration `mapstructure:"actor_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type BidsConfig struct {
	Cooldown      time.Duration `mapstructure:"cooldown"`
	QuickCooldown time.Duration `mapstructure:"quick_cooldown"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type AuctionsConfig struct {
	MinDuration         time.Duration `mapstructure:"min_duration"`
	MaxDuration         time.Duration `mapstructure:"max_duration"`
	DefaultMinIncrement float64       `mapstructure:"default_min_increment"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	RecheckInterval     time.Duration `mapstructure:"recheck_interval"`
}

type EventsConfig struct {
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
}

func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	viper.SetDefault("mysql.max_open_conns", 25)
	viper.SetDefault("mysql.max_idle_conns", 10)
	viper.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.channel", "auction_events")
	viper.SetDefault("cache.auction_ttl", 30*time.Second)
	viper.SetDefault("cache.bids_ttl", 10*time.Second)
	viper.SetDefault("cache.actor_ttl", 5*time.Minute)
	viper.SetDefault("cache.sweep_interval", time.Minute)
	viper.SetDefault("bids.cooldown", time.Second)
	viper.SetDefault("bids.quick_cooldown", 500*time.Millisecond)
	viper.SetDefault("bids.retry_attempts", 3)
	viper.SetDefault("bids.retry_backoff", 100*time.Millisecond)
	viper.SetDefault("auctions.min_duration", time.Hour)
	viper.SetDefault("auctions.max_duration", 48*time.Hour)
	viper.SetDefault("auctions.default_min_increment", 1.0)
	viper.SetDefault("auctions.sweep_interval", 5*time.Minute)
	viper.SetDefault("auctions.recheck_interval", 5*time.Minute)
	viper.SetDefault("events.delivery_timeout", 5*time.Second)

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/auction-engine/")

	// Environment variable support
	viper.AutomaticEnv()

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("mysql.dsn", "MYSQL_DSN")
	viper.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	viper.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	viper.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	viper.BindEnv("redis.address", "REDIS_ADDRESS")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.channel", "REDIS_CHANNEL")
	viper.BindEnv("bids.cooldown", "BID_COOLDOWN")
	viper.BindEnv("bids.quick_cooldown", "QUICK_BID_COOLDOWN")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetConfigString returns a short summary useful at startup.
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, MySQL: %s, Redis: %s, Cooldown: %s/%s",
		c.Server.Host,
		c.Server.Port,
		c.MySQL.DSN,
		c.Redis.Address,
		c.Bids.Cooldown,
		c.Bids.QuickCooldown,
	)
}
