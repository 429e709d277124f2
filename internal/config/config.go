package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// TrustedProxies lists proxy CIDRs whose X-Forwarded-For is believed.
	// Empty trusts none, so the client IP is the socket peer.
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	MaxSessions      int
	LoginMaxAttempts int
	LoginLockout     time.Duration
}

type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

type TokenStoreConfig struct {
	// Backend is "file" or "redis".
	Backend string
	Path    string
	TTL     time.Duration
}

type ClientConfig struct {
	BaseURL            string
	Mode               string
	SimulationFallback bool
	SimulationPassword string
	SimulationDelay    time.Duration
	LoginTimeout       time.Duration
	Profile            string
	TokenStore         TokenStoreConfig
}

type WorkerConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Security         SecurityConfig
	Bootstrap        BootstrapConfig
	Client           ClientConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

// Load reads config.yaml from the usual places (or path, when given) and
// overlays COLLECTDESK_* environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
	}

	v.SetEnvPrefix("COLLECTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.Security.JWTAccessSecret == "" {
		return fmt.Errorf("security.jwtaccesssecret is required")
	}
	if c.Environment == "production" && len(c.Security.JWTAccessSecret) < 32 {
		return fmt.Errorf("security.jwtaccesssecret must be at least 32 bytes in production")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "720h") // 30 days
	v.SetDefault("security.maxsessions", 10)
	v.SetDefault("security.loginmaxattempts", 5)
	v.SetDefault("security.loginlockout", "15m")

	v.SetDefault("bootstrap.adminemail", "")
	v.SetDefault("bootstrap.adminpassword", "")
	v.SetDefault("bootstrap.adminname", "Administrator")

	v.SetDefault("client.baseurl", "http://127.0.0.1:8080")
	v.SetDefault("client.mode", "remote")
	v.SetDefault("client.simulationfallback", false)
	v.SetDefault("client.simulationpassword", "password123")
	v.SetDefault("client.simulationdelay", "300ms")
	v.SetDefault("client.logintimeout", "15s")
	v.SetDefault("client.profile", "default")
	v.SetDefault("client.tokenstore.backend", "file")
	v.SetDefault("client.tokenstore.path", "")
	v.SetDefault("client.tokenstore.ttl", "720h")

	v.SetDefault("worker.stream", "collectdesk:tasks")
	v.SetDefault("worker.group", "collectdesk-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "1m")

	v.SetDefault("allowcorsorigins", []string{})
}
