package kernel

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the kernel daemon's resolved configuration: command-line flags
// (spf13/pflag) override a config file and environment variables read
// through spf13/viper, following the teacher's go.mod dependency set rather
// than a hand-rolled flag parser.
type Config struct {
	// ListenAddr is the "listen" setting. It is loaded into Config only; no
	// server in this module binds to it (hako-apiserver takes its own -port).
	ListenAddr string

	// Backend selects the storage backend: "local" or "redis".
	Backend string

	// LocalPath is the base directory for the local storage backend.
	LocalPath string

	// RedisAddr, RedisPassword, RedisDB configure the Redis storage backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Root is the confined VFS namespace root.
	Root string

	// InitPath is the program loaded as PID 1 at boot.
	InitPath string

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string

	// LogJSON selects structured JSON logs over the human-readable console
	// encoder.
	LogJSON bool
}

// BindFlags registers the kernel daemon's flags on fs, so callers (cobra
// commands, or a bare flag.CommandLine adapter) can wire them into any CLI
// front end.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("listen", ":7777", "listen address (loaded into config; no server binds to it)")
	fs.String("backend", "local", "storage backend: local or redis")
	fs.String("local-path", "./hako-data", "base directory for the local storage backend")
	fs.String("redis-addr", "localhost:6379", "redis backend address")
	fs.String("redis-password", "", "redis backend password")
	fs.Int("redis-db", 0, "redis backend database index")
	fs.String("root", "/", "confined VFS namespace root")
	fs.String("init", "/bin/init", "program loaded as PID 1 at boot")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Bool("log-json", false, "emit structured JSON logs instead of console logs")
}

// LoadConfig reads configuration from (in ascending priority) a config
// file named "hako" on viper's search path, the HAKO_-prefixed environment,
// and the bound flag set, per viper's own documented precedence order.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("hako")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hako")
	v.SetEnvPrefix("HAKO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	return &Config{
		ListenAddr:    v.GetString("listen"),
		Backend:       v.GetString("backend"),
		LocalPath:     v.GetString("local-path"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		Root:          v.GetString("root"),
		InitPath:      v.GetString("init"),
		LogLevel:      v.GetString("log-level"),
		LogJSON:       v.GetBool("log-json"),
	}, nil
}
