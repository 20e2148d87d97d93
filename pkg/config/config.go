// Package config loads consolectl settings from defaults, an optional config
// file, a .env file, CONSOLE_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
    "errors"
    "fmt"
    "io/fs"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "github.com/spf13/pflag"
    "github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. CONSOLE_DNS_NAMES.
const EnvPrefix = "CONSOLE"

// Config is the flat settings set shared by every consolectl command. Keys
// match the flag names.
type Config struct {
    Servers     string        `mapstructure:"server"`
    Discovery   string        `mapstructure:"discovery"`
    DNSNames    string        `mapstructure:"dns-names"`
    DNSPort     int           `mapstructure:"dns-port"`
    FilePath    string        `mapstructure:"file-path"`
    FileEnv     string        `mapstructure:"file-env"`
    DiscRefresh time.Duration `mapstructure:"disc-refresh"`
    Timeout     time.Duration `mapstructure:"timeout"`

    Edition   string `mapstructure:"edition"`
    PushProto string `mapstructure:"push-proto"`
    PushAddr  string `mapstructure:"push-addr"`
    WSPath    string `mapstructure:"ws-path"`

    TLSEnable     bool   `mapstructure:"tls-enable"`
    TLSCA         string `mapstructure:"tls-ca"`
    TLSCert       string `mapstructure:"tls-cert"`
    TLSKey        string `mapstructure:"tls-key"`
    TLSSkipVerify bool   `mapstructure:"tls-skip-verify"`
    TLSServerName string `mapstructure:"tls-server-name"`

    LogJSON bool   `mapstructure:"log-json"`
    Trace   bool   `mapstructure:"trace"`
    Output  string `mapstructure:"output"`

    Interval time.Duration `mapstructure:"interval"`
    Listen   string        `mapstructure:"listen"`
}

// New returns a viper instance carrying the defaults and the environment
// binding.
func New() *viper.Viper {
    v := viper.New()
    setDefaults(v)
    v.SetEnvPrefix(EnvPrefix)
    v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
    v.AutomaticEnv()
    return v
}

func setDefaults(v *viper.Viper) {
    v.SetDefault("server", "127.0.0.1:8024")
    v.SetDefault("discovery", "static")
    v.SetDefault("dns-port", 8024)
    v.SetDefault("disc-refresh", 5*time.Second)
    v.SetDefault("timeout", 3*time.Second)
    v.SetDefault("edition", "community")
    v.SetDefault("push-proto", "stomp")
    v.SetDefault("ws-path", "/axonserver-platform-websocket")
    v.SetDefault("output", "text")
    v.SetDefault("interval", 5*time.Second)
}

// LoadDotEnv loads the given .env files (".env" when none) into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
    if len(paths) == 0 { paths = []string{".env"} }
    for _, p := range paths {
        if err := godotenv.Load(p); err != nil {
            if errors.Is(err, fs.ErrNotExist) { continue }
            return fmt.Errorf("config: load %s: %w", p, err)
        }
    }
    return nil
}

// Load binds flags (may be nil), reads file when set, and decodes the result.
func Load(v *viper.Viper, flags *pflag.FlagSet, file string) (Config, error) {
    if flags != nil {
        if err := v.BindPFlags(flags); err != nil { return Config{}, fmt.Errorf("config: bind flags: %w", err) }
    }
    if file != "" {
        v.SetConfigFile(file)
        if err := v.ReadInConfig(); err != nil { return Config{}, fmt.Errorf("config: read %s: %w", file, err) }
    }
    var c Config
    if err := v.Unmarshal(&c); err != nil { return Config{}, fmt.Errorf("config: decode: %w", err) }
    if err := c.Validate(); err != nil { return Config{}, err }
    return c, nil
}

// Validate checks enumerations and required values.
func (c Config) Validate() error {
    if !oneOf(c.Discovery, "static", "dns", "file") { return fmt.Errorf("config: unknown discovery %q", c.Discovery) }
    if !oneOf(c.Edition, "community", "clustered") { return fmt.Errorf("config: unknown edition %q", c.Edition) }
    if !oneOf(c.PushProto, "stomp", "grpc", "none") { return fmt.Errorf("config: unknown push-proto %q", c.PushProto) }
    if !oneOf(strings.ToLower(c.Output), "text", "json", "yaml", "yml") { return fmt.Errorf("config: unknown output %q", c.Output) }
    switch c.Discovery {
    case "static":
        if strings.TrimSpace(c.Servers) == "" { return errors.New("config: --server is required for static discovery") }
    case "dns":
        if strings.TrimSpace(c.DNSNames) == "" { return errors.New("config: --dns-names is required for dns discovery") }
    case "file":
        if c.FilePath == "" && c.FileEnv == "" { return errors.New("config: --file-path or --file-env is required for file discovery") }
    }
    if c.PushProto == "grpc" && c.Edition == "clustered" && c.PushAddr == "" {
        return errors.New("config: --push-addr is required for grpc push")
    }
    if c.Timeout <= 0 { return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout) }
    if c.Interval <= 0 { return fmt.Errorf("config: interval must be positive, got %s", c.Interval) }
    return nil
}

func oneOf(s string, vals ...string) bool {
    for _, v := range vals {
        if s == v { return true }
    }
    return false
}
