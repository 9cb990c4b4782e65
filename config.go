package qorzendb

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ManagerConfig is the top-level configuration for a Manager, loaded
// from the "database" namespace of the host application's config file.
// This package sets no environment-variable prefix on the viper
// instance it reads from.
type ManagerConfig struct {
	Connections    []ConnectionConfig
	FieldMapping   FieldMappingConfig
	History        HistoryConfig
	Validation     ValidationConfig
	MetricsEnabled bool
	TracingEnabled bool
}

// FieldMappingConfig configures the Field Mapper service.
type FieldMappingConfig struct {
	Enabled        bool
	ConnectionName string // management connection; falls back to "default"
	CacheTTL       time.Duration
	RedisAddr      string // optional; empty disables the Redis read-through cache
}

// HistoryConfig configures the History Manager service.
type HistoryConfig struct {
	Enabled          bool
	ConnectionName   string // management connection; falls back to "default"
	DefaultRetention int
}

// ValidationConfig configures the Validation Engine service.
type ValidationConfig struct {
	Enabled        bool
	ConnectionName string // management connection; falls back to "default"
}

// LoadManagerConfig reads the "database" namespace from v into a
// ManagerConfig. Call LoadDotEnv first if environment overrides should
// come from a .env file.
func LoadManagerConfig(v *viper.Viper) (*ManagerConfig, error) {
	if v == nil {
		v = viper.GetViper()
	}

	cfg := &ManagerConfig{
		FieldMapping: FieldMappingConfig{
			Enabled:        v.GetBool("database.field_mapping.enabled"),
			ConnectionName: v.GetString("database.field_mapping.connection"),
			CacheTTL:       v.GetDuration("database.field_mapping.cache_ttl"),
		},
		History: HistoryConfig{
			Enabled:          v.GetBool("database.history.enabled"),
			ConnectionName:   v.GetString("database.history.connection"),
			DefaultRetention: v.GetInt("database.history.default_retention"),
		},
		Validation: ValidationConfig{
			Enabled:        v.GetBool("database.validation.enabled"),
			ConnectionName: v.GetString("database.validation.connection"),
		},
		MetricsEnabled: v.GetBool("database.metrics_enabled"),
		TracingEnabled: v.GetBool("database.tracing_enabled"),
	}
	cfg.FieldMapping.RedisAddr = v.GetString("database.field_mapping.redis_addr")

	var rawConns []map[string]any
	if err := v.UnmarshalKey("database.connections", &rawConns); err != nil {
		return nil, fmt.Errorf("qorzendb: parsing database.connections: %w", err)
	}
	for _, raw := range rawConns {
		cc, err := connectionConfigFromMap(raw)
		if err != nil {
			return nil, err
		}
		cfg.Connections = append(cfg.Connections, cc)
	}

	return cfg, nil
}

func connectionConfigFromMap(raw map[string]any) (ConnectionConfig, error) {
	cc := ConnectionConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    5 * time.Second,
	}
	name, _ := raw["name"].(string)
	if name == "" {
		return cc, NewConfigurationError("connection entry missing name")
	}
	cc.Name = name
	if kind, ok := raw["kind"].(string); ok {
		cc.Kind = ConnectionType(kind)
	}
	if cc.Kind == "" {
		return cc, NewConfigurationError("connection missing kind", "connection", name)
	}
	if host, ok := raw["host"].(string); ok {
		cc.Host = host
	}
	if port, ok := raw["port"].(int); ok {
		cc.Port = port
	}
	if db, ok := raw["database"].(string); ok {
		cc.Database = db
	}
	if user, ok := raw["username"].(string); ok {
		cc.Username = user
	}
	if pass, ok := raw["password"].(string); ok {
		cc.Password = pass
	}
	if dsn, ok := raw["dsn"].(string); ok {
		cc.DSN = dsn
	}
	if readOnly, ok := raw["read_only"].(bool); ok {
		cc.ReadOnly = readOnly
	}
	return cc, nil
}

// LoadDotEnv loads a .env file into the process environment if present.
// Failure to find one is silent, matching the scaffold's best-effort
// posture: a production deployment typically supplies real environment
// variables instead.
func LoadDotEnv(path string) {
	_ = godotenv.Load(path)
}

// WatchConfig watches the config file underlying v and invokes onChange
// with the file's name whenever the file changes; it does not check
// which keys changed. Per qorzendb's
// design, a config change is never applied to a live connection — the
// callback exists purely to log a "restart required" warning.
func WatchConfig(v *viper.Viper, onChange func(key string)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if onChange != nil {
			onChange(e.Name)
		}
	})
	v.WatchConfig()
}
