package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/shaiso/pipesim/internal/domain"
)

const (
	envPrefix   = "PIPESIM_"
	envFilePath = "PIPESIM_CONFIG"
	defaultFile = "pipesim.yaml"
)

// Config — конфигурация pipesim-api.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Events   EventsConfig   `koanf:"events"`
	AMQP     AMQPConfig     `koanf:"amqp"`
	Tracing  TracingConfig  `koanf:"tracing"`
	Log      LogConfig      `koanf:"log"`
	Shutdown ShutdownConfig `koanf:"shutdown"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type PipelineConfig struct {
	Stages     []string      `koanf:"stages"`
	StageDelay time.Duration `koanf:"stage_delay"`
}

type EventsConfig struct {
	// Buffer — размер буфера подписчика.
	Buffer int `koanf:"buffer"`
	// Heartbeat — период keep-alive в SSE/WebSocket.
	Heartbeat time.Duration `koanf:"heartbeat"`
}

// AMQPConfig — зеркалирование событий в RabbitMQ. Пустой URL — выключено.
type AMQPConfig struct {
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

type TracingConfig struct {
	Stdout bool `koanf:"stdout"`
}

// LogConfig — пустые значения означают LOG_LEVEL / LOG_FORMAT.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// Addr возвращает адрес для http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// AMQPEnabled проверяет, включено ли зеркалирование в RabbitMQ.
func (c *Config) AMQPEnabled() bool {
	return c.AMQP.URL != ""
}

var defaults = map[string]any{
	"server.port":          5000,
	"pipeline.stages":      domain.DefaultStages,
	"pipeline.stage_delay": "1s",
	"events.buffer":        64,
	"events.heartbeat":     "15s",
	"amqp.exchange":        "pipesim.events",
	"tracing.stdout":       false,
	"shutdown.timeout":     "10s",
}

// Load загружает конфигурацию.
//
// path — путь к YAML-файлу. Если пустой, берётся PIPESIM_CONFIG;
// если и он пуст, читается ./pipesim.yaml при его наличии.
func Load(path string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	k := koanf.New(".")

	explicit := true
	if path == "" {
		path = os.Getenv(envFilePath)
	}
	if path == "" {
		path, explicit = defaultFile, false
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Переменные окружения перекрывают файл
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Pipeline.Stages = splitStages(cfg.Pipeline.Stages)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// splitStages разворачивает "a,b,c" из переменной окружения в список.
func splitStages(raw []string) []string {
	var stages []string
	for _, item := range raw {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				stages = append(stages, s)
			}
		}
	}
	return stages
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if len(c.Pipeline.Stages) == 0 {
		errs = append(errs, errors.New("pipeline.stages is empty"))
	}
	sorted := slices.Clone(c.Pipeline.Stages)
	slices.Sort(sorted)
	if len(slices.Compact(sorted)) != len(c.Pipeline.Stages) {
		errs = append(errs, errors.New("pipeline.stages has duplicates"))
	}
	if c.Pipeline.StageDelay <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.stage_delay must be positive: %s", c.Pipeline.StageDelay))
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("events.buffer must be positive: %d", c.Events.Buffer))
	}
	if c.Shutdown.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown.timeout must be positive: %s", c.Shutdown.Timeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
