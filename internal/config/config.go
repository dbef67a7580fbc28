package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppPort string

	BasicAuthUser string
	BasicAuthPass string

	PostgresDSN string
	RedisAddr   string

	CronSpec    string
	SourcesFile string

	DiscordToken   string
	DiscordAPIBase string
	ChannelID      string
	Mention        string

	AMQPURL      string
	AMQPExchange string

	UserAgent            string
	FetchTimeout         time.Duration
	ExtractTimeout       time.Duration
	ExecFailureThreshold int
	ResultBuffer         int
}

// SourceSpec 是配置文件中的一个数据源
type SourceSpec struct {
	Vendor    string `yaml:"vendor"`
	URL       string `yaml:"url"`
	Extractor string `yaml:"extractor"`
	Pattern   string `yaml:"pattern"`
	Input     string `yaml:"input"`
}

type sourcesFile struct {
	Sources []SourceSpec `yaml:"sources"`
}

// Load 读取 .env（若存在）和环境变量；缺少凭据或数据库地址时返回错误
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment")
	}

	cfg := &Config{
		AppPort:              getEnv("APP_PORT", "9000"),
		BasicAuthUser:        os.Getenv("APP_BASIC_USER"),
		BasicAuthPass:        os.Getenv("APP_BASIC_PASS"),
		PostgresDSN:          getEnv("POSTGRES_DSN", os.Getenv("DATABASE_URL")),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		CronSpec:             getEnv("CRON_SPEC", "@every 45s"),
		SourcesFile:          getEnv("SOURCES_FILE", "sources.yaml"),
		DiscordToken:         os.Getenv("DISCORD_TOKEN"),
		DiscordAPIBase:       os.Getenv("DISCORD_API_BASE"),
		ChannelID:            strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		Mention:              os.Getenv("NOTIFY_MENTION"),
		AMQPURL:              os.Getenv("NOTIFY_AMQP_URL"),
		AMQPExchange:         getEnv("NOTIFY_AMQP_EXCHANGE", "doudoubot.notifications"),
		UserAgent:            os.Getenv("USER_AGENT"),
		FetchTimeout:         getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		ExtractTimeout:       getEnvDuration("EXTRACT_TIMEOUT", 30*time.Second),
		ExecFailureThreshold: getEnvInt("EXEC_FAILURE_THRESHOLD", 5),
		ResultBuffer:         getEnvInt("RESULT_BUFFER", 32),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("config loaded: port=%s cron=%s sources=%s", cfg.AppPort, cfg.CronSpec, cfg.SourcesFile)
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN environment variable is required")
	}
	if _, err := strconv.ParseUint(c.ChannelID, 10, 64); err != nil {
		return fmt.Errorf("DISCORD_CHANNEL_ID must be a numeric channel id, got %q", c.ChannelID)
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN (or DATABASE_URL) environment variable is required")
	}
	if c.ResultBuffer <= 0 {
		return fmt.Errorf("RESULT_BUFFER must be positive, got %d", c.ResultBuffer)
	}
	return nil
}

// LoadSources 读取数据源列表，列表为空也视为配置错误
func LoadSources(path string) ([]SourceSpec, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var f sourcesFile
	if err := yaml.Unmarshal(bs, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}
	seen := make(map[string]bool, len(f.Sources))
	for _, s := range f.Sources {
		if seen[s.Vendor] {
			return nil, fmt.Errorf("sources file %s: duplicate vendor %q", path, s.Vendor)
		}
		seen[s.Vendor] = true
	}
	return f.Sources, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warn: %s=%q is not an int, using %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("warn: %s=%q is not a positive duration, using %s", key, v, def)
		return def
	}
	return d
}
