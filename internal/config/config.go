package config

import (
	"fmt"
	"log/slog"
	"time"
)

const TokenEnv = "LITTLE_KITTY"

type Logger struct {
	Level     slog.Level
	Plaintext bool
}

type Bot struct {
	Token   string
	GuildID string // если пусто, команды регистрируются глобально
}

type History struct {
	PageSize      int           // размер батча ChannelMessages (1..100)
	MaxPageErrors int           // подряд идущих ошибок до прекращения обхода
	RetryDelay    time.Duration // пауза перед первым повтором, дальше удваивается
}

type Manager struct {
	OutputDir string
	MaxActive int // максимальное количество одновременных задач
}

type Loader struct {
	Timeout      time.Duration
	AllowPrivate bool // отключает защиту от SSRF (для локальных тестов)
}

type Status struct {
	Addr          string // если пусто, HTTP API статусов выключен
	TTL           time.Duration
	MaxTotal      int
	RedisAddr     string
	RedisPassword string
}

type OBS struct {
	Endpoint string
	AK       string
	SK       string
	Bucket   string
	Prefix   string
}

func (o OBS) Enabled() bool {
	return o.Endpoint != "" && o.AK != "" && o.SK != "" && o.Bucket != ""
}

// Blob: зеркало в любое хранилище gocloud.dev/blob (s3://, file://, mem://).
type Blob struct {
	URL    string // если пусто, выключено
	Prefix string
}

type Config struct {
	Logger  Logger
	Bot     Bot
	History History
	Manager Manager
	Loader  Loader
	Status  Status
	OBS     OBS
	Blob    Blob
}

// LogValue скрывает секреты при выводе конфига в лог.
func (c Config) LogValue() slog.Value {
	c.Bot.Token = mask(c.Bot.Token)
	c.Status.RedisPassword = mask(c.Status.RedisPassword)
	c.OBS.SK = mask(c.OBS.SK)
	type plain Config
	return slog.AnyValue(plain(c))
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Load читает конфигурацию из окружения. Токен бота берётся из первого
// аргумента командной строки, если он есть, иначе из LITTLE_KITTY.
func Load(args []string) (Config, error) {
	var ge getenv

	var token string
	if len(args) > 0 && args[0] != "" {
		token = args[0]
	} else {
		token = ge.String(TokenEnv, true, "")
	}

	cfg := Config{
		Logger: Logger{
			Level:     ge.LogLevel("LOG_LEVEL", false, slog.LevelInfo),
			Plaintext: ge.Bool("LOG_PLAINTEXT", false, false),
		},
		Bot: Bot{
			Token:   token,
			GuildID: ge.String("DISCORD_GUILD_ID", false, ""),
		},
		History: History{
			PageSize:      ge.IntRange("HISTORY_PAGE_SIZE", false, 100, 1, 100),
			MaxPageErrors: ge.IntRange("HISTORY_MAX_PAGE_ERRORS", false, 3, 1, 1000),
			RetryDelay:    ge.Duration("HISTORY_RETRY_DELAY", false, time.Second),
		},
		Manager: Manager{
			OutputDir: ge.String("OUTPUT_DIR", false, "outputs"),
			MaxActive: ge.IntRange("MANAGER_MAX_ACTIVE", false, 4, 1, 1000),
		},
		Loader: Loader{
			Timeout:      ge.Duration("LOADER_TIMEOUT", false, 5*time.Minute),
			AllowPrivate: ge.Bool("LOADER_ALLOW_PRIVATE", false, false),
		},
		Status: Status{
			Addr:          ge.String("STATUS_ADDR", false, ""),
			TTL:           ge.Duration("STATUS_TTL", false, 24*time.Hour),
			MaxTotal:      ge.Int("STATUS_MAX_TOTAL", false, 1000),
			RedisAddr:     ge.String("REDIS_ADDR", false, ""),
			RedisPassword: ge.String("REDIS_PASSWORD", false, ""),
		},
		OBS: OBS{
			Endpoint: ge.String("OBS_ENDPOINT", false, ""),
			AK:       ge.String("OBS_AK", false, ""),
			SK:       ge.String("OBS_SK", false, ""),
			Bucket:   ge.String("OBS_BUCKET", false, ""),
			Prefix:   ge.String("OBS_PREFIX", false, ""),
		},
		Blob: Blob{
			URL:    ge.String("BLOB_URL", false, ""),
			Prefix: ge.String("BLOB_PREFIX", false, ""),
		},
	}

	if err := ge.Err(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
