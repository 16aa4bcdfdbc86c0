package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Steam struct {
	Username        string
	Password        string
	CredentialsFile string
	APIKey          string
	StoreURL        string
	CommunityURL    string
	APIURL          string
	Timeout         time.Duration
}

type Redis struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	SessionTTL time.Duration
}

type Server struct {
	ListenAddress string
}

type Logger struct {
	Level              zerolog.Level
	PrettyPrintConsole bool
}

type Client struct {
	Steam  Steam
	Redis  Redis
	Server Server
	Logger Logger
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("steam.store_url", "https://store.steampowered.com")
	v.SetDefault("steam.community_url", "https://steamcommunity.com")
	v.SetDefault("steam.api_url", "https://api.steampowered.com")
	v.SetDefault("steam.timeout", 30*time.Second)
	v.SetDefault("steam.credentials_file", "steamguard.json")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "steamguard:session:")
	v.SetDefault("redis.session_ttl", 24*time.Hour)

	v.SetDefault("server.listen_address", "127.0.0.1:8080")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.pretty_print_console", false)
}

// DefaultClientConfigFromEnv returns the client config populated from the environment.
// A .env file in the working directory is loaded first when present.
func DefaultClientConfigFromEnv() Client {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) Client {
	level, err := zerolog.ParseLevel(v.GetString("logger.level"))
	if err != nil {
		log.Warn().Err(err).Str("level", v.GetString("logger.level")).Msg("Invalid log level, falling back to info")
		level = zerolog.InfoLevel
	}

	return Client{
		Steam: Steam{
			Username:        v.GetString("steam.username"),
			Password:        v.GetString("steam.password"),
			CredentialsFile: v.GetString("steam.credentials_file"),
			APIKey:          v.GetString("steam.api_key"),
			StoreURL:        strings.TrimRight(v.GetString("steam.store_url"), "/"),
			CommunityURL:    strings.TrimRight(v.GetString("steam.community_url"), "/"),
			APIURL:          strings.TrimRight(v.GetString("steam.api_url"), "/"),
			Timeout:         v.GetDuration("steam.timeout"),
		},
		Redis: Redis{
			Addr:       v.GetString("redis.addr"),
			Password:   v.GetString("redis.password"),
			DB:         v.GetInt("redis.db"),
			KeyPrefix:  v.GetString("redis.key_prefix"),
			SessionTTL: v.GetDuration("redis.session_ttl"),
		},
		Server: Server{
			ListenAddress: v.GetString("server.listen_address"),
		},
		Logger: Logger{
			Level:              level,
			PrettyPrintConsole: v.GetBool("logger.pretty_print_console"),
		},
	}
}
