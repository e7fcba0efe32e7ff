package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	// Driver 取值 sqlite 或 postgres
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 定义了日志输出
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// EngineConfig 汇总投票引擎的全部可调参数
type EngineConfig struct {
	LocalInstanceID  uint          `mapstructure:"localInstanceId"`
	DownvotesEnabled bool          `mapstructure:"downvotesEnabled"`
	Lock             LockConfig    `mapstructure:"lock"`
	Spicy            SpicyConfig   `mapstructure:"spicy"`
	Ranking          RankingConfig `mapstructure:"ranking"`
	Events           EventsConfig  `mapstructure:"events"`
}

// LockConfig 定义了内容锁与作者锁的租约参数
type LockConfig struct {
	// Provider 取值 redis 或 local
	Provider string        `mapstructure:"provider"`
	Lease    time.Duration `mapstructure:"lease"`
	Wait     time.Duration `mapstructure:"wait"`
}

// SpicyConfig 定义了早期投票的放大系数
type SpicyConfig struct {
	Under10     float64 `mapstructure:"under10"`
	Under30     float64 `mapstructure:"under30"`
	Under60     float64 `mapstructure:"under60"`
	DownUnder30 float64 `mapstructure:"downUnder30"`
	DownUnder60 float64 `mapstructure:"downUnder60"`
}

// RankingConfig 定义了排序计算相关参数
type RankingConfig struct {
	EpochOffset     int64         `mapstructure:"epochOffset"`
	RefreshInterval time.Duration `mapstructure:"refreshInterval"`
	TopPercentile   float64       `mapstructure:"topPercentile"`
}

// EventsConfig 定义了事件流的Redis键
type EventsConfig struct {
	VoteChangedStream string `mapstructure:"voteChangedStream"`
	FederationStream  string `mapstructure:"federationStream"`
	MaxLen            int64  `mapstructure:"maxLen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "fedivote.db")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("engine.localInstanceId", 1)
	v.SetDefault("engine.downvotesEnabled", true)
	v.SetDefault("engine.lock.provider", "redis")
	v.SetDefault("engine.lock.lease", 10*time.Second)
	v.SetDefault("engine.lock.wait", 5*time.Second)
	v.SetDefault("engine.spicy.under10", 2.5)
	v.SetDefault("engine.spicy.under30", 1.85)
	v.SetDefault("engine.spicy.under60", 1.25)
	v.SetDefault("engine.spicy.downUnder30", 1.5)
	v.SetDefault("engine.spicy.downUnder60", 1.1)
	v.SetDefault("engine.ranking.epochOffset", 1685766018)
	v.SetDefault("engine.ranking.refreshInterval", time.Hour)
	v.SetDefault("engine.ranking.topPercentile", 0.15)
	v.SetDefault("engine.events.voteChangedStream", "stream:vote-changed")
	v.SetDefault("engine.events.federationStream", "stream:federation-signals")
	v.SetDefault("engine.events.maxLen", 100000)
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 未传入路径时，会在 ./config 和 . 中查找名为 config.yaml 的文件；
// 找不到配置文件时使用默认值，环境变量依然可以覆盖任意项。
func LoadConfig(paths ...string) (*Config, error) {
	// .env 是可选的，仅用于本地开发
	_ = godotenv.Load()

	v := viper.New()

	// 1. 设置配置文件名和类型
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// 2. 添加配置文件搜索路径
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 3. 允许通过环境变量覆盖配置，例如 ENGINE_LOCK_WAIT=2s
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// 4. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	// 5. 将配置反序列化到结构体中
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
