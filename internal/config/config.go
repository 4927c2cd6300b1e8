// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// CronSecret 非空时，/process-extraction-jobs 需要携带 X-Cron-Secret 请求头
	CronSecret string `mapstructure:"cron_secret"`
	// AllowedOrigins 为空时允许任意来源跨域
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为逗号分隔的地址列表。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// BrokerList 将逗号分隔的 broker 地址拆分成切片。
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	// PublicBaseURL 非空时直接拼接公开地址，否则生成预签名链接
	PublicBaseURL  string `mapstructure:"public_base_url"`
	URLExpiryHours int    `mapstructure:"url_expiry_hours"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与文档上下文包裹格式。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// ExtractionConfig 控制 PDF 文本提取的预算。
type ExtractionConfig struct {
	MaxPages          int     `mapstructure:"max_pages"`
	MaxChars          int     `mapstructure:"max_chars"`
	EarlyExitRatio    float64 `mapstructure:"early_exit_ratio"`
	ErrorMessageLimit int     `mapstructure:"error_message_limit"`
	ChunkSize         int     `mapstructure:"chunk_size"`
	ChunkOverlap      int     `mapstructure:"chunk_overlap"`
}

// ChatConfig 控制聊天中继的行为。
type ChatConfig struct {
	// AllowAnonymous 为 true 时，未携带有效 token 的请求以匿名用户身份聊天
	AllowAnonymous         bool   `mapstructure:"allow_anonymous"`
	AnonymousUserID        string `mapstructure:"anonymous_user_id"`
	DocumentContextChars   int    `mapstructure:"document_context_chars"`
	HistoryMessages        int    `mapstructure:"history_messages"`
	ContextCacheSize       int    `mapstructure:"context_cache_size"`
	ContextCacheTTLMinutes int    `mapstructure:"context_cache_ttl_minutes"`
}

// UploadConfig 控制上传校验和免费额度。
type UploadConfig struct {
	MaxBytes         int64 `mapstructure:"max_bytes"`
	FreeMonthlyQuota int   `mapstructure:"free_monthly_quota"`
}

// JobsConfig 控制后台提取任务的批处理。
type JobsConfig struct {
	BatchSize   int    `mapstructure:"batch_size"`
	Concurrency int    `mapstructure:"concurrency"`
	CronSpec    string `mapstructure:"cron_spec"`
}

// SnapshotConfig 控制结构化摘要生成。
type SnapshotConfig struct {
	MaxContextChars int `mapstructure:"max_context_chars"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cron_secret", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "om-intel-extraction")
	v.SetDefault("kafka.group_id", "om-intel-extractor")
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "documents")
	v.SetDefault("minio.public_base_url", "")
	v.SetDefault("minio.url_expiry_hours", 24)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.generation.temperature", 0.7)
	v.SetDefault("llm.generation.top_p", 0)
	v.SetDefault("llm.generation.max_tokens", 0)
	v.SetDefault("llm.prompt.rules", "You are OM Intel, an analyst assistant for commercial real estate offering memorandums. Answer precisely, cite figures from the document when available and say so when the document does not contain the answer.")
	v.SetDefault("llm.prompt.ref_start", "<<DOCUMENT>>")
	v.SetDefault("llm.prompt.ref_end", "<<END DOCUMENT>>")
	v.SetDefault("llm.prompt.no_result_text", "No document is attached to this conversation. Answer from general commercial real estate knowledge and suggest uploading an offering memorandum for specific figures.")
	v.SetDefault("extraction.max_pages", 10)
	v.SetDefault("extraction.max_chars", 100000)
	v.SetDefault("extraction.early_exit_ratio", 0.8)
	v.SetDefault("extraction.error_message_limit", 500)
	v.SetDefault("extraction.chunk_size", 1000)
	v.SetDefault("extraction.chunk_overlap", 100)
	v.SetDefault("chat.allow_anonymous", false)
	v.SetDefault("chat.anonymous_user_id", "00000000-0000-0000-0000-000000000000")
	v.SetDefault("chat.document_context_chars", 6000)
	v.SetDefault("chat.history_messages", 20)
	v.SetDefault("chat.context_cache_size", 256)
	v.SetDefault("chat.context_cache_ttl_minutes", 30)
	v.SetDefault("upload.max_bytes", 10*1024*1024)
	v.SetDefault("upload.free_monthly_quota", 5)
	v.SetDefault("jobs.batch_size", 10)
	v.SetDefault("jobs.concurrency", 3)
	v.SetDefault("jobs.cron_spec", "")
	v.SetDefault("snapshot.max_context_chars", 12000)
}

// Load 从指定路径读取 YAML 配置，并允许 OMINTEL_ 前缀的环境变量覆盖。
// configPath 为空时只使用默认值和环境变量。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OMINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}
