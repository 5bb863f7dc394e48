package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"carelink"`

	// PostgreSQL 配置（Supabase 底层就是 Postgres）
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"carelink"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`
	PostgreSQLMigrate  bool   `env:"POSTGRESQL_AUTO_MIGRATE" envDefault:"true"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"carelink"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// 推送 / 邮件网关
	ExpoPushURL            string `env:"EXPO_PUSH_URL" envDefault:"https://exp.host/--/api/v2/push/send"`
	ExpoAccessToken        string `env:"EXPO_ACCESS_TOKEN"` // 可选，开启 enhanced security 时需要
	ResendAPIURL           string `env:"RESEND_API_URL" envDefault:"https://api.resend.com/emails"`
	ResendAPIKey           string `env:"RESEND_API_KEY"`
	EmailFrom              string `env:"EMAIL_FROM" envDefault:"CareLink Alerts <alerts@carelink.app>"`
	DispatchTimeoutSeconds int    `env:"DISPATCH_TIMEOUT_SECONDS" envDefault:"15"`

	// 升级调度配置
	EscalationIntervalMinutes int `env:"ESCALATION_INTERVAL_MINUTES" envDefault:"5"`   // 家庭未配置 escalation_minutes 时的默认值
	EscalationTickSeconds     int `env:"ESCALATION_TICK_SECONDS" envDefault:"120"`     // scheduler 进程的扫描间隔
	EscalationLockTTLSeconds  int `env:"ESCALATION_LOCK_TTL_SECONDS" envDefault:"110"` // 单次扫描的互斥锁 TTL
	EscalationRunTimeoutSecs  int `env:"ESCALATION_RUN_TIMEOUT_SECONDS" envDefault:"100"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_EXPORTER_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

// 邮件凭据缺失不在启动时 fatal，而是在每次触发升级时返回 500
func validateConfig() {
	if Cfg.ResendAPIKey == "" {
		log.Printf("WARN: RESEND_API_KEY is not set, escalation runs will fail until it is configured")
	}

	if Cfg.EmailFrom == "" {
		log.Printf("WARN: EMAIL_FROM is not set, escalation runs will fail until it is configured")
	}

	if Cfg.EscalationIntervalMinutes <= 0 {
		log.Printf("WARN: ESCALATION_INTERVAL_MINUTES must be positive, falling back to 5")
		Cfg.EscalationIntervalMinutes = 5
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) DispatchTimeout() time.Duration {
	if c.DispatchTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.DispatchTimeoutSeconds) * time.Second
}

func (c *Config) EscalationInterval() time.Duration {
	return time.Duration(c.EscalationIntervalMinutes) * time.Minute
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
