package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	RecurringInterval time.Duration `yaml:"recurring_interval"`
	ReminderInterval  time.Duration `yaml:"reminder_interval"`
	ClaimTTL          time.Duration `yaml:"claim_ttl"`
	SpawnMaxAttempts  int           `yaml:"spawn_max_attempts"`
}

// DispatcherConfig 通知分发配置
type DispatcherConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	RecordTTL      time.Duration `yaml:"record_ttl"`
}

// TaskServiceConfig 外部任务服务配置
type TaskServiceConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideSchedulerFromEnv 从环境变量覆盖调度器配置
// TICK_INTERVAL_* 接受 Go duration 格式（如 "1h"、"30s"）
func OverrideSchedulerFromEnv(cfg *SchedulerConfig) {
	if v := os.Getenv("TICK_INTERVAL_RECURRING"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RecurringInterval = d
		}
	}
	if v := os.Getenv("TICK_INTERVAL_REMINDER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReminderInterval = d
		}
	}
	if v := os.Getenv("CLAIM_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ClaimTTL = d
		}
	}
}

// OverrideDispatcherFromEnv 从环境变量覆盖分发器配置
func OverrideDispatcherFromEnv(cfg *DispatcherConfig) {
	if v := os.Getenv("MAX_DELIVERY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAttempts = n
		}
	}
	if v := os.Getenv("RETRY_BASE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryBaseDelay = time.Duration(n) * time.Millisecond
		}
	}
}

// OverrideTaskServiceFromEnv 从环境变量覆盖任务服务配置
func OverrideTaskServiceFromEnv(cfg *TaskServiceConfig) {
	if url := os.Getenv("TASK_SERVICE_URL"); url != "" {
		cfg.URL = url
	}
}
