package config

import (
	"log"
	"time"

	"gopkg.in/yaml.v3"

	"todoflow/pkg/config"
)

type Config struct {
	DB          config.DBConfig          `yaml:"db"`
	MQ          config.MQConfig          `yaml:"mq"`
	Redis       config.RedisConfig       `yaml:"redis"`
	Server      config.ServerConfig      `yaml:"server"`
	Scheduler   config.SchedulerConfig   `yaml:"scheduler"`
	Dispatcher  config.DispatcherConfig  `yaml:"dispatcher"`
	TaskService config.TaskServiceConfig `yaml:"task_service"`
}

// Load 使用统一配置中心加载配置，环境变量优先级最高
func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideSchedulerFromEnv(&cfg.Scheduler)
	config.OverrideDispatcherFromEnv(&cfg.Dispatcher)
	config.OverrideTaskServiceFromEnv(&cfg.TaskService)

	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Scheduler.RecurringInterval <= 0 {
		cfg.Scheduler.RecurringInterval = time.Hour
	}
	if cfg.Scheduler.ReminderInterval <= 0 {
		cfg.Scheduler.ReminderInterval = time.Minute
	}
	if cfg.Scheduler.ClaimTTL <= 0 {
		cfg.Scheduler.ClaimTTL = 60 * time.Second
	}
	if cfg.Scheduler.SpawnMaxAttempts <= 0 {
		cfg.Scheduler.SpawnMaxAttempts = 3
	}
	if cfg.Dispatcher.MaxAttempts <= 0 {
		cfg.Dispatcher.MaxAttempts = 5
	}
	if cfg.Dispatcher.RetryBaseDelay <= 0 {
		cfg.Dispatcher.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Dispatcher.RetryMaxDelay <= 0 {
		cfg.Dispatcher.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Dispatcher.RecordTTL <= 0 {
		cfg.Dispatcher.RecordTTL = 7 * 24 * time.Hour
	}
	if cfg.TaskService.Timeout <= 0 {
		cfg.TaskService.Timeout = 10 * time.Second
	}
}
