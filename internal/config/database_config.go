package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DatabaseConfig 数据库配置管理器
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// ApplyTo 读取txlens_config表并覆盖到现有配置
func (dc *DatabaseConfig) ApplyTo(config *Config) error {
	query := `SELECT config_type, config_key, config_value FROM txlens_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var configType, key, value string
		if err := rows.Scan(&configType, &key, &value); err != nil {
			return err
		}
		if !applySetting(config, configType, key, value) {
			dc.logger.Warnf("忽略未知配置项: %s.%s", configType, key)
		}
	}

	return rows.Err()
}

// applySetting 应用单个配置项，未识别时返回false
func applySetting(config *Config, configType, key, value string) bool {
	switch configType {
	case "node":
		if config.Node == nil {
			config.Node = &NodeConfig{}
		}
		switch key {
		case "name":
			config.Node.Name = value
		case "url":
			config.Node.URL = value
		case "api_key":
			config.Node.APIKey = value
		case "timeout":
			config.Node.Timeout = value
		default:
			return false
		}
	case "pricing":
		if config.Pricing == nil {
			config.Pricing = &PricingConfig{}
		}
		switch key {
		case "enable":
			config.Pricing.Enable = strings.ToLower(value) == "true"
		case "base_url":
			config.Pricing.BaseURL = value
		case "platform":
			config.Pricing.Platform = value
		case "timeout":
			config.Pricing.Timeout = value
		case "max_concurrency":
			v, err := strconv.Atoi(value)
			if err != nil {
				return false
			}
			config.Pricing.MaxConcurrency = v
		default:
			return false
		}
	case "output":
		if config.Output == nil {
			config.Output = &OutputConfig{}
		}
		switch key {
		case "format":
			config.Output.Format = value
		case "kafka_brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err != nil {
				return false
			}
			if config.Output.Kafka == nil {
				config.Output.Kafka = &KafkaConfig{}
			}
			config.Output.Kafka.Brokers = brokers
		case "kafka_topic":
			if config.Output.Kafka == nil {
				config.Output.Kafka = &KafkaConfig{}
			}
			config.Output.Kafka.Topic = value
		default:
			return false
		}
	default:
		return false
	}
	return true
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
