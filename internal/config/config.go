package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"txlens/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 环境变量
const (
	EnvPrefix = "TXLENS"
	EnvDBDSN  = "TXLENS_DB_DSN"
)

// Config 主配置
type Config struct {
	Node     *NodeConfig        `mapstructure:"node"`
	Pricing  *PricingConfig     `mapstructure:"pricing"`
	Registry *RegistryConfig    `mapstructure:"registry"`
	Output   *OutputConfig      `mapstructure:"output"`
	API      *APIConfig         `mapstructure:"api"`
	Logging  *logging.LogConfig `mapstructure:"logging"`
}

// NodeConfig 节点配置
type NodeConfig struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout string `mapstructure:"timeout"`
}

// Endpoint 拼接带API Key的节点地址
func (n *NodeConfig) Endpoint() string {
	if n.APIKey == "" {
		return n.URL
	}
	return strings.TrimRight(n.URL, "/") + "/" + n.APIKey
}

// TimeoutDuration 解析超时时间
func (n *NodeConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(n.Timeout, 30*time.Second)
}

// PricingConfig 价格服务配置
type PricingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	BaseURL        string `mapstructure:"base_url"`
	Platform       string `mapstructure:"platform"`
	Timeout        string `mapstructure:"timeout"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
}

// TimeoutDuration 解析超时时间
func (p *PricingConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(p.Timeout, 10*time.Second)
}

// RegistryConfig 合约接口注册表配置
type RegistryConfig struct {
	ABIFiles        map[string]string `mapstructure:"abi_files"` // 接口名 -> ABI文件路径，覆盖内置ABI
	RouterAddresses []string          `mapstructure:"router_addresses"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Format string       `mapstructure:"format"` // none, console, kafka
	Kafka  *KafkaConfig `mapstructure:"kafka"`
}

// APIConfig API服务配置
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	config, err := LoadConfigFromFile(configPath)
	if err != nil {
		return nil, err
	}

	// 设置了数据库DSN时，用数据库中的配置覆盖
	if dbDSN := os.Getenv(EnvDBDSN); dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		if err := dbConfig.ApplyTo(config); err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}
		logger.Info("已从数据库加载配置")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigFromFile 从文件和环境变量加载配置，路径为空时只使用默认值和环境变量
func LoadConfigFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, GetDefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 注册默认值，viper只会为已知key读取环境变量
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("node.name", d.Node.Name)
	v.SetDefault("node.url", d.Node.URL)
	v.SetDefault("node.api_key", d.Node.APIKey)
	v.SetDefault("node.timeout", d.Node.Timeout)

	v.SetDefault("pricing.enable", d.Pricing.Enable)
	v.SetDefault("pricing.base_url", d.Pricing.BaseURL)
	v.SetDefault("pricing.platform", d.Pricing.Platform)
	v.SetDefault("pricing.timeout", d.Pricing.Timeout)
	v.SetDefault("pricing.max_concurrency", d.Pricing.MaxConcurrency)

	v.SetDefault("registry.abi_files", d.Registry.ABIFiles)
	v.SetDefault("registry.router_addresses", d.Registry.RouterAddresses)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.kafka.brokers", d.Output.Kafka.Brokers)
	v.SetDefault("output.kafka.topic", d.Output.Kafka.Topic)

	v.SetDefault("api.port", d.API.Port)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Node: &NodeConfig{
			Name:    "alchemy_mainnet",
			URL:     "https://eth-mainnet.g.alchemy.com/v2",
			APIKey:  "", // 通过环境变量 TXLENS_NODE_API_KEY 指定
			Timeout: "30s",
		},
		Pricing: &PricingConfig{
			Enable:         true,
			BaseURL:        "https://api.coingecko.com/api/v3",
			Platform:       "ethereum",
			Timeout:        "10s",
			MaxConcurrency: 4,
		},
		Registry: &RegistryConfig{
			ABIFiles: map[string]string{},
			RouterAddresses: []string{
				"0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD", // Uniswap Universal Router
			},
		},
		Output: &OutputConfig{
			Format: "none",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "txlens_lookups",
			},
		},
		API: &APIConfig{
			Port: 8080,
		},
		Logging: &logging.LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("配置不能为空")
	}
	if c.Node == nil || c.Node.URL == "" {
		return fmt.Errorf("节点URL不能为空")
	}
	if _, err := time.ParseDuration(c.Node.Timeout); c.Node.Timeout != "" && err != nil {
		return fmt.Errorf("无效的节点超时时间: %v", err)
	}
	if c.Pricing == nil {
		return fmt.Errorf("价格服务配置不能为空")
	}
	if c.Pricing.Enable {
		if c.Pricing.BaseURL == "" {
			return fmt.Errorf("价格服务地址不能为空")
		}
		if c.Pricing.MaxConcurrency <= 0 {
			return fmt.Errorf("价格查询并发数必须大于0，当前值: %d", c.Pricing.MaxConcurrency)
		}
	}
	if c.Output == nil {
		return fmt.Errorf("输出配置不能为空")
	}
	switch c.Output.Format {
	case "none", "console":
	case "kafka":
		if c.Output.Kafka == nil || len(c.Output.Kafka.Brokers) == 0 || c.Output.Kafka.Topic == "" {
			return fmt.Errorf("kafka输出需要配置brokers和topic")
		}
	default:
		return fmt.Errorf("不支持的输出格式: %s", c.Output.Format)
	}
	return nil
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
