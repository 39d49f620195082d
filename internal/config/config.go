package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irfndi/celebrum-arb-go/internal/services"
	"github.com/irfndi/celebrum-arb-go/internal/telemetry"
)

// Config holds all configuration for the application
type Config struct {
	Environment  string                        `mapstructure:"environment"`
	LogLevel     string                        `mapstructure:"log_level"`
	Server       ServerConfig                  `mapstructure:"server"`
	Database     DatabaseConfig                `mapstructure:"database"`
	Redis        RedisConfig                   `mapstructure:"redis"`
	Chain        ChainConfig                   `mapstructure:"chain"`
	Venues       []VenueConfig                 `mapstructure:"venues"`
	Detector     DetectorConfig                `mapstructure:"detector"`
	Routing      RoutingConfig                 `mapstructure:"routing"`
	Fees         FeeConfig                     `mapstructure:"fees"`
	Strategy     StrategyConfig                `mapstructure:"strategy"`
	Orchestrator services.OrchestratorConfig   `mapstructure:"orchestrator"`
	Timeouts     services.TimeoutConfig        `mapstructure:"timeouts"`
	Breaker      services.CircuitBreakerConfig `mapstructure:"breaker"`
	Cache        CacheConfig                   `mapstructure:"cache"`
	Telemetry    telemetry.TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds the venue registry database configuration. When
// disabled the venues section is served instead.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	DatabaseURL     string        `mapstructure:"database_url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration for the route cache
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ChainConfig describes the RPC node, the venue routers and the tokens they trade.
type ChainConfig struct {
	RPCURL  string                 `mapstructure:"rpc_url"`
	Routers map[string]string      `mapstructure:"routers"`
	Tokens  map[string]TokenConfig `mapstructure:"tokens"`
	Prices  map[string]float64     `mapstructure:"prices"`
}

type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

type VenueConfig struct {
	ID         string  `mapstructure:"id"`
	Name       string  `mapstructure:"name"`
	FeeRate    float64 `mapstructure:"fee_rate"`
	GasPerSwap uint64  `mapstructure:"gas_per_swap"`
	Enabled    bool    `mapstructure:"enabled"`
}

type DetectorConfig struct {
	MinProfitThreshold float64 `mapstructure:"min_profit_threshold"`
	SlippageTolerance  float64 `mapstructure:"slippage_tolerance"`
	DefaultGasCostUSD  float64 `mapstructure:"default_gas_cost_usd"`
	HistorySize        int     `mapstructure:"history_size"`
}

type RoutingConfig struct {
	MaxHops            int           `mapstructure:"max_hops"`
	IntermediateTokens []string      `mapstructure:"intermediate_tokens"`
	NativeToken        string        `mapstructure:"native_token"`
	MinLiquidity       float64       `mapstructure:"min_liquidity"`
	MaxSlippage        float64       `mapstructure:"max_slippage"`
	MaxGasRatio        float64       `mapstructure:"max_gas_ratio"`
	GasPriceGwei       float64       `mapstructure:"gas_price_gwei"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	MaxCandidateRoutes int           `mapstructure:"max_candidate_routes"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	JanitorInterval    time.Duration `mapstructure:"janitor_interval"`
}

type FeeConfig struct {
	BaseGasLimit     uint64  `mapstructure:"base_gas_limit"`
	LiveGasLimit     uint64  `mapstructure:"live_gas_limit"`
	BaseConfidence   float64 `mapstructure:"base_confidence"`
	PredictionWeight float64 `mapstructure:"prediction_weight"`
	HistorySize      int     `mapstructure:"history_size"`
	HistoryWindow    int     `mapstructure:"history_window"`
}

type StrategyConfig struct {
	LargeTradeValueUSD float64 `mapstructure:"large_trade_value_usd"`
	HighMarginPct      float64 `mapstructure:"high_margin_pct"`
	LowMarginPct       float64 `mapstructure:"low_margin_pct"`
}

// CacheConfig selects the route cache backend: "memory" or "redis".
type CacheConfig struct {
	Backend    string `mapstructure:"backend"`
	MaxEntries int    `mapstructure:"max_entries"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

var validCacheBackends = map[string]bool{"memory": true, "redis": true}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	config.Cache.Backend = strings.ToLower(config.Cache.Backend)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Routing.MaxHops < 1 {
		return fmt.Errorf("routing max_hops must be at least 1, got %d", c.Routing.MaxHops)
	}
	thresholds := map[string]float64{
		"detector.min_profit_threshold": c.Detector.MinProfitThreshold,
		"detector.slippage_tolerance":   c.Detector.SlippageTolerance,
		"detector.default_gas_cost_usd": c.Detector.DefaultGasCostUSD,
		"routing.min_liquidity":         c.Routing.MinLiquidity,
		"routing.max_slippage":          c.Routing.MaxSlippage,
		"routing.max_gas_ratio":         c.Routing.MaxGasRatio,
	}
	for key, value := range thresholds {
		if value < 0 {
			return fmt.Errorf("%s must not be negative, got %g", key, value)
		}
	}
	if c.Fees.PredictionWeight < 0 || c.Fees.PredictionWeight > 1 {
		return fmt.Errorf("fees prediction_weight must be within [0, 1], got %g", c.Fees.PredictionWeight)
	}
	if !validCacheBackends[c.Cache.Backend] {
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Strategy.LowMarginPct > c.Strategy.HighMarginPct {
		return errors.New("strategy low_margin_pct must not exceed high_margin_pct")
	}
	for symbol, token := range c.Chain.Tokens {
		if token.Decimals < 0 || token.Decimals > 36 {
			return fmt.Errorf("token %s has invalid decimals %d", symbol, token.Decimals)
		}
	}
	if !c.Database.Enabled && len(c.Venues) == 0 {
		return errors.New("at least one venue must be configured when the database is disabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "celebrum_arb")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "300s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("chain.rpc_url", "http://localhost:8545")
	v.SetDefault("chain.routers", map[string]string{
		"uniswap":   "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		"sushiswap": "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
	})
	v.SetDefault("chain.tokens", map[string]interface{}{
		"weth": map[string]interface{}{"address": "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "decimals": 18},
		"usdc": map[string]interface{}{"address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "decimals": 6},
		"usdt": map[string]interface{}{"address": "0xdAC17F958D2ee523a2206206994597C13D831ec7", "decimals": 6},
		"dai":  map[string]interface{}{"address": "0x6B175474E89094C44Da98b954EedeAC495271d0F", "decimals": 18},
	})
	v.SetDefault("chain.prices", map[string]float64{"weth": 2000})

	v.SetDefault("venues", []map[string]interface{}{
		{"id": "uniswap", "name": "Uniswap V2", "fee_rate": 0.003, "gas_per_swap": 150000, "enabled": true},
		{"id": "sushiswap", "name": "SushiSwap", "fee_rate": 0.003, "gas_per_swap": 150000, "enabled": true},
	})

	v.SetDefault("detector.min_profit_threshold", 0.5)
	v.SetDefault("detector.slippage_tolerance", 0.005)
	v.SetDefault("detector.default_gas_cost_usd", 15.0)
	v.SetDefault("detector.history_size", 1000)

	v.SetDefault("routing.max_hops", 3)
	v.SetDefault("routing.intermediate_tokens", []string{"WETH", "USDC", "USDT", "DAI"})
	v.SetDefault("routing.native_token", "WETH")
	v.SetDefault("routing.min_liquidity", 1000.0)
	v.SetDefault("routing.max_slippage", 0.03)
	v.SetDefault("routing.max_gas_ratio", 0.05)
	v.SetDefault("routing.gas_price_gwei", 30.0)
	v.SetDefault("routing.max_concurrency", 8)
	v.SetDefault("routing.max_candidate_routes", 512)
	v.SetDefault("routing.cache_ttl", "30s")
	v.SetDefault("routing.janitor_interval", "1m")

	v.SetDefault("fees.base_gas_limit", 350000)
	v.SetDefault("fees.live_gas_limit", 400000)
	v.SetDefault("fees.base_confidence", 0.8)
	v.SetDefault("fees.prediction_weight", 0.0)
	v.SetDefault("fees.history_size", 1000)
	v.SetDefault("fees.history_window", 20)

	v.SetDefault("strategy.large_trade_value_usd", 50000.0)
	v.SetDefault("strategy.high_margin_pct", 2.0)
	v.SetDefault("strategy.low_margin_pct", 0.5)

	v.SetDefault("orchestrator.queue_size", 100)
	v.SetDefault("orchestrator.success_savings_pct", 5.0)

	v.SetDefault("timeouts.quote", "2s")
	v.SetDefault("timeouts.fee_data", "3s")
	v.SetDefault("timeouts.block", "3s")
	v.SetDefault("timeouts.venue_registry", "5s")
	v.SetDefault("timeouts.token_price", "2s")
	v.SetDefault("timeouts.optimization", "15s")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.reset_timeout", "60s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.key_prefix", "arb:route:")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.service_name", telemetry.ServiceName)
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.sample_rate", 1.0)
}
