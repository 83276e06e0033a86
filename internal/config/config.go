package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Pipeline  PipelineConfig
	Providers ProvidersConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PipelineConfig holds every tunable of the step executor: retry policy,
// polling policy, queue weights, deadlines and credit costs.
type PipelineConfig struct {
	Concurrency           int
	GenerationQueueWeight int
	AnalysisQueueWeight   int

	JobDeadline time.Duration
	JobTTL      time.Duration

	RetryBase            time.Duration
	RetryRateLimitedBase time.Duration
	RetryMaxDelay        time.Duration
	MaxStepAttempts      int

	PollBase        time.Duration
	PollMaxDelay    time.Duration
	MaxPollAttempts int

	CreditCostGeneration int64
	CreditCostAnalysis   int64

	SimilarityThreshold float64
	DefaultTemplateID   string
}

type ProvidersConfig struct {
	CallTimeout      time.Duration
	DownloadMaxBytes int64

	Flux           ProviderEndpoint
	Stable         ProviderEndpoint
	Vision         VisionEndpoint
	VisionFallback VisionEndpoint
}

type ProviderEndpoint struct {
	BaseURL string
	APIKey  string
}

type VisionEndpoint struct {
	BaseURL    string
	APIKey     string
	Model      string
	EmbedModel string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "3000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("pipeline.concurrency", 10)
	viper.SetDefault("pipeline.generation_queue_weight", 6)
	viper.SetDefault("pipeline.analysis_queue_weight", 4)
	viper.SetDefault("pipeline.job_deadline", "15m")
	viper.SetDefault("pipeline.job_ttl", "24h")
	viper.SetDefault("pipeline.retry_base", "2s")
	viper.SetDefault("pipeline.retry_rate_limited_base", "10s")
	viper.SetDefault("pipeline.retry_max_delay", "60s")
	viper.SetDefault("pipeline.max_step_attempts", 5)
	viper.SetDefault("pipeline.poll_base", "3s")
	viper.SetDefault("pipeline.poll_max_delay", "30s")
	viper.SetDefault("pipeline.max_poll_attempts", 120)
	viper.SetDefault("pipeline.credit_cost_generation", 10)
	viper.SetDefault("pipeline.credit_cost_analysis", 2)
	viper.SetDefault("pipeline.similarity_threshold", 0.78)
	viper.SetDefault("pipeline.default_template_id", "default")

	viper.SetDefault("providers.call_timeout", "30s")
	viper.SetDefault("providers.download_max_bytes", 20*1024*1024)
	viper.SetDefault("providers.flux.base_url", "https://api.flux.example.com")
	viper.SetDefault("providers.flux.api_key", "")
	viper.SetDefault("providers.stable.base_url", "https://api.stablegen.example.com")
	viper.SetDefault("providers.stable.api_key", "")
	viper.SetDefault("providers.vision.base_url", "https://api.openai.com/v1")
	viper.SetDefault("providers.vision.api_key", "")
	viper.SetDefault("providers.vision.model", "gpt-4o-mini")
	viper.SetDefault("providers.vision.embed_model", "text-embedding-3-small")
	viper.SetDefault("providers.vision_fallback.base_url", "")
	viper.SetDefault("providers.vision_fallback.api_key", "")
	viper.SetDefault("providers.vision_fallback.model", "")
	viper.SetDefault("providers.vision_fallback.embed_model", "")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Pipeline: PipelineConfig{
			Concurrency:           viper.GetInt("pipeline.concurrency"),
			GenerationQueueWeight: viper.GetInt("pipeline.generation_queue_weight"),
			AnalysisQueueWeight:   viper.GetInt("pipeline.analysis_queue_weight"),
			JobDeadline:           viper.GetDuration("pipeline.job_deadline"),
			JobTTL:                viper.GetDuration("pipeline.job_ttl"),
			RetryBase:             viper.GetDuration("pipeline.retry_base"),
			RetryRateLimitedBase:  viper.GetDuration("pipeline.retry_rate_limited_base"),
			RetryMaxDelay:         viper.GetDuration("pipeline.retry_max_delay"),
			MaxStepAttempts:       viper.GetInt("pipeline.max_step_attempts"),
			PollBase:              viper.GetDuration("pipeline.poll_base"),
			PollMaxDelay:          viper.GetDuration("pipeline.poll_max_delay"),
			MaxPollAttempts:       viper.GetInt("pipeline.max_poll_attempts"),
			CreditCostGeneration:  viper.GetInt64("pipeline.credit_cost_generation"),
			CreditCostAnalysis:    viper.GetInt64("pipeline.credit_cost_analysis"),
			SimilarityThreshold:   viper.GetFloat64("pipeline.similarity_threshold"),
			DefaultTemplateID:     viper.GetString("pipeline.default_template_id"),
		},
		Providers: ProvidersConfig{
			CallTimeout:      viper.GetDuration("providers.call_timeout"),
			DownloadMaxBytes: viper.GetInt64("providers.download_max_bytes"),
			Flux: ProviderEndpoint{
				BaseURL: viper.GetString("providers.flux.base_url"),
				APIKey:  viper.GetString("providers.flux.api_key"),
			},
			Stable: ProviderEndpoint{
				BaseURL: viper.GetString("providers.stable.base_url"),
				APIKey:  viper.GetString("providers.stable.api_key"),
			},
			Vision: VisionEndpoint{
				BaseURL:    viper.GetString("providers.vision.base_url"),
				APIKey:     viper.GetString("providers.vision.api_key"),
				Model:      viper.GetString("providers.vision.model"),
				EmbedModel: viper.GetString("providers.vision.embed_model"),
			},
			VisionFallback: VisionEndpoint{
				BaseURL:    viper.GetString("providers.vision_fallback.base_url"),
				APIKey:     viper.GetString("providers.vision_fallback.api_key"),
				Model:      viper.GetString("providers.vision_fallback.model"),
				EmbedModel: viper.GetString("providers.vision_fallback.embed_model"),
			},
		},
	}

	return cfg, nil
}
