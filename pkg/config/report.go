package config

import (
	"strings"
	"time"
)

// Release sources understood by the report service.
const (
	SourcePipeline = "pipeline"
	SourceClassic  = "classic"
)

// ReportConfig holds runtime configuration for the release report service.
type ReportConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	OrganizationURL    string
	ReleaseURL         string
	ProjectName        string
	AccessToken        string
	UpstreamTimeout    time.Duration
	Source             string
	EnvironmentFilter  string
	RecencyWindow      time.Duration
	BuildsPerQuery     int
	Concurrency        int
	CacheTTL           time.Duration
	CacheRedisAddr     string
	CacheRedisPass     string
	CacheRedisDB       int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	JWTSecret          string
	FunctionKeyHashes  []string
	WarmInterval       time.Duration
}

// LoadReportConfig constructs a ReportConfig from environment variables.
func LoadReportConfig() ReportConfig {
	orgURL := strings.TrimRight(GetString("AZDO_ORGANIZATION_URL", "https://dev.azure.com/yourorg"), "/")
	cfg := ReportConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("REPORT_ADDR", ":7071"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		OrganizationURL:    orgURL,
		ReleaseURL:         strings.TrimRight(GetString("AZDO_RELEASE_URL", ReleaseURLFor(orgURL)), "/"),
		ProjectName:        GetString("AZDO_PROJECT", ""),
		AccessToken:        GetString("AZDO_ACCESS_TOKEN", ""),
		UpstreamTimeout:    time.Duration(GetInt("AZDO_TIMEOUT_SECONDS", 30)) * time.Second,
		Source:             strings.ToLower(strings.TrimSpace(GetString("REPORT_SOURCE", SourcePipeline))),
		EnvironmentFilter:  GetString("REPORT_ENVIRONMENT", ""),
		RecencyWindow:      time.Duration(GetInt("REPORT_RECENCY_MONTHS", 3)) * 30 * 24 * time.Hour,
		BuildsPerQuery:     GetInt("REPORT_BUILDS_PER_QUERY", 10),
		Concurrency:        GetInt("REPORT_CONCURRENCY", 4),
		CacheTTL:           time.Duration(GetInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		CacheRedisAddr:     GetString("CACHE_REDIS_ADDR", ""),
		CacheRedisPass:     GetString("CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:       GetInt("CACHE_REDIS_DB", 0),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		JWTSecret:          GetString("JWT_SECRET", ""),
		FunctionKeyHashes:  GetList("FUNCTION_KEY_HASHES"),
		WarmInterval:       time.Duration(GetInt("REPORT_WARM_INTERVAL_SECONDS", 0)) * time.Second,
	}
	if cfg.Source != SourceClassic {
		cfg.Source = SourcePipeline
	}
	return cfg
}

// ReleaseURLFor derives the classic release management endpoint from an organisation URL.
func ReleaseURLFor(orgURL string) string {
	switch {
	case strings.Contains(orgURL, "://dev.azure.com"):
		return strings.Replace(orgURL, "://dev.azure.com", "://vsrm.dev.azure.com", 1)
	case strings.Contains(orgURL, ".visualstudio.com"):
		return strings.Replace(orgURL, ".visualstudio.com", ".vsrm.visualstudio.com", 1)
	default:
		return orgURL
	}
}
