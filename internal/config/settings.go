package config

import (
	"fmt"
	"strings"
	"time"

	"agentscan/pkg/agents"
	"agentscan/pkg/engine"
	apperrors "agentscan/pkg/errors"
	"agentscan/pkg/resolver"
	"agentscan/pkg/session"
	"agentscan/pkg/workflow"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "AGENTSCAN"

const (
	ExecutorShell = "shell"
	ExecutorNmap  = "nmap"
)

type AzureSettings struct {
	APIKey         string        `mapstructure:"api_key"`
	Endpoint       string        `mapstructure:"endpoint"`
	DeploymentName string        `mapstructure:"deployment_name"`
	APIVersion     string        `mapstructure:"api_version"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Temperature    float32       `mapstructure:"temperature"`
	// retries of throttled or failed requests; -1 disables them
	MaxRetries     int           `mapstructure:"max_retries"`
}

type DiscordSettings struct {
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

// ResolverSettings picks how domains are resolved. With no nameserver the
// system resolver is used.
type ResolverSettings struct {
	Nameserver string        `mapstructure:"nameserver"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ServerSettings struct {
	Addr string `mapstructure:"addr"`
}

// Settings is the deployment configuration: inference credentials, where
// artifacts go and how hard each loop may try.
type Settings struct {
	Azure    AzureSettings           `mapstructure:"azure"`
	ScansDir string                  `mapstructure:"scans_dir"`
	Executor string                  `mapstructure:"executor"`
	Resolver ResolverSettings        `mapstructure:"resolver"`
	Limits   engine.Limits           `mapstructure:"limits"`
	Scan     workflow.ScanParameters `mapstructure:"scan"`
	Database Config                  `mapstructure:"database"`
	Discord  DiscordSettings         `mapstructure:"discord"`
	Server   ServerSettings          `mapstructure:"server"`
}

// envAliases binds keys to the unprefixed variable names deployments
// already use. The AGENTSCAN_ prefixed form always works as well.
var envAliases = map[string][]string{
	"azure.api_key":         {"AZURE_OPENAI_API_KEY"},
	"azure.endpoint":        {"AZURE_OPENAI_ENDPOINT"},
	"azure.deployment_name": {"AZURE_OPENAI_DEPLOYMENT_NAME"},
	"azure.api_version":     {"AZURE_OPENAI_API_VERSION"},
	"database.host":         {"DB_HOST"},
	"database.port":         {"DB_PORT"},
	"database.user":         {"DB_USER"},
	"database.password":     {"DB_PASSWORD"},
	"database.name":         {"DB_NAME"},
	"database.sslmode":      {"DB_SSLMODE"},
	"discord.token":         {"DISCORD_TOKEN"},
	"discord.channel_id":    {"DISCORD_CHANNEL_ID"},
}

func setDefaults(v *viper.Viper) {
	params := workflow.DefaultScanParameters()
	limits := engine.DefaultLimits()

	v.SetDefault("azure.api_key", "")
	v.SetDefault("azure.endpoint", "")
	v.SetDefault("azure.deployment_name", "")
	v.SetDefault("azure.api_version", agents.DefaultAPIVersion)
	v.SetDefault("azure.timeout", 2*time.Minute)
	v.SetDefault("azure.temperature", agents.DefaultTemperature)
	v.SetDefault("azure.max_retries", agents.DefaultMaxRetries)
	v.SetDefault("scans_dir", session.DefaultRoot)
	v.SetDefault("executor", ExecutorShell)
	v.SetDefault("resolver.nameserver", "")
	v.SetDefault("resolver.timeout", 5*time.Second)
	v.SetDefault("limits.strategy_reviews", limits.StrategyReviews)
	v.SetDefault("limits.assessments", limits.Assessments)
	v.SetDefault("limits.report_reviews", limits.ReportReviews)
	v.SetDefault("scan.scan_type", params.ScanType)
	v.SetDefault("scan.ports", params.Ports)
	v.SetDefault("scan.vulnerability_types", params.VulnerabilityTypes)
	v.SetDefault("scan.timeout", params.Timeout)
	v.SetDefault("scan.max_retries", params.MaxRetries)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "agentscan")
	v.SetDefault("database.password", "agentscan")
	v.SetDefault("database.name", "agentscan")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.channel_id", "")
	v.SetDefault("server.addr", ":8080")
}

// LoadSettings reads the optional settings file at path (skipped when
// empty), then the environment, then applies defaults.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, apperrors.WrapConfigError(key, nil, "cannot bind environment", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.WrapConfigError("settings", path, "cannot read settings file", err)
		}
		log.Infof("Loaded settings file: %s", v.ConfigFileUsed())
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, apperrors.WrapConfigError("settings", path, "cannot decode settings", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) Validate() error {
	switch s.Executor {
	case ExecutorShell, ExecutorNmap:
	default:
		return apperrors.NewConfigError("executor", s.Executor, fmt.Sprintf("must be %q or %q", ExecutorShell, ExecutorNmap))
	}
	if strings.TrimSpace(s.ScansDir) == "" {
		return apperrors.NewConfigError("scans_dir", s.ScansDir, "must not be empty")
	}
	if err := s.Scan.Validate(); err != nil {
		return apperrors.WrapConfigError("scan", s.Scan, "invalid scan parameters", err)
	}
	return nil
}

// RequireInference reports missing model credentials. Only commands that
// talk to the model call it.
func (s *Settings) RequireInference() error {
	var missing []string
	if s.Azure.APIKey == "" {
		missing = append(missing, "AZURE_OPENAI_API_KEY")
	}
	if s.Azure.Endpoint == "" {
		missing = append(missing, "AZURE_OPENAI_ENDPOINT")
	}
	if s.Azure.DeploymentName == "" {
		missing = append(missing, "AZURE_OPENAI_DEPLOYMENT_NAME")
	}
	if len(missing) > 0 {
		return apperrors.NewConfigError("azure", strings.Join(missing, ","), "missing required Azure OpenAI configuration")
	}
	return nil
}

func (s *Settings) AzureConfig() agents.AzureConfig {
	return agents.AzureConfig{
		APIKey:         s.Azure.APIKey,
		Endpoint:       s.Azure.Endpoint,
		DeploymentName: s.Azure.DeploymentName,
		APIVersion:     s.Azure.APIVersion,
		Timeout:        s.Azure.Timeout,
		MaxRetries:     s.Azure.MaxRetries,
	}
}

func (s *Settings) NewResolver() resolver.Resolver {
	if ns := strings.TrimSpace(s.Resolver.Nameserver); ns != "" {
		return resolver.NewDNSResolver(ns, s.Resolver.Timeout)
	}
	return resolver.NewNetResolver()
}
