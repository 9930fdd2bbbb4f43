package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. SHOPSYNC_BULK_WINDOW_IN_DAYS.
const EnvPrefix = "SHOPSYNC"

// Load reads a YAML (or JSON) configuration file on top of Default.
func Load(filePath string) (*SourceConfig, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes on top of Default, substituting
// ${VAR_NAME} references from the environment first.
func Parse(data []byte) (*SourceConfig, error) {
	cfg := Default()
	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, cfg *SourceConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// envKeys lists the settings that may be overridden from the environment.
var envKeys = []string{
	"shop",
	"api_version",
	"start_date",
	"credentials.access_token",
	"credentials.client_id",
	"credentials.client_secret",
	"bulk.window_in_days",
	"bulk.poll_timeout",
	"observability.log_level",
	"observability.log_encoding",
	"observability.metrics_addr",
	"observability.tracing",
}

// ApplyEnv overlays SHOPSYNC_* environment variables, plus any flags already
// bound on v, onto cfg. A nil v uses a fresh viper instance.
func ApplyEnv(cfg *SourceConfig, v *viper.Viper) error {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	overrides := make(map[string]any)
	for _, key := range v.AllKeys() {
		if v.IsSet(key) {
			setNested(overrides, strings.Split(key, "."), v.Get(key))
		}
	}
	if len(overrides) == 0 {
		return nil
	}

	// round-trip through viper's decoder so durations and numbers parse the
	// same way as in files
	overlay := viper.New()
	if err := overlay.MergeConfigMap(overrides); err != nil {
		return fmt.Errorf("failed to merge overrides: %w", err)
	}
	if err := overlay.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to apply overrides: %w", err)
	}
	return nil
}

func setNested(m map[string]any, path []string, value any) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
