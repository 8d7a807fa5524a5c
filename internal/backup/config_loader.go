package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigLoader handles loading and parsing the expiry configuration
type ConfigLoader struct {
	configPath string
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
	}
}

// LoadConfig loads the configuration from file and environment variables.
// Entity policies are resolved against their class defaults before validation.
func (cl *ConfigLoader) LoadConfig() (*SystemConfig, error) {
	config := NewDefaultSystemConfig()

	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	return finishConfig(config)
}

// loadFromFile loads configuration from a YAML file
func (cl *ConfigLoader) loadFromFile(config *SystemConfig) error {
	data, err := os.ReadFile(cl.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfigurationError(fmt.Sprintf("config file %s does not exist", cl.configPath), err)
		}
		return fmt.Errorf("failed to read config file %s: %w", cl.configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// SaveConfig saves the configuration to a YAML file
func (cl *ConfigLoader) SaveConfig(config *SystemConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	dir := filepath.Dir(cl.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(cl.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfigFromBytes loads configuration from YAML bytes
func LoadConfigFromBytes(data []byte) (*SystemConfig, error) {
	config := NewDefaultSystemConfig()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return finishConfig(config)
}

func finishConfig(config *SystemConfig) (*SystemConfig, error) {
	config.SetDefaults()
	config.LoadFromEnvironment()
	config.Resolve()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// GenerateDefaultConfigYAML generates a default configuration as YAML with comments
func GenerateDefaultConfigYAML() ([]byte, error) {
	configYAML := `# Backup expiry configuration

config:
  # Set to false to disable all cleanup
  expiry: true

  dir:
    # Root of the local backup tree: <local>/<class>/<entity>/<artifact>
    local: /backup

  # Extra attempts for a deletion that failed with a transient error
  retry: 1

  # Decode the newest artifact of each entity before expiring older ones
  verify_before_cleanup: false

# Entities per class. expiry values of 0 fall back to the class default.
app:
  - name: dsmr
    # enabled: true
    # expiry:
    #   day: 7
    #   month: 0
    #   year: 0

db: []
  # - name: mysql
  #   expiry:
  #     day: 10

other: []

# Class defaults. day: 0 disables expiry for entities that do not override it.
# weekday lists the ISO weekdays (Mon=1 .. Sun=7) a scheduled run cleans the class.
expiry_app:
  day: 14
  month: 4
  year: 2
  weekday: [1, 2, 3, 4, 5, 6, 7]

expiry_db:
  day: 5
  month: 2
  year: 1
  weekday: [1, 2, 3, 4, 5, 6, 7]

# other entities are left alone unless day is set here or on the entity
expire_other:
  day: 0
  month: 0
  year: 0
  weekday: [1, 2, 3, 4, 5, 6, 7]

# Remove image/*.tar.gz files not listed in image/imagelist.txt
image:
  cleanup: false

# Additional artifact stores. Without entries, config.dir.local is used.
# storage:
#   - name: offsite
#     provider: S3
#     s3:
#       bucket: my-backup-bucket
#       region: us-east-1
#       prefix: backup
#   - name: gcs
#     provider: GCS
#     gcs:
#       bucket: my-backup-bucket
#       credentials_path: /path/to/credentials.json
#   - name: azure
#     provider: AZURE
#     azure:
#       account_name: myaccount
#       container_name: backups

# Run report delivery. Reports are sent when a run has errors unless always is true.
notifications:
  always: false
  # telegram:
  #   token: "123456:ABC"
  #   chat_id: 12345678
  #   disable_notification: false
  # email:
  #   smtp_host: smtp.example.com
  #   smtp_port: 587
  #   from: backup@example.com
  #   to: [ops@example.com]
  # webhook:
  #   url: https://hooks.example.com/backup
  # file:
  #   path: /var/log/backup-expiry-report.log
  #   format: text

# Prometheus endpoint, served by the schedule command
metrics:
  enabled: false
  listen: ":9108"
  path: /metrics

schedule:
  cron: "30 3 * * *"
  run_timeout: 1h
`

	return []byte(configYAML), nil
}
