package backup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SystemConfig represents the complete expiry configuration file
type SystemConfig struct {
	General       GeneralConfig      `yaml:"config"`
	App           []EntityConfig     `yaml:"app"`
	DB            []EntityConfig     `yaml:"db"`
	Other         []EntityConfig     `yaml:"other"`
	ExpiryApp     ClassPolicy        `yaml:"expiry_app"`
	ExpiryDB      ClassPolicy        `yaml:"expiry_db"`
	ExpiryOther   ClassPolicy        `yaml:"expire_other"`
	Image         ImageConfig        `yaml:"image"`
	Storage       []StorageConfig    `yaml:"storage,omitempty"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Schedule      ScheduleConfig     `yaml:"schedule"`
}

// GeneralConfig holds the switches under the top-level "config" key
type GeneralConfig struct {
	// Expiry turns all cleanup off when false
	Expiry bool      `yaml:"expiry"`
	Dir    DirConfig `yaml:"dir"`
	// Retry is the number of extra attempts for a failed deletion
	Retry               int  `yaml:"retry"`
	VerifyBeforeCleanup bool `yaml:"verify_before_cleanup"`
	// AuditLog is the path of the JSON deletion audit trail, empty disables it
	AuditLog string `yaml:"audit_log,omitempty"`
	// Telegram is the bot used for error reports, see NotificationConfig
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
}

// DirConfig holds directory locations
type DirConfig struct {
	Local string `yaml:"local"`
}

// EntityConfig is one backed-up entity of a class
type EntityConfig struct {
	Name    string          `yaml:"name"`
	Enabled *bool           `yaml:"enabled,omitempty"`
	Expiry  RetentionPolicy `yaml:"expiry"`

	// Policy is the resolved policy, filled by Resolve
	Policy RetentionPolicy `yaml:"-"`
}

// IsEnabled reports whether the entity takes part in scheduled runs, default true
func (ec *EntityConfig) IsEnabled() bool {
	return ec.Enabled == nil || *ec.Enabled
}

// ImageConfig controls cleanup of stored container images
type ImageConfig struct {
	Cleanup bool `yaml:"cleanup"`
}

// MetricsConfig controls the Prometheus endpoint of the schedule command
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// ScheduleConfig controls the long-running scheduler
type ScheduleConfig struct {
	Cron       string        `yaml:"cron"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// Default values
const (
	DefaultLocalDir    = "/backup"
	DefaultCronSpec    = "30 3 * * *"
	DefaultMetricsPath = "/metrics"
	DefaultRunTimeout  = time.Hour
)

// NewDefaultSystemConfig returns a configuration with all defaults applied
func NewDefaultSystemConfig() *SystemConfig {
	defaults := DefaultClassPolicies()
	cfg := &SystemConfig{
		General: GeneralConfig{
			Expiry: true,
			Dir:    DirConfig{Local: DefaultLocalDir},
			Retry:  1,
		},
		ExpiryApp:   defaults[EntityClassApp],
		ExpiryDB:    defaults[EntityClassDB],
		ExpiryOther: defaults[EntityClassOther],
	}
	cfg.SetDefaults()
	return cfg
}

// ClassPolicy returns the class defaults for class
func (sc *SystemConfig) ClassPolicy(class EntityClass) ClassPolicy {
	switch class {
	case EntityClassApp:
		return sc.ExpiryApp
	case EntityClassDB:
		return sc.ExpiryDB
	default:
		return sc.ExpiryOther
	}
}

// Entities returns the configured entities of class
func (sc *SystemConfig) Entities(class EntityClass) []EntityConfig {
	switch class {
	case EntityClassApp:
		return sc.App
	case EntityClassDB:
		return sc.DB
	default:
		return sc.Other
	}
}

// FindEntity looks up an entity by class and name
func (sc *SystemConfig) FindEntity(class EntityClass, name string) (EntityConfig, bool) {
	for _, entity := range sc.Entities(class) {
		if entity.Name == name {
			return entity, true
		}
	}
	return EntityConfig{}, false
}

// Resolve fills EntityConfig.Policy for every entity from its override and class default
func (sc *SystemConfig) Resolve() {
	resolve := func(entities []EntityConfig, class EntityClass) {
		classDefault := sc.ClassPolicy(class).RetentionPolicy
		for i := range entities {
			entities[i].Policy = ResolvePolicy(entities[i].Expiry, classDefault)
		}
	}
	resolve(sc.App, EntityClassApp)
	resolve(sc.DB, EntityClassDB)
	resolve(sc.Other, EntityClassOther)
}

// StorageConfigs returns the configured stores, or a single local store on
// config.dir.local when none are configured
func (sc *SystemConfig) StorageConfigs() []StorageConfig {
	if len(sc.Storage) > 0 {
		return sc.Storage
	}
	return []StorageConfig{{
		Name:     "local",
		Provider: StorageProviderLocal,
		Local:    &LocalConfig{BasePath: sc.General.Dir.Local},
	}}
}

// Validate validates the SystemConfig
func (sc *SystemConfig) Validate() error {
	var errors ValidationErrors

	if sc.General.Dir.Local == "" && len(sc.Storage) == 0 {
		errors.Add("config.dir.local", "local backup directory is required when no storage is configured", sc.General.Dir.Local)
	}
	if sc.General.Retry < 0 {
		errors.Add("config.retry", "retry count cannot be negative", sc.General.Retry)
	}

	appendErrs := func(prefix string, err error) {
		if err == nil {
			return
		}
		if validationErrs, ok := err.(ValidationErrors); ok {
			for _, ve := range validationErrs {
				ve.Field = prefix + "." + ve.Field
				errors = append(errors, ve)
			}
			return
		}
		errors.Add(prefix, err.Error(), nil)
	}

	appendErrs("expiry_app", sc.ExpiryApp.Validate())
	appendErrs("expiry_db", sc.ExpiryDB.Validate())
	appendErrs("expire_other", sc.ExpiryOther.Validate())

	for _, class := range AllEntityClasses {
		seen := make(map[string]bool)
		for i, entity := range sc.Entities(class) {
			field := fmt.Sprintf("%s[%d]", class, i)
			if entity.Name == "" {
				errors.Add(field+".name", "entity name is required", entity.Name)
			} else if strings.ContainsAny(entity.Name, `/\`) || entity.Name == "." || entity.Name == ".." {
				errors.Add(field+".name", "entity name cannot contain path separators", entity.Name)
			} else if seen[entity.Name] {
				errors.Add(field+".name", "duplicate entity name", entity.Name)
			}
			seen[entity.Name] = true
			appendErrs(field+".expiry", entity.Expiry.Validate())
		}
	}

	names := make(map[string]bool)
	for i := range sc.Storage {
		field := fmt.Sprintf("storage[%d]", i)
		if sc.Storage[i].Name != "" {
			if names[sc.Storage[i].Name] {
				errors.Add(field+".name", "duplicate storage name", sc.Storage[i].Name)
			}
			names[sc.Storage[i].Name] = true
		}
		appendErrs(field, sc.Storage[i].Validate())
	}

	appendErrs("notifications", sc.Notifications.Validate())

	if sc.Metrics.Enabled && sc.Metrics.Listen == "" {
		errors.Add("metrics.listen", "listen address is required when metrics are enabled", sc.Metrics.Listen)
	}
	if sc.Schedule.RunTimeout < 0 {
		errors.Add("schedule.run_timeout", "run timeout cannot be negative", sc.Schedule.RunTimeout)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for fields left empty
func (sc *SystemConfig) SetDefaults() {
	if sc.General.Dir.Local == "" && len(sc.Storage) == 0 {
		sc.General.Dir.Local = DefaultLocalDir
	}

	defaults := DefaultClassPolicies()
	for _, class := range AllEntityClasses {
		cp := sc.classPolicyRef(class)
		if len(cp.Weekday) == 0 {
			cp.Weekday = defaults[class].Weekday
		}
	}

	for i := range sc.Storage {
		sc.Storage[i].SetDefaults()
		if sc.Storage[i].Name == "" {
			sc.Storage[i].Name = strings.ToLower(string(sc.Storage[i].Provider))
		}
	}

	if sc.Notifications.Telegram == nil && sc.General.Telegram != nil {
		sc.Notifications.Telegram = sc.General.Telegram
	}
	sc.Notifications.SetDefaults()

	if sc.Metrics.Path == "" {
		sc.Metrics.Path = DefaultMetricsPath
	}
	if sc.Schedule.Cron == "" {
		sc.Schedule.Cron = DefaultCronSpec
	}
	if sc.Schedule.RunTimeout == 0 {
		sc.Schedule.RunTimeout = DefaultRunTimeout
	}
}

func (sc *SystemConfig) classPolicyRef(class EntityClass) *ClassPolicy {
	switch class {
	case EntityClassApp:
		return &sc.ExpiryApp
	case EntityClassDB:
		return &sc.ExpiryDB
	default:
		return &sc.ExpiryOther
	}
}

// LoadFromEnvironment loads configuration values from environment variables
func (sc *SystemConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_EXPIRY_ENABLED"); val != "" {
		sc.General.Expiry = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("BACKUP_LOCAL_DIR"); val != "" {
		sc.General.Dir.Local = val
	}

	if val := os.Getenv("BACKUP_RETRY"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			sc.General.Retry = parsed
		}
	}

	if val := os.Getenv("BACKUP_IMAGE_CLEANUP"); val != "" {
		sc.Image.Cleanup = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("BACKUP_SCHEDULE_CRON"); val != "" {
		sc.Schedule.Cron = val
	}

	if val := os.Getenv("BACKUP_METRICS_LISTEN"); val != "" {
		sc.Metrics.Enabled = true
		sc.Metrics.Listen = val
	}

	for i := range sc.Storage {
		sc.Storage[i].LoadFromEnvironment()
	}

	sc.Notifications.LoadFromEnvironment()
}

// Validate validates the StorageConfig struct
func (sc *StorageConfig) Validate() error {
	var errors ValidationErrors

	if !isValidStorageProviderType(sc.Provider) {
		errors.Add("provider", "invalid storage provider type", sc.Provider)
		return errors
	}

	var sub error
	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			errors.Add("local", "local storage configuration is required", nil)
		} else {
			sub = sc.Local.Validate()
		}
	case StorageProviderS3:
		if sc.S3 == nil {
			errors.Add("s3", "S3 storage configuration is required", nil)
		} else {
			sub = sc.S3.Validate()
		}
	case StorageProviderAzure:
		if sc.Azure == nil {
			errors.Add("azure", "Azure storage configuration is required", nil)
		} else {
			sub = sc.Azure.Validate()
		}
	case StorageProviderGCS:
		if sc.GCS == nil {
			errors.Add("gcs", "GCS storage configuration is required", nil)
		} else {
			sub = sc.GCS.Validate()
		}
	}

	if sub != nil {
		if validationErrs, ok := sub.(ValidationErrors); ok {
			errors = append(errors, validationErrs...)
		} else {
			errors.Add(strings.ToLower(string(sc.Provider)), sub.Error(), nil)
		}
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for storage configuration
func (sc *StorageConfig) SetDefaults() {
	if sc.Provider == "" {
		sc.Provider = StorageProviderLocal
	}
	sc.Provider = StorageProviderType(strings.ToUpper(string(sc.Provider)))

	switch sc.Provider {
	case StorageProviderLocal:
		if sc.Local == nil {
			sc.Local = &LocalConfig{}
		}
		sc.Local.SetDefaults()
	case StorageProviderS3:
		if sc.S3 == nil {
			sc.S3 = &S3Config{}
		}
		sc.S3.SetDefaults()
	case StorageProviderGCS:
		if sc.GCS == nil {
			sc.GCS = &GCSConfig{}
		}
		sc.GCS.SetDefaults()
	}
}

// LoadFromEnvironment loads storage credentials from environment variables
func (sc *StorageConfig) LoadFromEnvironment() {
	switch sc.Provider {
	case StorageProviderS3:
		if sc.S3 != nil {
			sc.S3.LoadFromEnvironment()
		}
	case StorageProviderAzure:
		if sc.Azure != nil {
			sc.Azure.LoadFromEnvironment()
		}
	case StorageProviderGCS:
		if sc.GCS != nil {
			sc.GCS.LoadFromEnvironment()
		}
	}
}

func isValidStorageProviderType(provider StorageProviderType) bool {
	switch provider {
	case StorageProviderLocal, StorageProviderS3, StorageProviderAzure, StorageProviderGCS:
		return true
	default:
		return false
	}
}

// Validate validates the LocalConfig struct
func (lc *LocalConfig) Validate() error {
	var errors ValidationErrors

	if lc.BasePath == "" {
		errors.Add("base_path", "base path is required for local storage", lc.BasePath)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for local storage configuration
func (lc *LocalConfig) SetDefaults() {
	if lc.BasePath == "" {
		lc.BasePath = DefaultLocalDir
	}

	if lc.Permissions == 0 {
		lc.Permissions = 0755
	}
}

// Validate validates the S3Config struct
func (s3c *S3Config) Validate() error {
	var errors ValidationErrors

	if s3c.Bucket == "" {
		errors.Add("bucket", "S3 bucket name is required", s3c.Bucket)
	}

	if s3c.Region == "" {
		errors.Add("region", "S3 region is required", s3c.Region)
	}

	if (s3c.AccessKey == "") != (s3c.SecretKey == "") {
		errors.Add("access_key", "S3 access key and secret key must be set together", nil)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for S3 storage configuration
func (s3c *S3Config) SetDefaults() {
	if s3c.Region == "" {
		s3c.Region = "us-east-1"
	}
}

// LoadFromEnvironment loads S3 credentials from environment variables
func (s3c *S3Config) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_S3_ACCESS_KEY"); val != "" {
		s3c.AccessKey = val
	}

	if val := os.Getenv("BACKUP_S3_SECRET_KEY"); val != "" {
		s3c.SecretKey = val
	}
}

// Validate validates the AzureConfig struct
func (ac *AzureConfig) Validate() error {
	var errors ValidationErrors

	if ac.AccountName == "" {
		errors.Add("account_name", "Azure account name is required", ac.AccountName)
	}

	if ac.AccountKey == "" {
		errors.Add("account_key", "Azure account key is required", nil)
	}

	if ac.ContainerName == "" {
		errors.Add("container_name", "Azure container name is required", ac.ContainerName)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// LoadFromEnvironment loads Azure credentials from environment variables
func (ac *AzureConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_AZURE_ACCOUNT_KEY"); val != "" {
		ac.AccountKey = val
	}
}

// Validate validates the GCSConfig struct
func (gc *GCSConfig) Validate() error {
	var errors ValidationErrors

	if gc.Bucket == "" {
		errors.Add("bucket", "GCS bucket name is required", gc.Bucket)
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// SetDefaults sets default values for GCS storage configuration
func (gc *GCSConfig) SetDefaults() {
	if gc.CredentialsPath == "" {
		gc.CredentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
}

// LoadFromEnvironment loads GCS credentials from environment variables
func (gc *GCSConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_GCS_CREDENTIALS_PATH"); val != "" {
		gc.CredentialsPath = val
	}
}
