package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"backup-expiry/internal/backup"
	"backup-expiry/internal/display"
	appErrors "backup-expiry/internal/errors"
	"backup-expiry/internal/logging"
)

// ErrRunHadErrors is returned by RunCleanup when the run finished but
// recorded errors. The errors themselves are in the report.
var ErrRunHadErrors = errors.New("expiry run finished with errors")

// Application wires the configuration, stores and services of one
// command invocation
type Application struct {
	options     Config
	config      *backup.SystemConfig
	logger      *logging.Logger
	audit       *backup.AuditLogger
	stores      []backup.ArtifactStore
	storeErrors []string
	metrics     *backup.MetricsCollector
	manager     *backup.RetentionManager
	notifier    *backup.NotificationManager
	monitor     *backup.StorageMonitor
	display     display.DisplayService
}

// Config holds the command line options
type Config struct {
	ConfigFile string        `mapstructure:"config" yaml:"config"`
	DryRun     bool          `mapstructure:"dry_run" yaml:"dry_run"`
	Verbose    bool          `mapstructure:"verbose" yaml:"verbose"`
	Quiet      bool          `mapstructure:"quiet" yaml:"quiet"`
	LogFile    string        `mapstructure:"log_file" yaml:"log_file"`
	LogFormat  string        `mapstructure:"log_format" yaml:"log_format"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`

	Display *display.DisplayConfig `mapstructure:"-" yaml:"-"`
	// LogOutput receives console log lines, stderr when nil
	LogOutput io.Writer `mapstructure:"-" yaml:"-"`
}

// NewApplication loads the configuration file and creates a new application instance
func NewApplication(config Config) (*Application, error) {
	systemConfig, err := backup.NewConfigLoader(config.ConfigFile).LoadConfig()
	if err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeConfiguration,
			"Failed to load configuration", err)
	}
	return NewApplicationWithConfig(config, systemConfig)
}

// NewApplicationWithConfig creates an application from an already loaded configuration
func NewApplicationWithConfig(config Config, systemConfig *backup.SystemConfig) (*Application, error) {
	logLevel := logging.LogLevelNormal
	if config.Quiet {
		logLevel = logging.LogLevelQuiet
	} else if config.Verbose {
		logLevel = logging.LogLevelVerbose
	}

	logOutput := config.LogOutput
	if logOutput == nil {
		logOutput = os.Stderr
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:   logLevel,
		Output:  logOutput,
		Format:  config.LogFormat,
		LogFile: config.LogFile,
	})
	if err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeConfiguration,
			"Failed to create logger", err)
	}

	audit, err := backup.NewAuditLogger(backup.AuditLoggerConfig{
		Logger:       logger,
		AuditLogFile: systemConfig.General.AuditLog,
	})
	if err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeConfiguration,
			"Failed to open audit log", err)
	}

	ctx := context.Background()
	stores, err := backup.NewStorageProviderFactory().CreateMultipleStorageProviders(ctx, systemConfig.StorageConfigs())
	if len(stores) == 0 {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeStorage,
			"Failed to create artifact stores", err)
	}
	var storeErrors []string
	for _, storeErr := range backup.SplitErrors(err) {
		msg := logging.RedactSecrets(storeErr.Error())
		logger.WithField("error", msg).Error("Artifact store could not be created and is skipped")
		storeErrors = append(storeErrors, msg)
	}

	metrics := backup.NewMetricsCollector(nil)

	manager, err := backup.NewRetentionManager(stores, systemConfig, logger, backup.RetentionManagerOptions{
		DryRun:  config.DryRun,
		Audit:   audit,
		Metrics: metrics,
	})
	if err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrorTypeConfiguration,
			"Failed to create retention manager", err)
	}

	displayConfig := config.Display
	if displayConfig == nil {
		displayConfig = display.DefaultDisplayConfig()
	}
	displayConfig.VerboseMode = config.Verbose
	displayConfig.QuietMode = config.Quiet

	return &Application{
		options:     config,
		config:      systemConfig,
		logger:      logger,
		audit:       audit,
		stores:      stores,
		storeErrors: storeErrors,
		metrics:     metrics,
		manager:     manager,
		notifier:    backup.NewNotificationManager(logger, systemConfig.Notifications),
		monitor:     backup.NewStorageMonitor(stores, systemConfig, logger),
		display:     display.NewDisplayService(displayConfig),
	}, nil
}

// Execute runs op with the configured timeout, cancelling it on SIGINT or
// SIGTERM, and reports a failure to the user
func (app *Application) Execute(op func(ctx context.Context) error) error {
	var ctx context.Context
	var cancel context.CancelFunc
	if app.options.Timeout > 0 {
		ctx, cancel = appErrors.CreateContextWithTimeout(app.options.Timeout)
	} else {
		ctx, cancel = appErrors.CreateContextWithCancel()
	}
	defer cancel()

	shutdownHandler := appErrors.NewGracefulShutdownHandler()
	shutdownHandler.RegisterShutdownFunc(func() error {
		app.logger.Info("Received shutdown signal, stopping")
		cancel()
		return nil
	})
	shutdownHandler.Start()
	defer shutdownHandler.Stop()

	err := op(ctx)
	if err != nil && !errors.Is(err, ErrRunHadErrors) {
		app.handleExecutionError(err)
	}
	return err
}

// RunCleanup executes one expiry run, prints its report and sends the
// notifications. Recorded run errors yield ErrRunHadErrors.
func (app *Application) RunCleanup(ctx context.Context, sel backup.Selection) (*backup.RunReport, error) {
	report, err := app.runAndNotify(ctx, sel)
	if err != nil {
		return nil, err
	}

	app.display.PrintReport(report)

	if report.HasErrors() {
		return report, ErrRunHadErrors
	}
	return report, nil
}

func (app *Application) runAndNotify(ctx context.Context, sel backup.Selection) (*backup.RunReport, error) {
	if app.manager.IsDryRun() {
		app.logger.Info("Dry run, no artifact will be deleted")
	}

	report, err := app.manager.Run(ctx, sel)
	if err != nil {
		return nil, err
	}
	for _, msg := range app.storeErrors {
		report.AddError(msg)
	}

	if err := app.notifier.NotifyRun(ctx, report); err != nil {
		app.logger.WithField("error", logging.RedactSecrets(err.Error())).Error("Run report could not be delivered")
	}
	return report, nil
}

// Plan prints the retention decision for every artifact without deleting anything
func (app *Application) Plan(ctx context.Context, sel backup.Selection) error {
	results, planErrs := app.manager.Plan(ctx, sel)
	errs := append(append([]string(nil), app.storeErrors...), planErrs...)

	app.display.PrintPlans(results)
	for _, msg := range errs {
		app.display.Error(msg)
	}

	if len(errs) > 0 {
		return ErrRunHadErrors
	}
	return nil
}

// Verify decodes the newest artifact of each selected entity
func (app *Application) Verify(ctx context.Context, sel backup.Selection) error {
	outcomes := app.manager.Verify(ctx, sel)
	app.display.PrintVerify(outcomes)

	for _, outcome := range outcomes {
		if !outcome.OK() {
			return ErrRunHadErrors
		}
	}
	return nil
}

// Status prints store health and storage usage
func (app *Application) Status(ctx context.Context) error {
	health := app.monitor.MonitorStorageHealth(ctx)
	app.display.PrintHealth(health)

	usage, err := app.monitor.GetStorageUsage(ctx)
	if err != nil {
		return appErrors.WrapError(err, "Failed to collect storage usage")
	}
	app.display.PrintUsage(usage)

	for _, msg := range app.storeErrors {
		app.display.Error(msg)
	}
	if len(app.storeErrors) > 0 {
		return ErrRunHadErrors
	}
	for _, h := range health {
		if h.Status != "healthy" {
			return ErrRunHadErrors
		}
	}
	return nil
}

// Schedule runs expiry on the configured cron schedule until ctx is done.
// When metrics are enabled the Prometheus endpoint is served meanwhile.
func (app *Application) Schedule(ctx context.Context) error {
	scheduler, err := backup.NewScheduler(app.config.Schedule, func(runCtx context.Context) error {
		report, err := app.runAndNotify(runCtx, backup.Selection{})
		if err != nil {
			return err
		}
		if report.HasErrors() {
			return fmt.Errorf("%w: %s", ErrRunHadErrors, report.FirstError())
		}
		return nil
	}, app.logger)
	if err != nil {
		return err
	}

	var server *http.Server
	if app.config.Metrics.Enabled {
		server = app.newMetricsServer()
		go func() {
			app.logger.WithFields(map[string]interface{}{
				"listen": app.config.Metrics.Listen,
				"path":   app.config.Metrics.Path,
			}).Info("Serving metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.WithField("error", err.Error()).Error("Metrics server failed")
			}
		}()
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	app.display.Info(fmt.Sprintf("Expiry scheduled with '%s', next run at %s",
		app.config.Schedule.Cron, scheduler.NextRun().Format(time.RFC3339)))

	<-ctx.Done()
	scheduler.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.logger.WithField("error", err.Error()).Warn("Metrics server did not shut down cleanly")
		}
	}

	app.logger.Info("Expiry scheduler stopped")
	return nil
}

func (app *Application) newMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle(app.config.Metrics.Path, app.metrics.Handler())
	return &http.Server{
		Addr:              app.config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// handleExecutionError handles and logs execution errors
func (app *Application) handleExecutionError(err error) {
	appErr := classifyError(err)

	app.display.Error(appErrors.FormatUserError(appErr))

	app.logger.WithFields(map[string]interface{}{
		"error_type":  string(appErrors.GetErrorType(appErr)),
		"recoverable": appErrors.IsRecoverableError(appErr),
		"error":       logging.RedactSecrets(err.Error()),
	}).Error("Execution failed")

	app.provideTroubleshootingHints(appErr)
}

// classifyError maps domain errors to application errors
func classifyError(err error) *appErrors.AppError {
	var backupErr *backup.BackupError
	if errors.As(err, &backupErr) {
		switch backupErr.Type {
		case backup.BackupErrorTypeConfiguration, backup.BackupErrorTypeValidation:
			return appErrors.NewAppError(appErrors.ErrorTypeConfiguration, backupErr.Message, err)
		case backup.BackupErrorTypePermission:
			return appErrors.NewAppError(appErrors.ErrorTypePermission, backupErr.Message, err)
		}
	}
	return appErrors.NewErrorClassifier().ClassifyError(err)
}

// provideTroubleshootingHints provides helpful troubleshooting information
func (app *Application) provideTroubleshootingHints(appErr *appErrors.AppError) {
	var hints []string

	switch appErr.Type {
	case appErrors.ErrorTypeConfiguration, appErrors.ErrorTypeValidation:
		hints = []string{
			"Run 'backup-expiry config validate' to list all configuration problems",
			"Check the entity names and class of --class/--name",
		}
	case appErrors.ErrorTypeNotFound:
		hints = []string{
			"Verify config.dir.local points at the backup root",
			"Entity directories are expected at <root>/<class>/<entity>",
		}
	case appErrors.ErrorTypePermission:
		hints = []string{
			"Check that the user running the cleanup may delete files in the backup tree",
		}
	case appErrors.ErrorTypeConnection, appErrors.ErrorTypeStorage:
		hints = []string{
			"Run 'backup-expiry status' to check the health of every store",
			"Verify the cloud credentials and bucket names",
		}
	case appErrors.ErrorTypeTimeout:
		hints = []string{
			"Try increasing the --timeout value",
		}
	}

	if appErrors.IsRecoverableError(appErr) {
		hints = append(hints, "The failure may be temporary, the next scheduled run tries again")
	}

	if len(hints) == 0 {
		return
	}
	for _, hint := range hints {
		app.display.Info("Hint: " + hint)
	}
}

// GetLogger returns the application logger
func (app *Application) GetLogger() *logging.Logger {
	return app.logger
}

// GetConfig returns the loaded system configuration
func (app *Application) GetConfig() *backup.SystemConfig {
	return app.config
}

// GetDisplay returns the display service
func (app *Application) GetDisplay() display.DisplayService {
	return app.display
}

// Stores returns the artifact stores that could be created
func (app *Application) Stores() []backup.ArtifactStore {
	return app.stores
}

// StoreErrors returns why configured stores could not be created
func (app *Application) StoreErrors() []string {
	return app.storeErrors
}
