package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"backup-expiry/internal/application"
	"backup-expiry/internal/backup"
	"backup-expiry/internal/display"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// CLI flag variables
var (
	// Operation flags
	dryRun    bool
	verbose   bool
	quiet     bool
	timeout   time.Duration
	logFile   string
	logFormat string

	// Display flags
	noColor       bool
	theme         string
	outputFormat  string
	noIcons       bool
	tableStyle    string
	maxTableWidth int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "backup-expiry",
	Short: "Expire old backup artifacts using day, month and year retention tiers",
	Long: `Backup Expiry removes outdated backup artifacts from a backup tree laid out
as <root>/<class>/<entity>/<name>.<YYYYMMDD>-<ISO weekday>.<suffix>.

For every configured entity the newest "day" artifacts are kept, followed by
"month" first-Sunday-of-the-month artifacts and "year" first-Sunday-of-December
artifacts. Everything older is deleted. Entities with day set to 0 are never
expired. Local directories, S3, Google Cloud Storage and Azure Blob Storage
can be cleaned in the same run.

Without a subcommand a scheduled run is executed: only the classes whose
weekday list contains today are cleaned.

Examples:
  # Scheduled run with the configuration in /etc/backup-expiry
  backup-expiry

  # Show what would be deleted without touching anything
  backup-expiry --config=backup-expiry.yaml --dry-run

  # Clean a single entity right now
  backup-expiry cleanup --class=app --name=dsmr

  # Print the retention decision for every artifact as JSON
  backup-expiry plan --format=json

  # Run as a daemon on the configured cron schedule
  backup-expiry schedule`,
	RunE: runScheduledCleanup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is backup-expiry.yaml in /etc/backup-expiry, $HOME or .)")

	// Operation flags
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted without deleting anything")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "abort the run after this duration (0 disables the limit)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotated by size")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Display flags
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "dark", "color theme (dark, light, plain)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "output format (table, json, yaml, compact)")
	rootCmd.PersistentFlags().BoolVar(&noIcons, "no-icons", false, "disable Unicode icons")
	rootCmd.PersistentFlags().StringVar(&tableStyle, "table-style", "default", "table style (default, rounded, minimal)")
	rootCmd.PersistentFlags().IntVar(&maxTableWidth, "max-table-width", 160, "maximum table width (40-300)")

	bindFlags()

	rootCmd.SetUsageTemplate(getUsageTemplate())
}

// bindFlags binds the persistent flags to viper keys
func bindFlags() {
	flags := rootCmd.PersistentFlags()

	viper.BindPFlag("dry_run", flags.Lookup("dry-run"))
	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("quiet", flags.Lookup("quiet"))
	viper.BindPFlag("timeout", flags.Lookup("timeout"))
	viper.BindPFlag("log_file", flags.Lookup("log-file"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))

	// Bind display flags (only non-inverted ones)
	viper.BindPFlag("display.theme", flags.Lookup("theme"))
	viper.BindPFlag("display.output_format", flags.Lookup("format"))
	viper.BindPFlag("display.table_style", flags.Lookup("table-style"))
	viper.BindPFlag("display.max_table_width", flags.Lookup("max-table-width"))
}

// runScheduledCleanup runs the classes that are due today
func runScheduledCleanup(cmd *cobra.Command, args []string) error {
	return runWithApplication(cmd, func(app *application.Application) error {
		return app.Execute(func(ctx context.Context) error {
			_, err := app.RunCleanup(ctx, backup.Selection{})
			return err
		})
	})
}

// runWithApplication builds the options, creates the application and hands
// it to run. Usage is only printed for flag errors.
func runWithApplication(cmd *cobra.Command, run func(app *application.Application) error) error {
	options, err := buildOptions(cmd)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	cmd.SilenceUsage = true

	app, err := application.NewApplication(*options)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return run(app)
}

var validThemes = []string{"dark", "light", "plain"}

// buildOptions builds the application options from CLI flags, environment
// variables and the display section of the config file
func buildOptions(cmd *cobra.Command) (*application.Config, error) {
	options := &application.Config{
		ConfigFile: cfgFile,
		DryRun:     viper.GetBool("dry_run"),
		Verbose:    viper.GetBool("verbose"),
		Quiet:      viper.GetBool("quiet"),
		LogFile:    viper.GetString("log_file"),
		LogFormat:  viper.GetString("log_format"),
		Timeout:    viper.GetDuration("timeout"),
	}
	if options.ConfigFile == "" {
		options.ConfigFile = viper.ConfigFileUsed()
	}

	if options.Verbose && options.Quiet {
		return nil, errors.New("--verbose and --quiet flags are mutually exclusive")
	}
	if options.Timeout < 0 {
		return nil, errors.New("timeout cannot be negative")
	}
	switch options.LogFormat {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format '%s', must be one of: text, json", options.LogFormat)
	}

	displayConfig := display.DefaultDisplayConfig()
	displayConfig.Theme = viper.GetString("display.theme")
	displayConfig.OutputFormat = viper.GetString("display.output_format")
	displayConfig.TableStyle = viper.GetString("display.table_style")
	displayConfig.MaxTableWidth = viper.GetInt("display.max_table_width")
	displayConfig.ColorEnabled = !noColor && !viper.GetBool("no_color")
	displayConfig.UseIcons = !noIcons && !viper.GetBool("no_icons")
	displayConfig.VerboseMode = options.Verbose
	displayConfig.QuietMode = options.Quiet
	displayConfig.Writer = cmd.OutOrStdout()
	displayConfig.SetDefaults()

	if !contains(validThemes, displayConfig.Theme) {
		return nil, fmt.Errorf("invalid theme '%s', must be one of: %s", displayConfig.Theme, strings.Join(validThemes, ", "))
	}
	if err := displayConfig.Validate(); err != nil {
		return nil, err
	}
	options.Display = displayConfig

	return options, nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("/etc/backup-expiry")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("backup-expiry")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("BACKUP_EXPIRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in. A missing --config file is
	// reported by the expiry config loader.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// getUsageTemplate returns a custom usage template with examples
func getUsageTemplate() string {
	return `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}

Configuration File:
  Generate a commented configuration file with: backup-expiry config init

Output Formats:
  table          - Formatted tables with colors and styling (default)
  json           - Machine-readable JSON output
  yaml           - Human-readable YAML output
  compact        - One record per line for scripting

Environment Variables:
  Flags can be set via environment variables with the prefix BACKUP_EXPIRY_
  Examples:
    BACKUP_EXPIRY_DRY_RUN=true
    BACKUP_EXPIRY_DISPLAY_OUTPUT_FORMAT=json
    BACKUP_EXPIRY_NO_COLOR=1
    BACKUP_EXPIRY_NO_ICONS=1

  Expiry settings read from the environment:
    BACKUP_EXPIRY_ENABLED, BACKUP_LOCAL_DIR, BACKUP_RETRY, BACKUP_IMAGE_CLEANUP,
    BACKUP_SCHEDULE_CRON, BACKUP_METRICS_LISTEN, BACKUP_S3_ACCESS_KEY,
    BACKUP_S3_SECRET_KEY, BACKUP_AZURE_ACCOUNT_KEY, BACKUP_GCS_CREDENTIALS_PATH
`
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for backup-expiry",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backup-expiry version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

func init() {
	rootCmd.AddCommand(createVersionCommand())
}
