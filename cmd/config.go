package cmd

import (
	"errors"
	"fmt"
	"os"

	"backup-expiry/internal/backup"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const maskedSecret = "***"

// createConfigCommand creates the config command group
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Generate, validate and show the expiry configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented configuration file",
		Long: `Write a configuration template with every available option.

Without a path the template is printed, otherwise it is written to path.
An existing file is never overwritten.

Examples:
  # Print the template
  backup-expiry config init > backup-expiry.yaml

  # Write the template to the system location
  backup-expiry config init /etc/backup-expiry/backup-expiry.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: runConfigInit,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		Long: `Load the configuration file, apply environment overrides and report every
problem found. The exit status is non-zero when the configuration is invalid.`,
		Args: cobra.NoArgs,
		RunE: runConfigValidate,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, environment overrides and class
defaults have been applied. Credentials are masked.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	})

	return configCmd
}

// configPath returns the --config file or the file viper found
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return viper.ConfigFileUsed()
}

// runConfigInit executes the config init command
func runConfigInit(cmd *cobra.Command, args []string) error {
	data, err := backup.GenerateDefaultConfigYAML()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	path := args[0]
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}

// runConfigValidate executes the config validate command
func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath()
	cmd.SilenceUsage = true

	if _, err := backup.NewConfigLoader(path).LoadConfig(); err != nil {
		var validationErrs backup.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, ve := range validationErrs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", ve.Field, ve.Message)
			}
			return fmt.Errorf("configuration has %d problem(s)", len(validationErrs))
		}
		return err
	}

	if path == "" {
		path = "built-in defaults"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s is valid\n", path)
	return nil
}

// runConfigShow executes the config show command
func runConfigShow(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	config, err := backup.NewConfigLoader(configPath()).LoadConfig()
	if err != nil {
		return err
	}
	maskSecrets(config)

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// maskSecrets replaces credentials in a loaded configuration
func maskSecrets(config *backup.SystemConfig) {
	mask := func(s *string) {
		if *s != "" {
			*s = maskedSecret
		}
	}

	for i := range config.Storage {
		if s3 := config.Storage[i].S3; s3 != nil {
			mask(&s3.SecretKey)
		}
		if azure := config.Storage[i].Azure; azure != nil {
			mask(&azure.AccountKey)
		}
	}

	if telegram := config.General.Telegram; telegram != nil {
		mask(&telegram.Token)
	}
	notifications := &config.Notifications
	if notifications.Telegram != nil {
		mask(&notifications.Telegram.Token)
	}
	if notifications.Email != nil {
		mask(&notifications.Email.Password)
	}
	if notifications.Slack != nil {
		mask(&notifications.Slack.WebhookURL)
	}
}

func init() {
	rootCmd.AddCommand(createConfigCommand())
}
