package cmd

import (
	"context"
	"errors"

	"backup-expiry/internal/application"
	"backup-expiry/internal/backup"

	"github.com/spf13/cobra"
)

var (
	// Selection flags shared by cleanup, plan and verify
	selectClass  string
	selectName   string
	selectImage  bool
	selectManual bool
)

// cleanupCmd runs expiry immediately
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Expire artifacts now",
	Long: `Run expiry immediately instead of waiting for the scheduled weekday.

Selecting a class, an entity or the image cleanup makes the run manual: the
class weekday list and the entity enabled flag are ignored for the selection.
Without a selection every class due today is cleaned, unless --manual is given.

Examples:
  # Clean every entity of every class regardless of the weekday
  backup-expiry cleanup --manual

  # Clean all database entities
  backup-expiry cleanup --class=db

  # Clean one entity and show each deleted artifact
  backup-expiry cleanup --class=app --name=dsmr --verbose

  # Remove unlisted image archives only
  backup-expiry cleanup --image`,
	RunE: runCleanup,
}

// planCmd prints the retention decisions
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the retention decision for every artifact",
	Long: `Show which artifacts are kept and which would expire, and why.

Every artifact is listed with the tier that keeps it (day, month, year or
year guard) or as expired. Artifacts whose names do not follow the naming
convention are listed as invalid and are never deleted. Nothing is deleted.

Examples:
  # Plan every configured entity
  backup-expiry plan

  # Plan one entity in compact form
  backup-expiry plan --class=db --name=mariadb --format=compact`,
	RunE: runPlan,
}

// verifyCmd decodes the newest artifacts
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the newest artifact of each entity can be decoded",
	Long: `Decompress and read the newest artifact of each selected entity.

gzip, LZ4 and zstd archives are supported. The tar stream inside the archive
is walked to its end so truncated uploads are detected.

Examples:
  # Verify every entity
  backup-expiry verify

  # Verify all app entities as JSON
  backup-expiry verify --class=app --format=json`,
	RunE: runVerify,
}

// statusCmd reports store health and usage
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store health and storage usage",
	Long: `Check that every artifact store is reachable and report how much space the
backups of each entity use, including how much is held by expired artifacts.

Examples:
  # Status of all stores
  backup-expiry status

  # Status for monitoring scripts
  backup-expiry status --format=compact --no-color`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)

	for _, cmd := range []*cobra.Command{cleanupCmd, planCmd, verifyCmd} {
		cmd.Flags().StringVar(&selectClass, "class", "", "entity class (app, db, other)")
		cmd.Flags().StringVar(&selectName, "name", "", "entity name, requires --class")
	}
	cleanupCmd.Flags().BoolVar(&selectImage, "image", false, "clean image archives")
	cleanupCmd.Flags().BoolVar(&selectManual, "manual", false, "ignore the class weekday lists")
}

// parseSelection converts the selection flags to a backup.Selection.
// Plan and verify always look at every selected entity, so they pass manual.
func parseSelection(manual bool) (backup.Selection, error) {
	sel := backup.Selection{
		Name:  selectName,
		Image: selectImage,
	}

	if selectName != "" && selectClass == "" {
		return sel, errors.New("--name requires --class")
	}
	if selectClass != "" {
		class, err := backup.ParseEntityClass(selectClass)
		if err != nil {
			return sel, err
		}
		sel.Class = class
	}

	sel.Manual = manual || selectManual || !sel.IsEmpty()
	return sel, nil
}

// runCleanup executes the cleanup command
func runCleanup(cmd *cobra.Command, args []string) error {
	sel, err := parseSelection(false)
	if err != nil {
		return err
	}

	return runWithApplication(cmd, func(app *application.Application) error {
		return app.Execute(func(ctx context.Context) error {
			_, err := app.RunCleanup(ctx, sel)
			return err
		})
	})
}

// runPlan executes the plan command
func runPlan(cmd *cobra.Command, args []string) error {
	sel, err := parseSelection(true)
	if err != nil {
		return err
	}

	return runWithApplication(cmd, func(app *application.Application) error {
		return app.Execute(func(ctx context.Context) error {
			return app.Plan(ctx, sel)
		})
	})
}

// runVerify executes the verify command
func runVerify(cmd *cobra.Command, args []string) error {
	sel, err := parseSelection(true)
	if err != nil {
		return err
	}

	return runWithApplication(cmd, func(app *application.Application) error {
		return app.Execute(func(ctx context.Context) error {
			return app.Verify(ctx, sel)
		})
	})
}

// runStatus executes the status command
func runStatus(cmd *cobra.Command, args []string) error {
	return runWithApplication(cmd, func(app *application.Application) error {
		return app.Execute(app.Status)
	})
}
