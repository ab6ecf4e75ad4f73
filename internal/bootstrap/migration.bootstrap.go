package bootstrap

import (
	"database/sql"
	"fmt"
	"path"
	"strings"

	"github.com/krobus00/rebate-sync/internal/config"
	"github.com/krobus00/rebate-sync/internal/util"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

const migrationRootDir = "migration/postgresql"

func StartMigrate(cmd *cobra.Command, args []string) {
	databaseName, _ := cmd.Flags().GetString("databaseName")
	actionType, _ := cmd.Flags().GetString("action")
	migrationName, _ := cmd.Flags().GetString("name")
	version, _ := cmd.Flags().GetInt64("version")

	dbConfig, ok := config.Env.Database[databaseName]
	if !ok || strings.TrimSpace(dbConfig.DSN) == "" {
		util.ContinueOrFatal(fmt.Errorf("database %q has no dsn configured", databaseName))
	}

	db, err := sql.Open("postgres", dbConfig.DSN)
	util.ContinueOrFatal(err)
	defer db.Close()

	err = goose.SetDialect("postgres")
	util.ContinueOrFatal(err)

	err = runMigration(db, path.Join(migrationRootDir, databaseName), actionType, migrationName, version)
	util.ContinueOrFatal(err)
}

func runMigration(db *sql.DB, dir, action, name string, version int64) error {
	switch action {
	case "create":
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("migration name is required for create")
		}
		return goose.Create(db, dir, name, "sql")
	case "up":
		return goose.Up(db, dir, goose.WithAllowMissing())
	case "up-by-one":
		return goose.UpByOne(db, dir, goose.WithAllowMissing())
	case "up-to":
		return goose.UpTo(db, dir, version, goose.WithAllowMissing())
	case "down":
		return goose.Down(db, dir, goose.WithAllowMissing())
	case "down-to":
		return goose.DownTo(db, dir, version, goose.WithAllowMissing())
	case "status":
		return goose.Status(db, dir)
	case "reset":
		if err := goose.Reset(db, dir, goose.WithAllowMissing()); err != nil {
			return err
		}
		return goose.Up(db, dir, goose.WithAllowMissing())
	default:
		return fmt.Errorf("invalid migration action %q", action)
	}
}
