package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/bankline/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the bankline tables",
		Long:  "Migrates users, chat sessions, messages, unanswered questions and worker logs. With --create the MySQL database is created first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, create)
		},
	}

	cmd.Flags().BoolVar(&create, "create", false, "create the MySQL database if it does not exist")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, create bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if create {
		if cfg.Database.Driver != "mysql" {
			return fmt.Errorf("--create is only supported for mysql, not %s", cfg.Database.Driver)
		}
		adminDB, err := db.ConnectAdmin(cfg.Database)
		if err != nil {
			return err
		}
		err = db.CreateDatabase(adminDB, cfg.Database.Name)
		db.Close(adminDB)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Name)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), cfg.Database.Driver)
	return nil
}
