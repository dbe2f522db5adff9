/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/certificate-gin/internal/database"
	"github.com/mautops/certificate-gin/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the certificate database schema",
	Long: `Create the template, page, issue, file, context, event and audit tables,
seed the system context and build the lookup indexes.
Running it again on an up-to-date database is a no-op.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("verify", false, "Check database health and the system context after migrating")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, _, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"driver": cfg.Database.Driver,
		"host":   cfg.Database.Host,
		"dbname": cfg.Database.DBName,
	}).Info("connecting to database")
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	started := time.Now()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.WithField("elapsed", time.Since(started).String()).Info("database migrations completed")

	if verify, _ := cmd.Flags().GetBool("verify"); verify {
		return verifySchema(cmd.Context(), db)
	}
	return nil
}

// verifySchema 迁移后数据库可用且系统上下文存在
func verifySchema(ctx context.Context, db *gorm.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := database.CheckHealth(ctx, db); err != nil {
		return fmt.Errorf("database is not healthy: %w", err)
	}
	var system model.ContextModel
	if err := db.WithContext(ctx).First(&system, model.SystemContextID).Error; err != nil {
		return fmt.Errorf("system context %d is missing: %w", model.SystemContextID, err)
	}
	return nil
}
