/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"os"

	"github.com/mautops/certificate-gin/internal/api"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "certificate-gin",
	Short: "Certificate template and issuance API server",
	Long: `Certificate Gin manages certificate templates and their pages,
issues PDF certificates to users, and serves verification and download endpoints.`,
	SilenceUsage: true,
}

// Execute 由 main 调用
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: search in current directory, ./config, or $HOME/.certificate-gin)")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadRuntime 读取 --config 指定的配置并按其创建日志
func loadRuntime(cmd *cobra.Command) (*config.Config, *logrus.Logger, string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := api.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, configPath, nil
}
