/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/certificate-gin/internal/api"
	"github.com/mautops/certificate-gin/internal/config"
	"github.com/mautops/certificate-gin/internal/container"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Certificate Gin API server.
The server will listen on the configured host and port,
and provide REST and RPC interfaces for certificate templates and issues.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置和日志
		cfg, logger, configPath, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		api.SetLogger(logger)
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		// 2. 初始化追踪
		if err := api.InitTracing(api.ServiceName, cfg.Tracing); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := api.ShutdownTracing(ctx); err != nil {
				logger.WithError(err).Warn("failed to shutdown tracing")
			}
		}()

		// 3. 初始化容器
		ctr, err := container.NewContainer(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 4. 配置热更新,目前只调整日志级别
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath)
			watcher.OnConfigChange(func(newCfg *config.Config) {
				logger.SetLevel(api.ParseLevel(newCfg.Log.Level))
				logger.WithField("level", newCfg.Log.Level).Info("config reloaded")
			})
			watcher.OnError(func(err error) {
				logger.WithError(err).Warn("failed to reload config")
			})
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("config watcher disabled")
			} else {
				defer watcher.Stop()
			}
		}

		// 5. 设置路由
		rc := &api.RouterConfig{
			Logger:     logger,
			DB:         ctr.DB(),
			Validator:  ctr.KeycloakValidator(),
			Hub:        ctr.Hub(),
			Server:     cfg.Server,
			CORS:       cfg.CORS,
			Tracing:    cfg.Tracing.Enabled(),
			Templates:  ctr.TemplateService(),
			Issues:     ctr.IssueService(),
			Statistics: ctr.StatisticsService(),
			Registry:   ctr.Registry(),
		}
		if fga := ctr.OpenFGAClient(); fga != nil {
			rc.FGA = fga
		}
		router := api.SetupRoutesWithConfig(rc)

		// 6. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			return fmt.Errorf("failed to start server: %w", err)
		}

		logger.Info("shutting down server")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		logger.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
