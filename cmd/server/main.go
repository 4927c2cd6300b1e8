// Package main 是应用程序的入口点。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"om-intel-chat/internal/config"
	"om-intel-chat/pkg/log"
	"om-intel-chat/pkg/token"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "om-intel-chat",
		Short: "OM Intel chat and document extraction backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "path to config.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server, the Kafka consumer and the sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "process one batch of pending extraction jobs and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), configPath)
		},
	}

	var userID, email, tier string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("jwt.secret is not configured")
			}
			tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(userID, email, tier)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&userID, "user", "", "user id carried in the token")
	tokenCmd.Flags().StringVar(&email, "email", "", "email carried in the token")
	tokenCmd.Flags().StringVar(&tier, "tier", token.TierFree, "plan tier: free or pro")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd, sweepCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Errorf("启动失败: %v", err)
		os.Exit(1)
	}
}
