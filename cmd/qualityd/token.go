package main

import (
	"fmt"
	"time"

	"telemed/internal/core/services"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the quality API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret (or TELEMED_JWT_SECRET) is required to mint tokens")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl, nil)
			token, err := auth.GenerateToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "caller the token identifies")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
