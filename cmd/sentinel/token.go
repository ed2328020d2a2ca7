package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelhq/sentinel/internal/auth"
)

var (
	tokenSubjectFlag string
	tokenTTLFlag     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a JWT for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := provideConfig()
		if err != nil {
			return err
		}
		signed, expiresAt, err := auth.GenerateToken(tokenSubjectFlag, cfg.Auth.JWTSecret, tokenTTLFlag)
		if err != nil {
			return err
		}
		fmt.Printf("%s\nexpires: %s\n", signed, expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubjectFlag, "subject", "operator", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTLFlag, "ttl", 24*time.Hour, "token lifetime")
}
