package main

import (
	"fmt"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/config"
	"github.com/boddenberg/acquiring-core-go/internal/service"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [companyId]",
		Short: "Mint a service token for a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.JWTSecret
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			internal, _ := cmd.Flags().GetBool("internal")

			scope := ""
			if internal {
				scope = service.ScopeInternal
			}
			raw, err := service.NewTokenService(secret, ttl).Issue(args[0], scope)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	cmd.Flags().String("secret", "", "Signing secret (defaults to JWT_SECRET)")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	cmd.Flags().Bool("internal", false, "Grant cross-company access")

	return cmd
}
