package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/bootstrap"
	"github.com/boddenberg/acquiring-core-go/internal/config"
	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/port"

	"github.com/spf13/cobra"
)

// fixture is reference data owned by other systems, loaded for local runs.
type fixture struct {
	Companies    []domain.Company     `json:"companies"`
	Affiliations []domain.Affiliation `json:"affiliations"`
	FeeRules     []domain.FeeRule     `json:"fee_rules"`
	Payables     []domain.Payable     `json:"payables"`
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Load companies, affiliations, fee rules and payables into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			repo, err := bootstrap.OpenRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			n, err := runSeed(ctx, f, repo)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d records into %s store\n", n, cfg.StoreDriver)
			return nil
		},
	}
}

func runSeed(ctx context.Context, r io.Reader, seeder port.Seeder) (int, error) {
	var fx fixture
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return 0, fmt.Errorf("decode fixture: %w", err)
	}

	n := 0
	for i := range fx.Companies {
		if err := seeder.SaveCompany(ctx, &fx.Companies[i]); err != nil {
			return n, fmt.Errorf("company %s: %w", fx.Companies[i].ID, err)
		}
		n++
	}
	for i := range fx.Affiliations {
		if err := seeder.SaveAffiliation(ctx, &fx.Affiliations[i]); err != nil {
			return n, fmt.Errorf("affiliation %s: %w", fx.Affiliations[i].ID, err)
		}
		n++
	}
	for i := range fx.FeeRules {
		if err := seeder.SaveFeeRule(ctx, &fx.FeeRules[i]); err != nil {
			return n, fmt.Errorf("fee rule %s: %w", fx.FeeRules[i].ID, err)
		}
		n++
	}
	for i := range fx.Payables {
		if err := seeder.SavePayable(ctx, &fx.Payables[i]); err != nil {
			return n, fmt.Errorf("payable %s: %w", fx.Payables[i].ID, err)
		}
		n++
	}
	return n, nil
}
