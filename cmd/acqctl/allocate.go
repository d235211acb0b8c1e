package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/service"

	"github.com/spf13/cobra"
)

func allocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocate [file]",
		Short: "Preview a split allocation from a JSON request (stdin when no file is given)",
		Long: `Reads {"amount": 86, "owner_id": "merchant", "split_rules": [...]} and prints
the resolved per-recipient amounts. Nothing is written anywhere.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			amount, _ := cmd.Flags().GetInt64("amount")
			owner, _ := cmd.Flags().GetString("owner")
			resp, err := runAllocate(in, amount, owner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().Int64P("amount", "a", 0, "Override the request amount (cents)")
	cmd.Flags().StringP("owner", "o", "", "Override the owner company id")

	return cmd
}

func runAllocate(r io.Reader, amount int64, owner string) (*domain.SplitSimulationResponse, error) {
	var req domain.SplitSimulationRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if amount > 0 {
		req.Amount = amount
	}
	if owner != "" {
		req.OwnerID = owner
	}
	return service.SimulateSplit(&req)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
