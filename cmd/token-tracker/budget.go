package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/token-tracker/tracker/pkg/budget"
)

func newBudgetCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Check recorded usage against token budgets",
	}

	var model string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget usage vs limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if !cfg.Budget.Enabled {
				fmt.Println("Budget enforcement is disabled.")
				return nil
			}

			tr, err := openTracker(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			statuses, err := budget.New(cfg.Budget.Policies, tr).Status(cmd.Context(), model)
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Println("No budget policies found for this model.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPERIOD\tMAX TOKENS\tUSED\tREMAINING")
			for _, s := range statuses {
				name := s.Model
				if name == "" {
					name = "(all)"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
					name, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining)
			}
			return w.Flush()
		},
	}
	statusCmd.Flags().StringVar(&model, "model", "", "filter by model")

	checkCmd := &cobra.Command{
		Use:   "check <model>",
		Short: "Exit non-zero if the model has exhausted a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if !cfg.Budget.Enabled {
				fmt.Println("Budget enforcement is disabled.")
				return nil
			}

			tr, err := openTracker(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			err = budget.New(cfg.Budget.Policies, tr).Check(cmd.Context(), args[0])
			if errors.Is(err, budget.ErrBudgetExceeded) {
				return err
			}
			if err != nil {
				return fmt.Errorf("check budget: %w", err)
			}
			fmt.Printf("%s is within budget.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(statusCmd, checkCmd)
	return cmd
}
