package main

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/keepnote/internal/requests"
	"github.com/spf13/cobra"
)

var errRequestExists = errors.New("a pro request already exists for this account")

func newRequestsCommand(state *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Submit and review pro requests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "mine",
		Short: "List your pro requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mine, err := state.api.Requests().ListMine(cmd.Context())
			if err != nil {
				return err
			}
			printRequests(state.out, mine)
			return nil
		},
	})

	var (
		amount float64
		paid   bool
	)
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Request pro status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount <= 0 {
				return requests.ErrInvalidAmount
			}
			mine, err := state.api.Requests().ListMine(cmd.Context())
			if err != nil {
				return err
			}
			if !requests.CanSubmit(mine) {
				return errRequestExists
			}
			created, err := state.api.Requests().Submit(cmd.Context(), amount, paid)
			if err != nil {
				return err
			}
			fmt.Fprintf(state.out, "Submitted request %d.\n", created.ID)
			return nil
		},
	}
	submitCmd.Flags().Float64Var(&amount, "amount", 0, "Amount paid")
	submitCmd.Flags().BoolVar(&paid, "paid", false, "Mark the payment as completed")
	cmd.AddCommand(submitCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List requests awaiting approval (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			pending, err := state.api.Requests().ListPendingAll(cmd.Context())
			if err != nil {
				return err
			}
			printRequests(state.out, pending)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pro request (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := state.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			approved, err := state.api.Requests().Approve(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(state.out, "Approved request %d for %s.\n", approved.ID, approved.Username)
			return nil
		},
	})

	return cmd
}
