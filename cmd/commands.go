package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"ticket-storefront/config"
)

// newInquiryCommand looks up a non-member order from the shell.
func newInquiryCommand(cfg *config.Config) *cobra.Command {
	var orderNo, email string

	command := &cobra.Command{
		Use:   "inquiry",
		Short: "Look up a non-member order by order number and email",
		RunE: func(command *cobra.Command, args []string) error {
			orderNo = strings.TrimSpace(orderNo)
			email = strings.TrimSpace(email)
			if orderNo == "" || email == "" {
				return errors.New("--order-no and --email are required")
			}

			client, err := newBackendClient(cfg)
			if err != nil {
				return err
			}

			ctx := command.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			order, err := client.For(nil).NonMemberInquiry(ctx, orderNo, email)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(command.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(order)
		},
	}

	command.Flags().StringVar(&orderNo, "order-no", "", "order number printed on the receipt")
	command.Flags().StringVar(&email, "email", "", "email used at checkout")
	return command
}
