package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"duka-be/internal/order"
	"duka-be/internal/payment"
	"duka-be/internal/user"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

// outboxNotifier leaves status events unnotified. The server's relay picks
// them up and sends the emails.
type outboxNotifier struct{}

func (outboxNotifier) Notify(ctx context.Context, ev order.StatusEvent) error { return nil }

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Time out payment attempts whose callback never arrived",
		Long: `Fails every pending payment attempt older than --older-than and cancels
its order if it is still processing. Owner emails are sent by the running
server from the status event outbox.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}

			database, err := openDBFunc()
			if err != nil {
				return fmt.Errorf("failed to connect db: %w", err)
			}
			defer database.Close()

			orders := order.NewService(order.NewRepository(database), outboxNotifier{})
			sweeper := payment.NewSweeper(orders, payment.NewRepository(database), olderThan, nil)

			swept, err := sweeper.SweepOnce(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			if len(swept) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stale payment attempts")
				return nil
			}
			return renderAttempts(cmd.OutOrStdout(), swept)
		},
	}

	cmd.Flags().Duration("older-than", 10*time.Minute, "age after which a pending attempt is timed out")

	return cmd
}

func attemptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attempts [orderId]",
		Short: "List the payment attempts of an order, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDBFunc()
			if err != nil {
				return fmt.Errorf("failed to connect db: %w", err)
			}
			defer database.Close()

			attempts, err := payment.NewRepository(database).ListAttemptsByOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no payment attempts for order %s\n", args[0])
				return nil
			}
			return renderAttempts(cmd.OutOrStdout(), attempts)
		},
	}
}

func orphansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List gateway callbacks that matched no pending attempt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}

			database, err := openDBFunc()
			if err != nil {
				return fmt.Errorf("failed to connect db: %w", err)
			}
			defer database.Close()

			orphans, err := payment.NewRepository(database).ListOrphanCallbacks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no orphan callbacks")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("ID", "Checkout Request", "Merchant Request", "Result", "Reason", "Received")
			for _, o := range orphans {
				if err := table.Append([]string{
					strconv.FormatInt(o.ID, 10),
					o.CheckoutRequestID,
					o.MerchantRequestID,
					optInt(o.ResultCode),
					o.Reason,
					o.ReceivedAt.Format(timeLayout),
				}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}

	cmd.Flags().Int("limit", 50, "maximum number of callbacks to show")

	return cmd
}

func hashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an internal service key for INTERNAL_SERVICE_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := user.HashServiceKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			switch user.Role(role) {
			case user.RoleUser, user.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := user.GenerateJWT([]byte(os.Getenv("JWT_SECRET")), userID, role, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("user", "", "user id the token is issued for")
	cmd.Flags().String("role", string(user.RoleUser), "USER or ADMIN")
	cmd.Flags().String("email", "", "email claim")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func renderAttempts(w io.Writer, attempts []payment.Attempt) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Order", "Checkout Request", "Amount", "Outcome", "Receipt", "Result", "Created")
	for _, a := range attempts {
		if err := table.Append([]string{
			a.ID,
			a.OrderID,
			a.CheckoutRequestID,
			a.Amount.StringFixed(2),
			string(a.Outcome),
			optString(a.ReceiptNumber),
			optString(a.ResultDesc),
			a.CreatedAt.Format(timeLayout),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func optString(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func optInt(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}
