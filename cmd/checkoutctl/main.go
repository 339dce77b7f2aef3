// Command checkoutctl inspects and repairs checkout attempts recorded in the
// attempt journal: it resumes attempts whose return never arrived, retries
// failed finalizes and looks orders up.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"checkout-core/internal/apiclient"
	"checkout-core/internal/auth"
	"checkout-core/internal/cart"
	"checkout-core/internal/checkout"
	"checkout-core/internal/config"
	"checkout-core/internal/db"
	"checkout-core/internal/logger"
	"checkout-core/internal/order"
	"checkout-core/internal/payment"
	"checkout-core/internal/returnurl"
	"checkout-core/internal/shipping"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errNoJournal = errors.New("DB_URL is required to read the attempt journal")

// app holds what the commands act on. Tests fill it directly; the CLI builds
// it from the environment.
type app struct {
	journal checkout.Journal
	machine *checkout.Machine
	orders  order.Finalizer
	creds   auth.CredentialStore
	close   func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd(nil).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var token string

	root := &cobra.Command{
		Use:          "checkoutctl",
		Short:        "Inspect and repair checkout attempts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a != nil {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.AppEnv)
			if token == "" {
				token = os.Getenv("CHECKOUT_TOKEN")
			}
			built, err := buildApp(cfg, token)
			if err != nil {
				return err
			}
			a = built
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil && a.close != nil {
				a.close()
			}
			logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&token, "token", "", "shopper access token (default $CHECKOUT_TOKEN)")

	// Commands read a through this getter because the pre-run sets it.
	get := func() *app { return a }
	root.AddCommand(
		newStatusCmd(get),
		newResumeCmd(get),
		newRetryFinalizeCmd(get),
		newOrderCmd(get),
	)
	return root
}

// buildApp wires the same collaborators as the server. Without a token the
// identity falls back to DEFAULT_EMAIL.
func buildApp(cfg *config.Config, token string) (*app, error) {
	var creds auth.CredentialStore = auth.StaticStore{Email: cfg.DefaultEmail}
	if token != "" {
		creds = auth.NewJWTCredentialStore(token, cfg.JWTSecret)
	}

	bearer := apiclient.WithToken(auth.TokenFrom(creds))
	api := apiclient.New(cfg.APIURL, cfg.HTTPTimeout, bearer, apiclient.WithName("commerce"))
	gatewayAPI := apiclient.New(cfg.GatewayURL, cfg.HTTPTimeout, bearer, apiclient.WithName("gateway"))

	a := &app{
		orders: order.NewFinalizer(order.NewHTTPBackend(api)),
		creds:  creds,
	}

	if cfg.DBURL != "" {
		database, err := db.NewDatabase(cfg)
		if err != nil {
			return nil, err
		}
		a.journal = checkout.NewPostgresJournal(database)
		a.close = func() { database.Close() }
	}

	if a.journal != nil {
		a.machine = checkout.NewMachine(checkout.Deps{
			Store:       cart.NewStore(),
			Credentials: creds,
			Shipping:    shipping.NewCalculator(nil, 0),
			Gateway:     payment.NewGatewayClient(gatewayAPI),
			Finalizer:   a.orders,
			Journal:     a.journal,
		}, checkout.Config{
			ReturnURL:       cfg.ReturnURL,
			CloseURL:        cfg.CloseURL,
			GatewaySecret:   cfg.GatewaySecret,
			PollInterval:    cfg.PollInterval,
			PollMaxAttempts: cfg.PollMaxAttempts,
		})
	}
	return a, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(get func() *app) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "status [intent-id]",
		Short: "Show one attempt, or list attempts by status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if a.journal == nil {
				return errNoJournal
			}
			ctx := cmd.Context()

			if len(args) == 1 {
				rec, err := a.journal.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rec)
			}

			filter := make([]checkout.RecordStatus, 0, len(statuses))
			for _, s := range statuses {
				filter = append(filter, checkout.RecordStatus(strings.ToUpper(strings.TrimSpace(s))))
			}
			recs, err := a.journal.ListByStatus(ctx, filter...)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", rec.IntentID, rec.Status, rec.Email, rec.Amount, rec.OrderID)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", []string{
		string(checkout.RecordPending),
		string(checkout.RecordUnconfirmed),
		string(checkout.RecordFinalizeFailed),
	}, "statuses to list")
	return cmd
}

func newResumeCmd(get func() *app) *cobra.Command {
	var rcode string

	cmd := &cobra.Command{
		Use:   "resume <intent-id>",
		Short: "Poll the gateway for an attempt and finalize it when paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if a.machine == nil {
				return errNoJournal
			}
			ctx := cmd.Context()
			res, err := a.machine.Resume(ctx, returnurl.Outcome{IntentID: args[0], RCode: rcode})
			var ferr *checkout.FinalizeError
			if errors.As(err, &ferr) {
				logger.FromCtx(ctx).Error("paid but finalize failed; run retry-finalize",
					zap.String("intent_id", ferr.IntentID), zap.Error(ferr.Err))
			}
			if res != nil {
				if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&rcode, "rcode", "", "gateway result code, if known")
	return cmd
}

func newRetryFinalizeCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-finalize <intent-id>",
		Short: "Place the order for a paid attempt whose finalize failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if a.machine == nil {
				return errNoJournal
			}
			o, err := a.machine.RetryFinalize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		},
	}
}

func newOrderCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "order <order-id>",
		Short: "Look an order up for the current shopper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			creds, err := a.creds.Credentials(ctx)
			if err != nil {
				return err
			}
			o, err := a.orders.GetOrder(ctx, creds.Email, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		},
	}
}
