package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"carbonlock/marketplace-portal/internal/app"
	"carbonlock/marketplace-portal/internal/contracts"
	"carbonlock/marketplace-portal/internal/export"
)

// queryFlags are the filter, sort and paging flags shared by list and export.
type queryFlags struct {
	status    string
	sort      string
	direction string
	page      int
	pageSize  int
	all       bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "Only contracts whose status contains this text")
	cmd.Flags().StringVar(&f.sort, "sort", "", "Sort key: id, price_usd, amount_tonnes or status")
	cmd.Flags().StringVar(&f.direction, "direction", "", "Sort direction: asc or desc")
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "Contracts per page")
	cmd.Flags().BoolVar(&f.all, "all", false, "Ignore paging and include every matching contract")
}

func (f *queryFlags) query(c *cli) contracts.ViewQuery {
	q := c.portal.DefaultQuery()
	q.StatusFilter = f.status
	if f.sort != "" {
		q.SortKey = contracts.SortKey(f.sort)
	}
	if f.direction != "" {
		q.Direction = contracts.SortDirection(f.direction)
	}
	q.Page = f.page
	if f.pageSize > 0 {
		q.PageSize = f.pageSize
	}
	return q
}

func newListCmd(c *cli) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := flags.query(c)
			if flags.all {
				list, err := c.portal.Filtered(q)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, contractTable(contracts.Rows(list)))
				return nil
			}
			view, err := c.portal.View(q)
			if err != nil {
				return err
			}
			fmt.Fprint(c.out, renderView(view))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show a contract and its event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := c.portal.Details(commandContext(cmd), id)
			if err != nil {
				return err
			}
			fmt.Fprint(c.out, renderDetails(d))
			return nil
		},
	}
}

func newCreateCmd(c *cli) *cobra.Command {
	var (
		form      contracts.ContractForm
		amount    string
		price     string
		year      string
		expiresAt string
		expiresIn time.Duration
		buyer     string
		seller    string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contract; the seller defaults to the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiresAt == "" && expiresIn > 0 {
				expiresAt = strconv.FormatInt(time.Now().Add(expiresIn).Unix(), 10)
			}
			form = contracts.ContractForm{
				Buyer:        contracts.Field(buyer),
				Seller:       contracts.Field(seller),
				AmountTonnes: contracts.Field(amount),
				PriceUSD:     contracts.Field(price),
				DeliveryYear: contracts.Field(year),
				Expiration:   contracts.Field(expiresAt),
			}
			_, err := c.portal.CreateContract(commandContext(cmd), form)
			return err
		},
	}
	cmd.Flags().StringVar(&buyer, "buyer", "", "Buyer principal")
	cmd.Flags().StringVar(&seller, "seller", "", "Seller principal")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in tonnes")
	cmd.Flags().StringVar(&price, "price", "", "Price in USD per tonne")
	cmd.Flags().StringVar(&year, "year", "", "Delivery year")
	cmd.Flags().StringVar(&expiresAt, "expiration", "", "Expiration as unix seconds")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Expiration relative to now, e.g. 72h")
	return cmd
}

func newEditCmd(c *cli) *cobra.Command {
	var form contracts.EditForm
	var buyer, seller, amount, price, year string
	cmd := &cobra.Command{
		Use:   "edit [id]",
		Short: "Edit a contract",
		Long:  "Edit a contract. Every field is required; unset flags keep the current value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			current, err := c.portal.Contract(id)
			if err != nil {
				return err
			}
			form = contracts.EditForm{
				Buyer:        contracts.Field(orDefault(buyer, current.BuyerOrEmpty())),
				Seller:       contracts.Field(orDefault(seller, current.Seller)),
				AmountTonnes: contracts.Field(orDefault(amount, strconv.FormatFloat(current.AmountTonnes, 'f', -1, 64))),
				PriceUSD:     contracts.Field(orDefault(price, strconv.FormatFloat(current.PriceUSD, 'f', -1, 64))),
				DeliveryYear: contracts.Field(orDefault(year, strconv.Itoa(current.DeliveryYear))),
			}
			_, err = c.portal.UpdateContract(commandContext(cmd), id, form)
			return err
		},
	}
	cmd.Flags().StringVar(&buyer, "buyer", "", "Buyer principal")
	cmd.Flags().StringVar(&seller, "seller", "", "Seller principal")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in tonnes")
	cmd.Flags().StringVar(&price, "price", "", "Price in USD per tonne")
	cmd.Flags().StringVar(&year, "year", "", "Delivery year")
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	return idCommand("delete [id]", "Delete a contract", func(ctx context.Context, id uint64) error {
		return c.portal.DeleteContract(ctx, id)
	})
}

func newBuyCmd(c *cli) *cobra.Command {
	return idCommand("buy [id]", "Purchase a contract", func(ctx context.Context, id uint64) error {
		return c.portal.BuyContract(ctx, id)
	})
}

func newExpireCmd(c *cli) *cobra.Command {
	return idCommand("expire [id]", "Mark a contract expired", func(ctx context.Context, id uint64) error {
		return c.portal.ExpireContract(ctx, id)
	})
}

func newCreditsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "List carbon credits and their risk scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			credits, err := c.portal.Credits()
			if err != nil {
				return err
			}
			fmt.Fprint(c.out, renderCredits(credits))
			return nil
		},
	}
}

func newDashboardCmd(c *cli) *cobra.Command {
	var principal string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize the contracts of a participant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.portal.Dashboard(principal)
			if err != nil {
				return err
			}
			fmt.Fprint(c.out, renderDashboard(d))
			return nil
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "", "Participant principal (defaults to the caller)")
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	var (
		flags  queryFlags
		format string
		output string
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export contracts as CSV, Excel or PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			q := flags.query(c)
			var list []contracts.Contract
			if flags.all {
				list, err = c.portal.Filtered(q)
			} else {
				var view contracts.View
				view, err = c.portal.View(q)
				list = view.Items
			}
			if err != nil {
				return err
			}

			now := time.Now()
			data, err := export.RenderBytes(f, list, export.Options{GeneratedAt: now})
			if err != nil {
				return err
			}
			name := f.FileName(now)

			if upload {
				store, err := app.NewExportStore(commandContext(cmd), c.cfg.Export, c.logger)
				if err != nil {
					return err
				}
				if store == nil {
					return fmt.Errorf("export upload is not configured, set EXPORT_S3_BUCKET")
				}
				published, err := store.Publish(commandContext(cmd), name, f.ContentType(), data, now)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Uploaded %s\n%s\n", published.Key, published.URL)
				return nil
			}

			if output == "" {
				output = name
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintf(c.out, "Exported %d contracts to %s\n", len(list), output)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Export format: csv, xlsx or pdf")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (defaults to a timestamped name)")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload to the export bucket and print a download link")
	return cmd
}

func idCommand(use, short string, run func(context.Context, uint64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(commandContext(cmd), id)
		},
	}
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid contract id %q", s)
	}
	return id, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
