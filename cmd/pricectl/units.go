package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

func newUnitsCmd(root *rootOptions) *cobra.Command {
	var (
		price    string
		baseUnit string
		factors  []string
		locale   string
		strict   bool
	)
	cmd := &cobra.Command{
		Use:     "units",
		Short:   "Derive alternate-unit prices from a base price",
		Example: `  pricectl units --price 120000 --base thung --factor lốc=12 --factor hộp=48`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := money.Parse(price)
			if err != nil {
				return fmt.Errorf("--price: %w", err)
			}
			rows, err := parseFactors(factors)
			if err != nil {
				return err
			}
			if strict {
				if err := pricing.ValidateConversions(baseUnit, rows); err != nil {
					return err
				}
			}
			prices := pricing.DeriveUnitPrices(base, baseUnit, rows)
			root.logger.Debug().Int("rows", len(rows)).Int("prices", len(prices)).Msg("unit prices derived")

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UNIT\tFACTOR\tPRICE")
			for _, p := range prices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.UnitID, p.Factor.String(), money.Format(p.Price, locale))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "base unit price")
	cmd.Flags().StringVar(&baseUnit, "base", "", "base unit id")
	cmd.Flags().StringArrayVar(&factors, "factor", nil, "conversion as unit=factor, repeatable")
	cmd.Flags().StringVar(&locale, "locale", pricing.LocaleVI, "locale for price formatting")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on invalid factors instead of skipping them")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func parseFactors(raw []string) ([]pricing.UnitConversion, error) {
	rows := make([]pricing.UnitConversion, 0, len(raw))
	for _, r := range raw {
		unit, factor, ok := strings.Cut(r, "=")
		unit = strings.TrimSpace(unit)
		if !ok || unit == "" {
			return nil, fmt.Errorf("--factor %q: expected unit=factor", r)
		}
		f, err := decimal.NewFromString(strings.TrimSpace(factor))
		if err != nil {
			return nil, fmt.Errorf("--factor %q: %w", r, err)
		}
		rows = append(rows, pricing.UnitConversion{UnitID: unit, Factor: f})
	}
	return rows, nil
}
