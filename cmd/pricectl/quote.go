package main

import (
	"github.com/spf13/cobra"

	"github.com/noah-isme/backoffice-pricing/internal/catalog"
	"github.com/noah-isme/backoffice-pricing/internal/invoice"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

// quoteFile is an invoice draft bundled with the catalog it is priced against.
type quoteFile struct {
	invoice.Draft
	Products []pricing.Product `json:"products"`
}

func newQuoteCmd(root *rootOptions) *cobra.Command {
	var (
		file   string
		locale string
		user   string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute line results and totals of an invoice draft",
		Example: `  pricectl quote --file draft.json
  pricectl quote --file draft.json --locale en --user u-42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in quoteFile
			if err := readJSONFile(file, &in); err != nil {
				return err
			}
			l := locale
			if l == "" {
				l = in.Locale
			}
			if l == "" {
				l = pricing.LocaleVI
			}
			result := invoice.Compute(in.Draft, catalog.NewSnapshot(in.Products...), user, l)
			root.logger.Debug().Int("lines", len(result.Lines)).Int("errors", len(result.Errors)).Msg("quote computed")
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "draft JSON file")
	cmd.Flags().StringVar(&locale, "locale", "", "locale for words and formatting (vi or en)")
	cmd.Flags().StringVar(&user, "user", "", "acting user id for revenue share checks")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
