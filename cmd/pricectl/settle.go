package main

import (
	"github.com/spf13/cobra"

	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

type settleFile struct {
	Items         []pricing.PreviewItem `json:"items"`
	ContractValue *money.Money          `json:"contractValue,omitempty"`
	DepositAmount money.Money           `json:"depositAmount"`
}

type settleOutput struct {
	Summary pricing.LiquidationSummary `json:"summary"`
	Errors  map[string]string          `json:"errors,omitempty"`
}

func newSettleCmd(root *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "settle",
		Short:   "Compute the liquidation settlement of a contract",
		Example: `  pricectl settle --file contract.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in settleFile
			if err := readJSONFile(file, &in); err != nil {
				return err
			}
			out := settleOutput{Summary: pricing.Settle(pricing.SettlementInput{
				Items:         in.Items,
				ContractValue: in.ContractValue,
				DepositAmount: in.DepositAmount,
			})}
			if err := pricing.ValidateLiquidation(in.Items); err != nil {
				out.Errors = pricing.FieldErrors(err)
			}
			root.logger.Debug().Str("direction", string(out.Summary.Direction)).Msg("settlement computed")
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "contract JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
