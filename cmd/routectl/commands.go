package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"payment-routing-service/internal/config"
	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/models"
	"payment-routing-service/internal/services"
)

func validateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective routing configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, store := opts.load()
			result := manager.Validate()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration: %s\n", store.Path())
			if result.Valid {
				fmt.Fprintln(out, "Valid: yes")
				return nil
			}
			fmt.Fprintln(out, "Valid: no")
			for _, issue := range result.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("%d validation issue(s)", len(result.Issues))
		},
	}
}

func simulateCmd(opts *globalOptions) *cobra.Command {
	var (
		strategy  string
		merchant  string
		volume    string
		projected string
	)

	cmd := &cobra.Command{
		Use:   "simulate [amount]",
		Short: "Score the enabled providers for a transaction",
		Long: `Score the enabled providers for a transaction without touching
transaction history or health signals. Providers without health data
receive the neutral score.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}

			rc := models.RoutingContext{}
			if rc.MonthlyVolume, err = decimal.NewFromString(volume); err != nil {
				return fmt.Errorf("invalid --volume: %w", err)
			}
			if rc.ProjectedVolume, err = decimal.NewFromString(projected); err != nil {
				return fmt.Errorf("invalid --projected: %w", err)
			}

			manager, _ := opts.load()
			s := models.Strategy("")
			if strategy == "" {
				s = manager.Routing().DefaultStrategy
			} else if s, err = models.ParseStrategy(strategy); err != nil {
				return err
			}

			logger := logrus.New()
			logger.SetLevel(logrus.ErrorLevel)
			router := services.NewScoringRouter(manager, gateway.DefaultFeeModel(), logger)

			decision, err := router.Route(amount, merchant, s, rc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), decision)
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Routing strategy (default: configured strategy)")
	cmd.Flags().StringVarP(&merchant, "merchant", "m", "simulation", "Merchant ID recorded on the decision")
	cmd.Flags().StringVar(&volume, "volume", "0", "Current monthly volume")
	cmd.Flags().StringVar(&projected, "projected", "0", "Projected monthly volume")

	return cmd
}

func feeCmd() *cobra.Command {
	var volume string

	cmd := &cobra.Command{
		Use:   "fee [provider] [amount]",
		Short: "Estimate a provider's fee for a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, known := models.ParseProviderName(args[0])
			if !known {
				return fmt.Errorf("unknown provider %q", args[0])
			}
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			monthly, err := decimal.NewFromString(volume)
			if err != nil {
				return fmt.Errorf("invalid --volume: %w", err)
			}

			fees := gateway.DefaultFeeModel()
			fee, err := fees.FeeAtVolume(provider, amount, monthly)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s fee for %s at monthly volume %s: %s\n",
				gateway.DisplayName(provider), amount.StringFixed(2), monthly.StringFixed(2), gateway.RoundCurrency(fee).StringFixed(2))
			fmt.Fprintf(out, "Pricing: %s\n", fees.DescribeTier(provider))
			return nil
		},
	}

	cmd.Flags().StringVar(&volume, "volume", "0", "Merchant monthly volume")
	return cmd
}

func backupCmd(opts *globalOptions) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write the effective configuration to the config file",
		Long: `Write the effective configuration, including environment
overrides, to routing.<environment>.yaml. Credentials are omitted
while credential encryption is required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.ParseScope(scope)
			if err != nil {
				return err
			}

			manager, store := opts.load()
			if err := manager.Save(s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s configuration to %s\n", s, store.Path())
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(config.ScopeAll), "providers, routing, features, security or all")
	return cmd
}
