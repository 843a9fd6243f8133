package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosight/gosight/carttracker/internal/config"
)

var (
	configPath string
	verbose    bool

	// RootCmd is the root command for cartctl
	RootCmd = &cobra.Command{
		Use:   "cartctl",
		Short: "Inspect storefront pages and exercise the cart event tracker",
		Long: `cartctl loads a storefront page the way the cart tracker sees it.

It lists the add-to-cart buttons the tracker would bind to, and can simulate
clicks and a cart add so the resulting events reach the metrics endpoint.

Examples:
  # List tracked buttons on a saved product page
  cartctl scan product.html

  # Click every tracked button twice and report to a local collector
  cartctl simulate product.html --clicks 2 --endpoint http://localhost:8080/api/metrics/cart-events

  # Also perform a cart add against a storefront
  cartctl simulate product.html --cart-url https://shop.example.com/cart/add.js`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $CONFIG_PATH or config/carttracker.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log tracker activity")

	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(simulateCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

// loadConfig reads the config file. A missing default file falls back to
// built-in defaults; a missing explicit file is an error.
func loadConfig() (*config.Config, error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = "config/carttracker.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}
