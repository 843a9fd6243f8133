package cli

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gosight/gosight/carttracker/internal/dom"
	"github.com/gosight/gosight/carttracker/internal/tracker"
)

var (
	simClicks   int
	simCartURL  string
	simCartBody string
	simEndpoint string
	simOrigin   string

	simulateCmd = &cobra.Command{
		Use:   "simulate <page.html>",
		Short: "Load a page, click tracked buttons and report the events",
		Long: `Load a page and run the tracker on it.

The tracker is created when the document becomes ready. Every tracked button
is clicked --clicks times; with --cart-url one cart add is sent through the
tracked client. The command waits for all reports before exiting. Report
failures are logged, never returned.`,
		Args: cobra.ExactArgs(1),
		RunE: runSimulate,
	}
)

func init() {
	simulateCmd.Flags().IntVar(&simClicks, "clicks", 1, "clicks per tracked button")
	simulateCmd.Flags().StringVar(&simCartURL, "cart-url", "", "cart add URL to call through the tracked client")
	simulateCmd.Flags().StringVar(&simCartBody, "cart-body", `{"quantity":1}`, "JSON body for the cart add")
	simulateCmd.Flags().StringVar(&simEndpoint, "endpoint", "", "metrics endpoint (overrides config)")
	simulateCmd.Flags().StringVar(&simOrigin, "origin", "", "page origin used to resolve a relative endpoint (overrides config)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if simEndpoint != "" {
		cfg.Tracker.Endpoint = simEndpoint
	}
	if simOrigin != "" {
		cfg.Tracker.Origin = simOrigin
	}

	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	tr := tracker.New(cfg.Tracker.Endpoint, http.DefaultTransport, tracker.FromConfig(cfg.Tracker)...)
	tr.Attach(doc)
	doc.Ready()

	out := cmd.OutOrStdout()
	clicks := simulateClicks(doc, cfg.Tracker.Selectors, simClicks)
	fmt.Fprintf(out, "Dispatched %d clicks\n", clicks)

	if simCartURL != "" {
		status, err := cartAdd(tr.Client(), simCartURL, simCartBody)
		if err != nil {
			fmt.Fprintf(out, "Cart add failed: %v\n", err)
		} else {
			fmt.Fprintf(out, "Cart add returned %d\n", status)
		}
	}

	tr.Wait()
	fmt.Fprintf(out, "Reports sent to %s\n", tr.Reporter().Endpoint())
	return nil
}

func simulateClicks(doc *dom.Document, selectors []string, n int) int {
	total := 0
	for _, b := range doc.QuerySelectorAll(selectors...) {
		for i := 0; i < n; i++ {
			b.Click()
			total++
		}
	}
	return total
}

func cartAdd(client *http.Client, url, body string) (int, error) {
	resp, err := client.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
