package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gosight/gosight/carttracker/internal/dom"
)

var scanCmd = &cobra.Command{
	Use:   "scan <page.html>",
	Short: "List the add-to-cart buttons the tracker binds to",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	buttons := doc.QuerySelectorAll(cfg.Tracker.Selectors...)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Found %d add to cart buttons (%s)\n", len(buttons), strings.Join(cfg.Tracker.Selectors, ", "))
	for i, b := range buttons {
		fmt.Fprintf(out, "  %d. <%s%s> %s\n", i+1, b.Tag(), describeAttrs(b), b.Text())
	}
	return nil
}

func loadDocument(path string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	doc, err := dom.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

func describeAttrs(el *dom.Element) string {
	var b strings.Builder
	for _, key := range []string{"id", "name", "class"} {
		if v := el.Attr(key); v != "" {
			fmt.Fprintf(&b, " %s=%q", key, v)
		}
	}
	return b.String()
}
