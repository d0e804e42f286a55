package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL     string
	concurrency int
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Concurrent smoke tests against a running storefront server",
	Long: `loadtest fires concurrent requests at the storefront HTTP API and checks
that the invariants still hold under contention:

  cart   many concurrent "add to cart" calls never push a line above stock
  login  repeated bad logins for one email are throttled (redis backend)`,
	SilenceUsage: true,
}

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Add one product concurrently and verify the stock clamp",
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, _ := cmd.Flags().GetString("slug")
		requests, _ := cmd.Flags().GetInt("requests")

		rep, err := runCart(cmd.Context(), newClient(), baseURL, slug, requests, concurrency)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), "cart", rep.Results)
		fmt.Fprintf(cmd.OutOrStdout(), "stock=%d final qty=%d\n", rep.Stock, rep.FinalQty)
		if rep.FinalQty > rep.Stock {
			return fmt.Errorf("cart quantity %d exceeds stock %d", rep.FinalQty, rep.Stock)
		}
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Send bad logins for one email and report how many were throttled",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		requests, _ := cmd.Flags().GetInt("requests")

		results := runLogin(cmd.Context(), newClient(), baseURL, email, requests, concurrency)
		printSummary(cmd.OutOrStdout(), "login", results)
		return nil
	},
}

func newClient() *http.Client { return &http.Client{Timeout: timeout} }

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base", "http://localhost:8080", "server base url")
	rootCmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "c", 50, "max in-flight requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")

	cartCmd.Flags().String("slug", "premium-stand-mixer", "product slug")
	cartCmd.Flags().Int("requests", 200, "number of add-to-cart requests")

	loginCmd.Flags().String("email", "loadtest@example.com", "login email")
	loginCmd.Flags().Int("requests", 50, "number of login attempts")

	rootCmd.AddCommand(cartCmd, loginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
