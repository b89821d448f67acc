package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClientFromFlags()
		if err != nil {
			return err
		}
		var resp map[string]interface{}
		if err := client.Do(cmd.Context(), http.MethodGet, "/health", nil, "", http.StatusOK, &resp); err != nil {
			return err
		}
		if IsJSONOutput() {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server %s: %v (store: %v)\n", GetServerURL(), resp["status"], resp["store"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
