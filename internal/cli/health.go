package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHealthCmd создаёт команду проверки API.
func NewHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check API availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := clientFn().Health()
			if err != nil {
				return err
			}

			out := outputFn()
			out.Print([]string{"STATUS"}, [][]string{{status}}, map[string]string{"status": status})
			if status != "ok" {
				return fmt.Errorf("unexpected status %q", status)
			}
			return nil
		},
	}
}
