package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewStepsCmd создаёт команду просмотра каталога шагов.
func NewStepsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List pipeline steps in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			steps, err := client.ListSteps()
			if err != nil {
				return err
			}

			headers := []string{"KEY", "STEP", "ENDPOINT", "KIND", "REQUIRES", "RESULT"}
			rows := make([][]string, len(steps))
			for i, s := range steps {
				result := "no"
				if s.HasResult {
					result = "yes"
				}
				rows[i] = []string{s.Key, s.Label, s.Endpoint, s.Kind, orDash(strings.Join(s.Requires, ",")), result}
			}

			out.Print(headers, rows, steps)
			return nil
		},
	}
}
