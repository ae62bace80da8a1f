package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewEventCmd создаёт группу команд для отправки событий.
func NewEventCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Submit VCS events",
	}

	cmd.AddCommand(newEventEmitCmd(clientFn, outputFn))

	return cmd
}

func newEventEmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var kind string
	var ref string
	var sha string

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Emit a push or pull_request event",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.SubmitEvent(EventRequest{
				Kind: kind,
				Ref:  ref,
				SHA:  sha,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Event delivered, %d run(s) created", len(resp.Runs)))

			headers := []string{"RUN_ID", "PIPELINE_ID", "VERSION", "STATUS"}
			rows := make([][]string, len(resp.Runs))
			for i, r := range resp.Runs {
				rows[i] = []string{r.ID, r.PipelineID, strconv.Itoa(r.Version), r.Status}
			}

			out.Print(headers, rows, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "push", "Event kind (push, pull_request)")
	cmd.Flags().StringVar(&ref, "ref", "", "Git ref, e.g. refs/heads/main (required)")
	cmd.Flags().StringVar(&sha, "sha", "", "Commit SHA")
	cmd.MarkFlagRequired("ref")

	return cmd
}
