// -- cmd/count.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/instaflow/internal/extract"
	"github.com/xkilldash9x/instaflow/internal/observability"
	"github.com/xkilldash9x/instaflow/internal/session"
)

// countResult is the JSON row the count command emits per profile.
type countResult struct {
	Profile string `json:"profile"`
	List    string `json:"list"`
	Count   int    `json:"count"`
}

func newCountCmd() *cobra.Command {
	var list string
	cmd := &cobra.Command{
		Use:   "count [profiles...]",
		Short: "Read the displayed size of a relationship list without scrolling it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := extract.ListKind(list)
			if kind != extract.Followers && kind != extract.Following {
				return fmt.Errorf("unknown list %q: want %q or %q", list, extract.Followers, extract.Following)
			}

			creds, err := credentials()
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			s, err := session.New(cmd.Context(), creds, session.Options{
				Config: appConfig,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); cerr != nil {
					logger.Warn("Failed to close session", zap.Error(cerr))
				}
			}()

			results := make([]countResult, 0, len(args))
			for _, profile := range args {
				n, err := s.TotalCount(cmd.Context(), profile, kind)
				if err != nil {
					return fmt.Errorf("count %s of %q: %w", kind, profile, err)
				}
				results = append(results, countResult{Profile: profile, List: list, Count: n})
			}
			return writeJSON(results)
		},
	}
	cmd.Flags().StringVar(&list, "list", string(extract.Followers), "which list to size (followers or following)")
	return cmd
}
