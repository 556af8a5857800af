// -- cmd/harvest.go --
package cmd

import (
	"context"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/instaflow/internal/auth"
	"github.com/xkilldash9x/instaflow/internal/extract"
	"github.com/xkilldash9x/instaflow/internal/observability"
	"github.com/xkilldash9x/instaflow/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// listFlags are the knobs shared by the followers and following
// commands.
type listFlags struct {
	maxDuration time.Duration
	parallel    int
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.maxDuration, "max-duration", 0, "soft deadline per profile (0 = unbounded)")
	cmd.Flags().IntVar(&f.parallel, "parallel", 1, "profiles harvested concurrently, one browser each")
}

// runList harvests one relationship list for every named profile and
// writes a profile-to-handles JSON object to stdout.
func runList(ctx context.Context, kind extract.ListKind, profiles []string, flags listFlags) error {
	creds, err := credentials()
	if err != nil {
		return err
	}

	parallel := flags.parallel
	if parallel < 1 {
		parallel = 1
	}
	if parallel > len(profiles) {
		parallel = len(profiles)
	}

	var (
		mu      sync.Mutex
		results = make(map[string][]string, len(profiles))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, profile := range profiles {
		g.Go(func() error {
			handles, err := harvestOne(gctx, creds, kind, profile, flags.maxDuration)
			if err != nil {
				return err
			}
			mu.Lock()
			results[profile] = handles
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return writeJSON(results)
}

// harvestOne runs a full session lifecycle for a single profile. Every
// worker logs in on its own browser; sessions are not shared across
// goroutines because extraction serializes on the page.
func harvestOne(ctx context.Context, creds auth.Credentials, kind extract.ListKind, profile string, maxDuration time.Duration) ([]string, error) {
	logger := observability.GetLogger().With(
		zap.String("profile", profile),
		zap.String("list", string(kind)))

	s, err := session.New(ctx, creds, session.Options{
		Config: appConfig,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logger.Warn("Failed to close session", zap.Error(cerr))
		}
	}()

	if kind == extract.Following {
		return s.Following(ctx, profile, maxDuration)
	}
	return s.Followers(ctx, profile, maxDuration)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFollowersCmd() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "followers [profiles...]",
		Short: "Harvest the follower handles of the given profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), extract.Followers, args, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func newFollowingCmd() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "following [profiles...]",
		Short: "Harvest the handles the given profiles follow",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), extract.Following, args, flags)
		},
	}
	flags.register(cmd)
	return cmd
}
