package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/jobfeed/internal/adapter/source"
	"github.com/fairyhunter13/jobfeed/internal/app"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

var (
	includePortals []string
	excludePortals []string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch jobs from portals",
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringSliceVarP(&includePortals, "include-portals", "I", nil,
		"Portals to include for fetching jobs. By default, all portals are included.")
	fetchCmd.Flags().StringSliceVarP(&excludePortals, "exclude-portals", "E", nil,
		"Portals to ignore when fetching jobs.")
	fetchCmd.MarkFlagsMutuallyExclusive("include-portals", "exclude-portals")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	targets, err := resolvePortals(includePortals, excludePortals)
	if err != nil {
		return err
	}

	a, err := app.Bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Ingest.Run(cmd.Context(), targets)
}

// resolvePortals turns the flag values into the fetch list. Empty means every
// registered source; exclusions subtract from the full set; unknown names are
// usage errors.
func resolvePortals(include, exclude []string) ([]string, error) {
	known := make(map[string]struct{})
	for _, n := range source.Names() {
		known[n] = struct{}{}
	}

	normalize := func(raw []string) ([]string, error) {
		names := make([]string, 0, len(raw))
		for _, r := range raw {
			name := strings.ToLower(strings.TrimSpace(r))
			if _, ok := known[name]; !ok {
				return nil, fmt.Errorf("%w: unknown portal %q", domain.ErrConfiguration, r)
			}
			names = append(names, name)
		}
		return names, nil
	}

	if len(include) > 0 {
		return normalize(include)
	}
	if len(exclude) == 0 {
		return nil, nil
	}

	dropped, err := normalize(exclude)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]struct{}, len(dropped))
	for _, n := range dropped {
		drop[n] = struct{}{}
	}
	targets := make([]string, 0, len(known))
	for _, n := range source.Names() {
		if _, skip := drop[n]; !skip {
			targets = append(targets, n)
		}
	}
	return targets, nil
}
