package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/wayfarer/internal/store"
)

func newPOICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poi",
		Short: "Manage the points-of-interest table",
	}

	cmd.AddCommand(newPOIImportCmd())
	cmd.AddCommand(newPOISearchCmd())
	return cmd
}

func withPOIStore(fn func(*store.POIStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.pois == nil {
		return errors.New("points of interest need store.driver: sqlite")
	}
	return fn(st.pois)
}

func newPOIImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import points of interest from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var pois []store.POI
			if err := json.Unmarshal(data, &pois); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			return withPOIStore(func(ps *store.POIStore) error {
				for i, poi := range pois {
					if poi.Name == "" || poi.City == "" {
						return fmt.Errorf("entry %d: poiName and cityName are required", i)
					}
					if _, err := ps.Upsert(cmd.Context(), poi); err != nil {
						return err
					}
				}
				total, err := ps.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d points of interest (%d stored)\n", len(pois), total)
				return nil
			})
		},
	}
}

func newPOISearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <city> [keywords]",
		Short: "List a city's top attractions, or search them by keyword",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPOIStore(func(ps *store.POIStore) error {
				var (
					pois []store.POI
					err  error
				)
				if len(args) == 2 {
					pois, err = ps.Search(cmd.Context(), args[0], args[1], limit)
				} else {
					pois, err = ps.ByCity(cmd.Context(), args[0], limit)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, p := range pois {
					fmt.Fprintf(out, "%3d  %s  (%.4f, %.4f)\n", p.RankInCity, p.Name, p.Latitude, p.Longitude)
				}
				if len(pois) == 0 {
					fmt.Fprintln(out, "no matches")
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}
