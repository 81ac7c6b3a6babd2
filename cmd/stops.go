package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

var stopsCmd = &cobra.Command{
	Use:   "stops [min_lat min_lon max_lat max_lon]",
	Short: "Lists stops, optionally within a bounding box",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 4 {
			return fmt.Errorf("expected no arguments or a bounding box")
		}
		return nil
	},
	RunE: stops,
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	bbox := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("invalid coordinate '%s': %w", arg, err)
		}
		bbox[i] = v
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := loadManager(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		return err
	}

	var stops []*model.StopEntry
	if len(bbox) == 4 {
		stops = manager.Graph().StopsByLocation(bbox[0], bbox[1], bbox[2], bbox[3])
	} else {
		stops = manager.Graph().Stops()
	}

	sort.Slice(stops, func(i, j int) bool {
		return stops[i].Name < stops[j].Name
	})

	for _, stop := range stops {
		fmt.Printf("%s: %s (%.6f, %.6f)\n", stop.ID, stop.Name, stop.Lat, stop.Lon)
	}

	return nil
}
