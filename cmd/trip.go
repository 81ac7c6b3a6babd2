package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

var tripCmd = &cobra.Command{
	Use:   "trip <agency_id> <trip_id>",
	Short: "Shows a trip's stop times and the block it belongs to",
	Args:  cobra.ExactArgs(2),
	RunE:  trip,
}

func init() {
	rootCmd.AddCommand(tripCmd)
}

func formatSeconds(s int) string {
	sign := ""
	if s < 0 {
		sign = "-"
		s = -s
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, s/3600, (s/60)%60, s%60)
}

func trip(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := loadManager(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	g := manager.Graph()

	t, found := g.Trip(model.NewID(args[0], args[1]))
	if !found {
		return fmt.Errorf("no trip %s_%s", args[0], args[1])
	}

	fmt.Printf("trip %s route %s direction %s service %s\n", t.ID, t.RouteID, t.DirectionID, t.ServiceID)
	for _, st := range t.StopTimes {
		name := ""
		if stop, found := g.Stop(st.StopID); found {
			name = stop.Name
		}
		fmt.Printf("  %s %s %s %s\n", formatSeconds(st.Arrival), formatSeconds(st.Departure), st.StopID, name)
	}

	indices := g.IndicesForBlock(t.BlockID)
	fmt.Printf(
		"indices: %d trip, %d layover, %d frequency, %d sequence\n",
		len(indices.Trips), len(indices.Layovers), len(indices.Frequencies), len(indices.Sequences),
	)

	block, found := g.Block(t.BlockID)
	if !found {
		return nil
	}
	for _, config := range block.Configurations {
		if config.TripIndex(t.ID) < 0 {
			continue
		}
		fmt.Printf("block %s (%s)\n", block.ID, config.ServiceIDs.Key())
		for _, bt := range config.Trips {
			marker := " "
			if bt.TripID == t.ID {
				marker = "*"
			}
			fmt.Printf(" %s %s %s-%s %.0fm\n", marker, bt.TripID, formatSeconds(bt.FirstDeparture), formatSeconds(bt.LastArrival), bt.TripDistance)
		}
	}

	return nil
}
