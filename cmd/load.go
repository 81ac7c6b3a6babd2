package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Parses the static bundle into storage and builds its schedule graph",
	Long: "Downloads (or reads) the configured bundle, stores it in the configured " +
		"backend unless already there, and reports what the schedule graph holds",
	Args: cobra.NoArgs,
	RunE: load,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func load(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := loadManager(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		return err
	}

	static := manager.Static()
	g := manager.Graph()

	fmt.Printf("bundle %s\n", static.Metadata.URL)
	fmt.Printf("  hash      %s\n", static.Metadata.Hash)
	fmt.Printf("  timezone  %s\n", static.Metadata.Timezone)
	fmt.Printf("  calendar  %s - %s\n", static.Metadata.CalendarStartDate, static.Metadata.CalendarEndDate)
	fmt.Printf("  agencies  %d\n", len(g.Agencies()))
	fmt.Printf("  routes    %d\n", len(g.Routes()))
	fmt.Printf("  stops     %d\n", len(g.Stops()))
	fmt.Printf("  trips     %d\n", len(g.Trips()))
	fmt.Printf("  blocks    %d\n", len(g.Blocks()))
	fmt.Printf("  services  %d\n", len(manager.Calendar().ServiceIDs()))

	return nil
}
