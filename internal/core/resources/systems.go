package resources

import (
	"github.com/JonMunkholm/eddb-ingest/internal/core"
	"github.com/JonMunkholm/eddb-ingest/internal/dump"
)

func init() {
	registerPopulatedSystems()
	registerSystems()
}

var systemLowerFields = []string{
	"government",
	"allegiance",
	"state",
	"security",
	"primary_economy",
	"power",
	"power_state",
	"reserve_type",
}

func registerPopulatedSystems() {
	core.Register(core.ResourceDefinition{
		Kind:        core.KindPopulatedSystem,
		File:        "systems_populated.jsonl",
		Format:      dump.FormatJSON,
		Table:       "eddb_populated_systems",
		LowerFields: systemLowerFields,
	})
}

// The full system list is only published as CSV.
func registerSystems() {
	core.Register(core.ResourceDefinition{
		Kind:        core.KindSystem,
		File:        "systems_recently.csv",
		Format:      dump.FormatCSV,
		Table:       "eddb_systems",
		LowerFields: systemLowerFields,
	})
}
