package resources

import (
	"github.com/JonMunkholm/eddb-ingest/internal/core"
	"github.com/JonMunkholm/eddb-ingest/internal/dump"
)

func init() {
	registerBodies()
	registerCommodities()
	registerFactions()
}

func registerBodies() {
	core.Register(core.ResourceDefinition{
		Kind:        core.KindBody,
		File:        "bodies_recently.jsonl",
		Format:      dump.FormatJSON,
		Table:       "eddb_bodies",
		LowerFields: []string{"type_name", "spectral_class", "terraforming_state_name", "volcanism_type_name"},
		RefColumns:  []string{"system_id"},
	})
}

func registerCommodities() {
	core.Register(core.ResourceDefinition{
		Kind:   core.KindCommodity,
		File:   "commodities.json",
		Format: dump.FormatJSON,
		Table:  "eddb_commodities",
	})
}

func registerFactions() {
	core.Register(core.ResourceDefinition{
		Kind:        core.KindFaction,
		File:        "factions.jsonl",
		Format:      dump.FormatJSON,
		Table:       "eddb_factions",
		LowerFields: []string{"government", "allegiance", "state"},
		RefColumns:  []string{"home_system_id"},
	})
}
