package resources

import (
	"github.com/JonMunkholm/eddb-ingest/internal/core"
	"github.com/JonMunkholm/eddb-ingest/internal/dump"
)

func init() {
	registerStations()
}

// Stations carry the most categorical fields; every one of them is stored
// lower-cased so lookups can match without case-folding at query time.
func registerStations() {
	core.Register(core.ResourceDefinition{
		Kind:   core.KindStation,
		File:   "stations.jsonl",
		Format: dump.FormatJSON,
		Table:  "eddb_stations",
		LowerFields: []string{
			"max_landing_pad_size",
			"government",
			"allegiance",
			"state",
			"type",
			"import_commodities",
			"export_commodities",
			"prohibited_commodities",
			"economies",
			"selling_ships",
			"settlement_size",
			"settlement_security",
		},
		RefColumns: []string{
			"system_id",
			"body_id",
			"controlling_minor_faction_id",
		},
	})
}
