package metadata

// --- SQLite Keys ---
// These keys are used for the 'key' column in the 'metadata' table.
const (
	// ScaleTopAverageKey stores the average subscriber count of the top percentile
	// of communities, the reference used to bucket a community's ranking boost.
	ScaleTopAverageKey = "ranking_scale_top_average"

	// ScaleRefreshedAtKey stores when ScaleTopAverageKey was last recomputed (RFC 3339).
	ScaleRefreshedAtKey = "ranking_scale_refreshed_at"
)
