package warehouse

import "fmt"

// knownTables whitelists the identifiers LatestPerDate will interpolate into
// SQL text. Table, date, and batch column names in this package are always
// one of adflow's own constants, never caller-supplied strings, but the
// whitelist keeps that invariant enforced at the one place building raw SQL
// fragments rather than trusting every call site.
var knownTables = map[string]bool{
	TableQuickBICampaigns:    true,
	TableHourlySnapshots:     true,
	TableXMPCampaigns:        true,
	TableXMPMaterials:        true,
	TableXMPEditorStats:      true,
	TableXMPOptimizerStats:   true,
	TableXMPInternalCampaign: true,
	TableDramaMapping:        true,
}

// LatestPerDate returns the "latest batch per date" reducer as a SQL
// subquery text (spec.md §4.D): for each distinct dateCol, pick
// MAX(batchCol). The Query Layer joins every aggregation through this
// subquery to satisfy invariant 5 (no cross-batch double-counting).
func LatestPerDate(table, dateCol, batchCol string) (string, error) {
	if !knownTables[table] {
		return "", fmt.Errorf("unknown warehouse table %q", table)
	}
	return fmt.Sprintf(`(
		SELECT %[2]s AS %[2]s, MAX(%[3]s) AS %[3]s
		FROM %[1]s
		GROUP BY %[2]s
	)`, table, dateCol, batchCol), nil
}

// JoinLatestPerDate builds "table JOIN LatestPerDate(...) ON table.dateCol =
// latest.dateCol AND table.batchCol = latest.batchCol", the join every Query
// Layer query starts from.
func JoinLatestPerDate(table, alias, dateCol, batchCol string) (string, error) {
	sub, err := LatestPerDate(table, dateCol, batchCol)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`%[1]s %[4]s JOIN %[2]s latest ON %[4]s.%[3]s = latest.%[3]s AND %[4]s.%[5]s = latest.%[5]s`,
		table, sub, dateCol, alias, batchCol), nil
}
