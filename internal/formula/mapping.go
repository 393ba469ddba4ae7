package formula

import (
	"order-reconciliation-service/internal/models"
)

// Resolver translates spreadsheet-style report column names into physical
// field names for one data source. Pure lookup, loaded once per
// formula-compilation pass.
type Resolver struct {
	source   models.DataSource
	mappings map[string]string
}

// NewResolver builds a resolver from field mapping rows, keeping only the
// rows belonging to the given source.
func NewResolver(source models.DataSource, rows []models.FieldMapping) *Resolver {
	mappings := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.DataSource != source {
			continue
		}
		mappings[row.ReportColumn] = row.PhysicalField
	}
	return &Resolver{source: source, mappings: mappings}
}

// Resolve maps a report column name to its physical field name. A missing
// mapping returns the name verbatim: the name is then treated as a physical
// field, which is a deliberate fallback, not an error.
func (r *Resolver) Resolve(column string) string {
	if physical, ok := r.mappings[column]; ok {
		return physical
	}
	return column
}

// Source returns the data source this resolver was built for.
func (r *Resolver) Source() models.DataSource {
	return r.source
}

// Len returns the number of loaded mappings.
func (r *Resolver) Len() int {
	return len(r.mappings)
}
