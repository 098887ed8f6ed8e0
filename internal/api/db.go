package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/cagp/internal/property"
)

// DBHandler serves aggregate statistics straight from the DuckDB property
// table.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a new database handler.
func NewDBHandler(db *sql.DB) *DBHandler {
	return &DBHandler{db: db}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/stats/{attribute}", h.Stats, huma.OperationTags("properties"))
}

const statsSQL = `
SELECT coalesce(json_extract_string(attributes, ?), '') AS value, count(*) AS n
FROM properties
GROUP BY 1
ORDER BY n DESC, value`

// ValueCount is the number of properties with one attribute value.
type ValueCount struct {
	Value string `json:"value" doc:"Attribute value (empty when missing)"`
	Count int    `json:"count" doc:"Number of properties"`
}

// StatsOutput is the response for attribute statistics.
type StatsOutput struct {
	Body struct {
		Attribute string       `json:"attribute" doc:"Attribute name"`
		Values    []ValueCount `json:"values" doc:"Counts per value, most common first"`
	}
}

// Stats counts properties per value of a discrete filter attribute.
func (h *DBHandler) Stats(ctx context.Context, input *struct {
	Attribute string `path:"attribute" doc:"Discrete filter attribute" example:"priority_level"`
}) (*StatsOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	dim, ok := property.Lookup(property.DefaultSchema, input.Attribute)
	if !ok || dim.Kind != property.KindValues {
		return nil, huma.Error404NotFound("unknown attribute " + input.Attribute)
	}

	rows, err := h.db.QueryContext(ctx, statsSQL, "$."+dim.Attribute)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to query statistics", err)
	}
	defer rows.Close()

	out := &StatsOutput{}
	out.Body.Attribute = dim.Attribute
	out.Body.Values = []ValueCount{}
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, huma.Error500InternalServerError("Failed to read statistics", err)
		}
		out.Body.Values = append(out.Body.Values, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error500InternalServerError("Failed to read statistics", err)
	}
	return out, nil
}
