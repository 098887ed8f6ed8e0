package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/cagp/internal/store"
)

type InfoHandler struct {
	dataDir string
	store   store.Store
}

func NewInfoHandler(dataDir string, st store.Store) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, store: st}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string         `json:"name" doc:"Service name"`
	Version    string         `json:"version" doc:"Service version"`
	DataDir    string         `json:"data_dir" doc:"Data directory path"`
	DB         bool           `json:"db" doc:"Whether the property store is available"`
	Properties int            `json:"properties" doc:"Number of properties loaded"`
	ByPriority map[string]int `json:"by_priority" doc:"Property counts per priority level"`
	Bounds     []float64      `json:"bounds,omitempty" doc:"Extent of all properties as [minLon, minLat, maxLon, maxLat]"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:       "cagp",
		Version:    "0.1.0",
		DataDir:    h.dataDir,
		ByPriority: map[string]int{},
	}
	if h.store != nil {
		sum, err := h.store.Summary(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to summarize properties", err)
		}
		body.DB = true
		body.Properties = sum.Total
		if sum.ByPriority != nil {
			body.ByPriority = sum.ByPriority
		}
		if sum.Total > 0 {
			body.Bounds = []float64{sum.Bound.Min[0], sum.Bound.Min[1], sum.Bound.Max[0], sum.Bound.Max[1]}
		}
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
