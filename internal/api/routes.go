// Package api defines the Huma API routes and handlers.
package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/cagp/internal/devicestore"
	"github.com/joeblew999/cagp/internal/service"
	"github.com/joeblew999/cagp/internal/session"
	"github.com/joeblew999/cagp/internal/store"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Layer     *service.LayerService
	Tile      *service.TileService
	Tiler     *service.TilerService
	Source    *service.SourceService
	Store     store.Store
	Sessions  *session.Registry
	Devices   *devicestore.DB
	PhotoBase string
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"vacant_properties_points"`
}

type LayerOutput struct {
	Body service.LayerConfig
}

type LayersOutput struct {
	Body []service.LayerConfig
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers map layer style routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}", h.PutLayer, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers/reset", h.ResetLayers, huma.OperationTags("layers"))
}

// RegisterSources registers source listing and import routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
	huma.Post(api, "/api/v1/sources/import", h.ImportSource, huma.OperationTags("sources"))
}

// RegisterTiles registers tile listing and generation routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Post(api, "/api/v1/tiles/generate", h.GenerateTiles, huma.OperationTags("tiles"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return &LayersOutput{Body: []service.LayerConfig{}}, nil
	}
	return &LayersOutput{Body: h.svc.Layer.List()}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	layer, ok := h.svc.Layer.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: layer}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct {
	IDInput
	Body service.LayerConfig
}) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	updated, err := h.svc.Layer.Update(input.ID, input.Body)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	return &LayerOutput{Body: updated}, nil
}

func (h *APIHandler) ResetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	if err := h.svc.Layer.Reset(); err != nil {
		return nil, huma.Error500InternalServerError("failed to reset layers", err)
	}
	return &LayersOutput{Body: h.svc.Layer.List()}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Source.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

type ImportBody struct {
	Imported int    `json:"imported" doc:"Number of properties imported"`
	Message  string `json:"message" doc:"Result message"`
}

func (h *APIHandler) ImportSource(ctx context.Context, input *struct {
	Body struct {
		Name string `json:"name" doc:"Source file name inside the sources directory" example:"vacant_properties.geojson"`
	}
}) (*struct{ Body ImportBody }, error) {
	if h.svc == nil || h.svc.Source == nil || h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("property store not available")
	}
	if err := h.svc.Source.Validate(input.Body.Name); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	n, err := h.svc.Source.Import(ctx, h.svc.Store, input.Body.Name)
	if err != nil {
		return nil, huma.Error500InternalServerError("import failed", err)
	}
	return &struct{ Body ImportBody }{Body: ImportBody{Imported: n, Message: "Imported " + input.Body.Name}}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc == nil || h.svc.Tile == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tile.List()
	if err != nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}

type GenerateBody struct {
	Tiles    int    `json:"tiles" doc:"Tiles written"`
	Features int    `json:"features" doc:"Properties tiled"`
	Message  string `json:"message" doc:"Result message"`
}

func (h *APIHandler) GenerateTiles(ctx context.Context, input *struct {
	Body service.TileGenerateOptions
}) (*struct{ Body GenerateBody }, error) {
	if h.svc == nil || h.svc.Tiler == nil || h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("tiler not available")
	}
	stats, err := h.svc.Tiler.Generate(ctx, h.svc.Store, input.Body, nil)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body GenerateBody }{Body: GenerateBody{
		Tiles: stats.Tiles, Features: stats.Features, Message: "Tiles generated: " + input.Body.OutputName,
	}}, nil
}
