package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/humastar"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/session"
	"github.com/joeblew999/cagp/internal/store"
)

// PropertySummary is one row of the property list.
type PropertySummary struct {
	ID          string     `json:"opa_id" doc:"OPA account number" example:"405100505"`
	Address     string     `json:"address" doc:"Street address"`
	Priority    string     `json:"priority_level" doc:"Priority level (High, Medium, Low)"`
	ParcelType  string     `json:"parcel_type" doc:"Land or Building"`
	MarketValue *float64   `json:"market_value,omitempty" doc:"Assessed market value in dollars"`
	Location    [2]float64 `json:"location" doc:"Representative point as [lon, lat]"`
	PhotoURL    string     `json:"photo_url" doc:"Parcel photo (may not exist)"`
}

// PropertyDetail is the full record behind the detail panel.
type PropertyDetail struct {
	PropertySummary
	Attributes map[string]any `json:"attributes" doc:"All tile attributes"`
	Saved      bool           `json:"saved" doc:"Whether the requesting device saved this property"`
}

var propertyActions = []humastar.ActionDef{
	{Rel: "save", Pattern: "/api/v1/saved/%s", Method: "PUT", Title: "Save property"},
	{Rel: "unsave", Pattern: "/api/v1/saved/%s", Method: "DELETE", Title: "Remove from saved"},
	{Rel: "alternate", Pattern: "/find-properties/%s", Method: "GET", Title: "Open in finder"},
}

// Actions implements humastar.Actor. Only one of save and unsave is offered.
func (d PropertyDetail) Actions() []humastar.Action {
	skip := "save"
	if !d.Saved {
		skip = "unsave"
	}
	return humastar.ActionsFor(d.ID, propertyActions, skip)
}

// Summarize projects a feature into a list row.
func Summarize(f property.Feature, photoBase string) PropertySummary {
	c := f.Centroid()
	s := PropertySummary{
		ID:         f.ID,
		Address:    f.Address(),
		Priority:   f.Priority(),
		ParcelType: f.Attributes.String(property.AttrParcelType),
		Location:   [2]float64{c[0], c[1]},
		PhotoURL:   property.PhotoURL(photoBase, f.ID),
	}
	if v, ok := f.Attributes.Number(property.AttrMarketValue); ok {
		s.MarketValue = &v
	}
	return s
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 comma-separated numbers")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox: %w", err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox min exceeds max")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// PropertyHandler serves property records.
type PropertyHandler struct {
	svc *Services
}

func NewPropertyHandler(svc *Services) *PropertyHandler {
	return &PropertyHandler{svc: svc}
}

func (h *PropertyHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/properties", h.List, huma.OperationTags("properties"))
	huma.Get(api, "/api/v1/properties/export", h.Export, huma.OperationTags("properties"))
	huma.Get(api, "/api/v1/properties/{opa_id}", h.Get, huma.OperationTags("properties"))
	huma.Post(api, "/api/v1/filter/compile", h.Compile, huma.OperationTags("filter"))
}

// ListInput selects properties. Without bbox the device's live map view is
// used; without a live session every property is listed.
type ListInput struct {
	Offset int    `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int    `query:"limit" minimum:"1" maximum:"500" default:"20" doc:"Page size"`
	BBox   string `query:"bbox" doc:"minLon,minLat,maxLon,maxLat" example:"-75.2,39.9,-75.1,40.0"`
	Device string `cookie:"cagp_device" doc:"Device id cookie"`
}

func (h *PropertyHandler) features(ctx context.Context, bbox, device string) ([]property.Feature, error) {
	var sess *session.Session
	if h.svc.Sessions != nil && device != "" {
		sess, _ = h.svc.Sessions.Lookup(device)
	}

	if bbox == "" && sess != nil {
		return sess.Features(), nil
	}

	var (
		features []property.Feature
		err      error
	)
	if bbox == "" {
		features, err = h.svc.Store.All(ctx)
	} else {
		b, perr := ParseBBox(bbox)
		if perr != nil {
			return nil, huma.Error422UnprocessableEntity(perr.Error())
		}
		features, err = h.svc.Store.InBounds(ctx, b)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to query properties", err)
	}
	if sess == nil {
		return features, nil
	}

	expr := sess.Map.Filter()
	kept := features[:0]
	for _, f := range features {
		if expr.Match(f.Attributes) {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

func (h *PropertyHandler) List(ctx context.Context, input *ListInput) (*struct {
	Body humastar.PageBody[PropertySummary]
}, error) {
	if h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("property store not available")
	}
	features, err := h.features(ctx, input.BBox, input.Device)
	if err != nil {
		return nil, err
	}
	rows := make([]PropertySummary, len(features))
	for i, f := range features {
		rows[i] = Summarize(f, h.svc.PhotoBase)
	}
	return &struct {
		Body humastar.PageBody[PropertySummary]
	}{Body: humastar.Paginate(rows, input.Offset, input.Limit)}, nil
}

func (h *PropertyHandler) Get(ctx context.Context, input *struct {
	OPAID  string `path:"opa_id" doc:"OPA account number" example:"405100505"`
	Device string `cookie:"cagp_device" doc:"Device id cookie"`
}) (*struct{ Body PropertyDetail }, error) {
	if !property.ValidOPAID(input.OPAID) {
		return nil, huma.Error404NotFound("property not found")
	}
	if h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("property store not available")
	}
	f, err := h.svc.Store.Get(ctx, input.OPAID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, huma.Error404NotFound("property not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load property", err)
	}

	detail := PropertyDetail{
		PropertySummary: Summarize(f, h.svc.PhotoBase),
		Attributes:      f.Attributes,
	}
	if h.svc.Devices != nil && session.ValidDeviceID(input.Device) {
		saved, err := h.svc.Devices.SavedProperties(ctx, input.Device)
		if err == nil {
			for _, id := range saved.IDs {
				if id == f.ID {
					detail.Saved = true
				}
			}
		}
	}
	return &struct{ Body PropertyDetail }{Body: detail}, nil
}

// exportColumns are the CSV columns of the download panel.
var exportColumns = []string{
	property.AttrOPAID, property.AttrAddress, property.AttrPriorityLevel, property.AttrParcelType,
	property.AttrOwner1, property.AttrOwner2, property.AttrMarketValue, property.AttrTotalDue,
	property.AttrOpenViolations, property.AttrAccessProcess, property.AttrNeighborhood,
	property.AttrCouncilDistrict, property.AttrZoning, property.AttrRCONames,
	property.AttrSideYard, property.AttrConservatorship, property.AttrTacticalUrbanism,
}

// WriteCSV writes features with a header row.
func WriteCSV(w *csv.Writer, features []property.Feature) error {
	header := append(append([]string{}, exportColumns...), "longitude", "latitude")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, f := range features {
		row := make([]string, 0, len(header))
		for _, col := range exportColumns {
			row = append(row, f.Attributes.String(col))
		}
		c := f.Centroid()
		row = append(row, strconv.FormatFloat(c[0], 'f', 6, 64), strconv.FormatFloat(c[1], 'f', 6, 64))
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

type ExportOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func (h *PropertyHandler) Export(ctx context.Context, input *struct {
	BBox   string `query:"bbox" doc:"minLon,minLat,maxLon,maxLat"`
	Device string `cookie:"cagp_device" doc:"Device id cookie"`
}) (*ExportOutput, error) {
	if h.svc.Store == nil {
		return nil, huma.Error503ServiceUnavailable("property store not available")
	}
	features, err := h.features(ctx, input.BBox, input.Device)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := WriteCSV(csv.NewWriter(&buf), features); err != nil {
		return nil, huma.Error500InternalServerError("failed to write csv", err)
	}
	return &ExportOutput{
		ContentType:        "text/csv",
		ContentDisposition: `attachment; filename="vacant_properties.csv"`,
		Body:               buf.Bytes(),
	}, nil
}

type CompileBody struct {
	Expression any `json:"expression" doc:"MapLibre filter expression"`
	Active     int `json:"active" doc:"Number of constrained attributes"`
}

func (h *PropertyHandler) Compile(ctx context.Context, input *struct {
	Body filter.State
}) (*struct{ Body CompileBody }, error) {
	return &struct{ Body CompileBody }{Body: CompileBody{
		Expression: filter.Compile(input.Body),
		Active:     len(input.Body),
	}}, nil
}
