package finder

import (
	"strconv"

	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/humastar"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/session"
	"github.com/joeblew999/cagp/internal/view"
)

// PropertyCard is the data for the "property-card" fragment.
type PropertyCard struct {
	ID          string
	Address     string
	Priority    string
	ParcelType  string
	MarketValue string
	PhotoURL    string
	Selected    bool
}

// DetailRow is one labelled attribute in the detail panel.
type DetailRow struct {
	Label string
	Value string
}

// PropertyDetail is the data for the "property-detail" fragment.
type PropertyDetail struct {
	PropertyCard
	Rows  []DetailRow
	Saved bool
}

// PropertyList is the data for the "property-list" fragment.
type PropertyList struct {
	Total    int
	Cards    []PropertyCard
	Page     int
	Pages    int
	HasPrev  bool
	HasNext  bool
	PrevPage int
	NextPage int
}

var detailRows = []struct{ Attr, Label string }{
	{property.AttrOwner1, "Owner"},
	{property.AttrOwner2, "Second owner"},
	{property.AttrParcelType, "Property type"},
	{property.AttrMarketValue, "Market value"},
	{property.AttrTotalDue, "Tax delinquency"},
	{property.AttrOpenViolations, "Open violations (past year)"},
	{property.AttrTreeCanopyGap, "Tree canopy gap"},
	{property.AttrGunCrimeDensity, "Gun crime density"},
	{property.AttrAccessProcess, "Access process"},
	{property.AttrNeighborhood, "Neighborhood"},
	{property.AttrCouncilDistrict, "Council district"},
	{property.AttrZoning, "Zoning"},
	{property.AttrRCONames, "Community organizations"},
	{property.AttrSideYard, "Side yard eligible"},
	{property.AttrConservatorship, "Conservatorship eligible"},
	{property.AttrTacticalUrbanism, "Tactical urbanism"},
	{property.AttrOPAID, "OPA ID"},
}

var dollarAttrs = map[string]bool{property.AttrMarketValue: true, property.AttrTotalDue: true}

func dollars(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	neg := len(s) > 0 && s[0] == '-'
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-$" + s
	}
	return "$" + s
}

func attrText(f property.Feature, attr string) string {
	if dollarAttrs[attr] {
		if v, ok := f.Attributes.Number(attr); ok {
			return dollars(v)
		}
	}
	return f.Attributes.String(attr)
}

func card(f property.Feature, photoBase, selected string) PropertyCard {
	return PropertyCard{
		ID:          f.ID,
		Address:     f.Address(),
		Priority:    f.Priority(),
		ParcelType:  f.Attributes.String(property.AttrParcelType),
		MarketValue: attrText(f, property.AttrMarketValue),
		PhotoURL:    property.PhotoURL(photoBase, f.ID),
		Selected:    f.ID == selected,
	}
}

func detail(f property.Feature, photoBase string, saved bool) PropertyDetail {
	d := PropertyDetail{PropertyCard: card(f, photoBase, f.ID), Saved: saved}
	for _, r := range detailRows {
		if v := attrText(f, r.Attr); v != "" {
			d.Rows = append(d.Rows, DetailRow{Label: r.Label, Value: v})
		}
	}
	return d
}

func list(features []property.Feature, page, pageSize int, photoBase, selected string) PropertyList {
	cards := make([]PropertyCard, len(features))
	for i, f := range features {
		cards[i] = card(f, photoBase, selected)
	}
	pages := max(1, (len(cards)+pageSize-1)/pageSize)
	page = max(0, min(page, pages-1))
	body := humastar.Paginate(cards, page*pageSize, pageSize)
	return PropertyList{
		Total:    body.Total,
		Cards:    body.Data,
		Page:     page + 1,
		Pages:    pages,
		HasPrev:  page > 0,
		HasNext:  page < pages-1,
		PrevPage: page - 1,
		NextPage: page + 1,
	}
}

// noResults is shown when the filters exclude every property in view.
var noResults = humastar.EmptyState{
	Title:   "No Results",
	Message: "No properties in this area match your filters.",
	Action:  &humastar.EmptyAction{Label: "Clear filters", URL: "/api/v1/finder/filters/clear"},
}

var noSelection = humastar.EmptyState{
	Title:   "No property selected",
	Message: "Click a property on the map or in the list to see its details.",
}

// viewSignals are the signals mirroring view state.
func viewSignals(st view.State) map[string]any {
	return map[string]any{
		"panel":          string(st.Panel),
		"layout":         string(st.Layout),
		"smallScreen":    st.SmallScreen,
		"streetViewOpen": st.StreetViewOpen,
		"selected":       st.SelectedID(),
	}
}

// filterSignals mirrors filter state into the form shape bound by the
// filter panel, plus the compiled expression the browser map applies.
func filterSignals(schema []property.Dimension, st filter.State) map[string]any {
	form := map[string]any{}
	for _, d := range schema {
		sel, ok := st[d.Attribute]
		switch d.Kind {
		case property.KindRange:
			r := map[string]any{"min": "", "max": ""}
			if ok && sel.Range != nil {
				r["min"], r["max"] = sel.Range.Min, sel.Range.Max
			}
			form[d.Attribute] = r
		default:
			values := []string{}
			if ok && sel.Values != nil {
				values = sel.Values
			}
			form[d.Attribute] = map[string]any{"values": values}
		}
	}
	return map[string]any{
		"filters":       form,
		"filterExpr":    filter.Compile(st),
		"activeFilters": len(st),
	}
}

// PageSignals is the initial data-signals object of the finder page: the
// session's view and filter state plus the inputs the page writes before
// posting an action.
func PageSignals(schema []property.Dimension, sess *session.Session) map[string]any {
	signals := map[string]any{
		"width":  0,
		"bounds": []float64{},
		"point":  []float64{},
		"search": "",
		"page":   sess.ListPage(),
		"error":  "",
	}
	for k, v := range viewSignals(sess.View.State()) {
		signals[k] = v
	}
	for k, v := range filterSignals(schema, sess.Filters.State()) {
		signals[k] = v
	}
	return signals
}
