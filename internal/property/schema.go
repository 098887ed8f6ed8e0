package property

// Kind is how a filter control selects values for an attribute.
type Kind string

const (
	KindValues Kind = "values"
	KindRange  Kind = "range"
)

// Dimension describes one filterable attribute.
type Dimension struct {
	Attribute  string   `json:"attribute" yaml:"attribute"`
	Label      string   `json:"label" yaml:"label"`
	Kind       Kind     `json:"kind" yaml:"kind"`
	UseIndexOf bool     `json:"useIndexOf,omitempty" yaml:"useIndexOf"`
	Options    []string `json:"options,omitempty" yaml:"options"`
}

// Priority levels in display order.
var PriorityLevels = []string{"High", "Medium", "Low"}

// DefaultSchema is the filter panel configuration.
var DefaultSchema = []Dimension{
	{Attribute: AttrPriorityLevel, Label: "Priority", Kind: KindValues, Options: PriorityLevels},
	{Attribute: AttrAccessProcess, Label: "Access Process", Kind: KindValues, Options: []string{
		"Private Land Use Agreement", "Buy Property", "Land Bank", "Conservatorship", "Do Nothing",
	}},
	{Attribute: AttrParcelType, Label: "Property Type", Kind: KindValues, Options: []string{"Land", "Building"}},
	{Attribute: AttrNeighborhood, Label: "Neighborhood", Kind: KindValues},
	{Attribute: AttrCouncilDistrict, Label: "Council District", Kind: KindValues, Options: []string{
		"1", "2", "3", "4", "5", "6", "7", "8", "9", "10",
	}},
	{Attribute: AttrZoning, Label: "Zoning", Kind: KindValues},
	{Attribute: AttrRCONames, Label: "Community Organization", Kind: KindValues, UseIndexOf: true},
	{Attribute: AttrSideYard, Label: "Side Yard Eligible", Kind: KindValues, Options: []string{"Yes", "No"}},
	{Attribute: AttrConservatorship, Label: "Conservatorship Eligible", Kind: KindValues, Options: []string{"Yes", "No"}},
	{Attribute: AttrTacticalUrbanism, Label: "Tactical Urbanism", Kind: KindValues, Options: []string{"Yes", "No"}},
	{Attribute: AttrMarketValue, Label: "Market Value", Kind: KindRange},
	{Attribute: AttrTotalDue, Label: "Tax Delinquency", Kind: KindRange},
	{Attribute: AttrOpenViolations, Label: "Open Violations", Kind: KindRange},
}

// Lookup returns the dimension for an attribute.
func Lookup(schema []Dimension, attribute string) (Dimension, bool) {
	for _, d := range schema {
		if d.Attribute == attribute {
			return d, true
		}
	}
	return Dimension{}, false
}
