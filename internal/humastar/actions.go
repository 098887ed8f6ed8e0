package humastar

import (
	"fmt"
	"slices"
	"strings"
)

// Action is a state-dependent link such as saving or unsaving a property.
// It is written as an RFC 8288 Link header with method and title params:
//
//	</api/v1/saved/405100505>; rel="save"; method="PUT"; title="Save property"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
}

// Actor is implemented by response bodies that offer actions.
type Actor interface {
	Actions() []Action
}

// LinkHeader formats the action as a Link header value.
func (a Action) LinkHeader() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		fmt.Fprintf(&b, `; method="%s"`, a.Method)
	}
	if a.Title != "" {
		fmt.Fprintf(&b, `; title="%s"`, a.Title)
	}
	return b.String()
}

// ActionDef is an action template. Pattern holds a single %s for the
// resource id.
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
}

// ActionsFor expands defs for id, leaving out any rel named in skip.
func ActionsFor(id string, defs []ActionDef, skip ...string) []Action {
	actions := make([]Action, 0, len(defs))
	for _, d := range defs {
		if slices.Contains(skip, d.Rel) {
			continue
		}
		actions = append(actions, Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, id),
			Method: d.Method,
			Title:  d.Title,
		})
	}
	return actions
}
