// Package view coordinates which finder region is visible: the panel
// content (detail, list, filter, download) and, on small screens, whether
// the map or the property panel is in front.
package view

import "github.com/joeblew999/cagp/internal/property"

// Panel is the content shown in the side panel.
type Panel string

const (
	PanelDetail   Panel = "detail"
	PanelList     Panel = "list"
	PanelFilter   Panel = "filter"
	PanelDownload Panel = "download"
)

// ParsePanel maps a name to a Panel, falling back to PanelDetail.
func ParsePanel(name string) Panel {
	switch p := Panel(name); p {
	case PanelDetail, PanelList, PanelFilter, PanelDownload:
		return p
	}
	return PanelDetail
}

// Layout is the small-screen axis: which of map and panel is in front.
type Layout string

const (
	LayoutMap        Layout = "map"
	LayoutProperties Layout = "properties"
)

// DefaultBreakpoint is the widest viewport, in CSS pixels, treated as a
// small screen.
const DefaultBreakpoint = 640

// State is the finder's view state.
type State struct {
	Panel          Panel             `json:"panel"`
	Layout         Layout            `json:"layout"`
	SmallScreen    bool              `json:"smallScreen"`
	Width          int               `json:"width"`
	StreetViewOpen bool              `json:"streetViewOpen"`
	FocusAnchor    string            `json:"focusAnchor,omitempty"`
	Selected       *property.Feature `json:"selected,omitempty"`
	PriorPanel     Panel             `json:"-"`
}

// Initial is the state at page mount.
func Initial() State {
	return State{Panel: PanelDetail, Layout: LayoutMap, PriorPanel: PanelDetail}
}

// SelectedID returns the selected property's id, or "".
func (s State) SelectedID() string {
	if s.Selected == nil {
		return ""
	}
	return s.Selected.ID
}

// Action is a view state transition.
type Action interface {
	isAction()
}

// SelectPanel toggles the named panel; selecting the active panel returns
// to PanelDetail. Unknown names select PanelDetail.
type SelectPanel struct{ Name string }

// SelectProperty makes a feature the selected property.
type SelectProperty struct{ Feature property.Feature }

// Deselect clears the selected property.
type Deselect struct{}

// Resize reports a new viewport width.
type Resize struct {
	Width      int
	Breakpoint int
}

// ToggleLayout flips the small-screen layout between map and properties.
type ToggleLayout struct{}

// OpenStreetView opens the street-view overlay. Anchor is the element that
// regains focus when the overlay closes.
type OpenStreetView struct{ Anchor string }

// CloseStreetView closes the street-view overlay.
type CloseStreetView struct{}

func (SelectPanel) isAction()     {}
func (SelectProperty) isAction()  {}
func (Deselect) isAction()        {}
func (Resize) isAction()          {}
func (ToggleLayout) isAction()    {}
func (OpenStreetView) isAction()  {}
func (CloseStreetView) isAction() {}

// Reduce applies a to s. While the street-view overlay is open only
// CloseStreetView and Resize have an effect.
func Reduce(s State, a Action) State {
	if s.StreetViewOpen {
		switch a.(type) {
		case CloseStreetView, Resize:
		default:
			return s
		}
	}

	switch a := a.(type) {
	case SelectPanel:
		p := ParsePanel(a.Name)
		if p == s.Panel {
			p = PanelDetail
		}
		s.Panel = p
		if s.SmallScreen && p != PanelDetail {
			s.Layout = LayoutProperties
		}
	case SelectProperty:
		f := a.Feature
		if s.Selected == nil {
			s.PriorPanel = s.Panel
		}
		s.Selected = &f
		s.Panel = PanelDetail
		if s.SmallScreen && s.Layout == LayoutMap {
			s.Layout = LayoutProperties
		}
	case Deselect:
		if s.Selected != nil {
			s.Selected = nil
			s.Panel = s.PriorPanel
			if s.Panel == "" {
				s.Panel = PanelDetail
			}
		}
	case Resize:
		bp := a.Breakpoint
		if bp <= 0 {
			bp = DefaultBreakpoint
		}
		small := a.Width > 0 && a.Width <= bp
		if small && !s.SmallScreen && s.Panel != PanelDetail {
			s.Layout = LayoutProperties
		}
		s.SmallScreen = small
		s.Width = a.Width
	case ToggleLayout:
		if s.Layout == LayoutMap {
			s.Layout = LayoutProperties
		} else {
			s.Layout = LayoutMap
		}
	case OpenStreetView:
		s.StreetViewOpen = true
		s.FocusAnchor = a.Anchor
	case CloseStreetView:
		s.StreetViewOpen = false
	}
	return s
}
