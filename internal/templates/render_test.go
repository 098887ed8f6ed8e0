package templates

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestDefaultFragments(t *testing.T) {
	r := Default()

	tests := []struct {
		name string
		data any
		want []string
	}{
		{"empty-state", map[string]any{
			"Title": "No Results", "Message": "Try clearing filters",
			"Action": map[string]string{"Label": "Clear filters", "URL": "/api/v1/finder/filters/clear"},
		}, []string{"No Results", "Clear filters", "filters"}},
		{"filter-badge", 3, []string{`id="filter-badge"`, ">3<"}},
		{"filter-badge", 0, []string{"hidden"}},
		{"property-card", map[string]any{
			"ID": "100000001", "Address": "1 MAIN ST", "Priority": "High",
			"ParcelType": "Land", "MarketValue": "$12,000", "PhotoURL": "", "Selected": true,
		}, []string{"property-100000001", "selected", "priority-high", "1 MAIN ST"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, err := r.Render(tt.name, tt.data)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(html, w) {
					t.Errorf("output missing %q:\n%s", w, html)
				}
			}
		})
	}
}

func TestMissingTemplate(t *testing.T) {
	if _, err := Default().Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestReload(t *testing.T) {
	r, err := New(fstest.MapFS{
		"fragments/a.html": {Data: []byte(`{{define "greet"}}hi {{.}}{{end}}`)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := r.MustRender("greet", "there"); got != "hi there" {
		t.Fatalf("got %q", got)
	}

	err = r.Reload(fstest.MapFS{
		"fragments/a.html": {Data: []byte(`{{define "greet"}}hello {{.}}{{end}}`)},
	})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := r.MustRender("greet", "there"); got != "hello there" {
		t.Fatalf("after reload got %q", got)
	}
}
