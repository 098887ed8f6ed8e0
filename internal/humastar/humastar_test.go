package humastar

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
)

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	tests := []struct {
		offset, limit int
		want          []int
		page, pages   int
	}{
		{0, 3, []int{1, 2, 3}, 1, 3},
		{3, 3, []int{4, 5, 6}, 2, 3},
		{6, 3, []int{7}, 3, 3},
		{20, 3, []int{}, 3, 3},
		{-5, 2, []int{1, 2}, 1, 4},
		{2, 0, []int{3, 4, 5, 6, 7}, 1, 2},
	}
	for _, tt := range tests {
		p := Paginate(items, tt.offset, tt.limit)
		if !slices.Equal(p.Data, tt.want) || p.Total != 7 {
			t.Errorf("Paginate(%d, %d) data=%v total=%d", tt.offset, tt.limit, p.Data, p.Total)
		}
		if page, pages := p.Page(); page != tt.page || pages != tt.pages {
			t.Errorf("Paginate(%d, %d) page=%d/%d, want %d/%d", tt.offset, tt.limit, page, pages, tt.page, tt.pages)
		}
	}
}

func TestPaginationLinks(t *testing.T) {
	p := PageBody[int]{Total: 45, Offset: 20, Limit: 20}
	got := p.PaginationLinks("/api/v1/properties")
	want := []string{
		`</api/v1/properties?offset=0&limit=20>; rel="first"`,
		`</api/v1/properties?offset=0&limit=20>; rel="prev"`,
		`</api/v1/properties?offset=40&limit=20>; rel="next"`,
		`</api/v1/properties?offset=40&limit=20>; rel="last"`,
	}
	if !slices.Equal(got, want) {
		t.Errorf("links=%v", got)
	}

	if links := (PageBody[int]{Total: 3}).PaginationLinks("/x"); links != nil {
		t.Errorf("zero limit links=%v", links)
	}
}

func TestActionsFor(t *testing.T) {
	defs := []ActionDef{
		{Rel: "save", Pattern: "/api/v1/saved/%s", Method: "PUT", Title: "Save property"},
		{Rel: "unsave", Pattern: "/api/v1/saved/%s", Method: "DELETE"},
	}
	actions := ActionsFor("405100505", defs, "unsave")
	if len(actions) != 1 {
		t.Fatalf("actions=%v", actions)
	}
	want := `</api/v1/saved/405100505>; rel="save"; method="PUT"; title="Save property"`
	if got := actions[0].LinkHeader(); got != want {
		t.Errorf("LinkHeader=%s", got)
	}
}

func TestSignals(t *testing.T) {
	sig, err := ParseSignals([]byte(`{"panel":"filter","width":812.0,"page":"2"}`))
	if err != nil {
		t.Fatal(err)
	}
	if sig.String("panel") != "filter" || sig.String("width") != "" {
		t.Errorf("String: %v", sig)
	}
	if sig.Int("width") != 812 || sig.Int("page") != 0 || sig.Int("missing") != 0 {
		t.Errorf("Int: %v", sig)
	}
	if _, err := ParseSignals([]byte(`{`)); err == nil {
		t.Error("expected error for malformed body")
	}
}

type item struct {
	ID string `json:"id"`
}

type detail struct {
	ID    string `json:"id"`
	Saved bool   `json:"saved"`
}

func (d detail) Actions() []Action {
	return []Action{{Rel: "save", Href: "/saved/" + d.ID, Method: "PUT"}}
}

func TestAutoLinksAndTransformer(t *testing.T) {
	links := Links{}
	cfg := huma.DefaultConfig("test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, links.Transformer())
	mux := http.NewServeMux()
	api := humatest.Wrap(t, humago.New(mux, cfg))

	huma.Get(api, "/health", func(ctx context.Context, _ *struct{}) (*struct{ Body item }, error) {
		return &struct{ Body item }{Body: item{ID: "ok"}}, nil
	}, huma.OperationTags("health"))
	huma.Get(api, "/things", func(ctx context.Context, _ *struct{}) (*struct{ Body PageBody[item] }, error) {
		return &struct{ Body PageBody[item] }{Body: Paginate([]item{{"a"}, {"b"}, {"c"}}, 0, 2)}, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body detail }, error) {
		return &struct{ Body detail }{Body: detail{ID: in.ID}}, nil
	}, huma.OperationTags("things"))
	huma.Put(api, "/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		return nil, nil
	}, huma.OperationTags("things"))
	huma.Get(api, "/events", func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		return nil, nil
	}, huma.OperationTags("stream"))

	for k, v := range AutoLinks(api, "/health", "stream") {
		links[k] = v
	}
	if _, ok := links["/events"]; ok {
		t.Error("skipped tag got links")
	}

	resp := api.Get("/health")
	if h := strings.Join(resp.Result().Header.Values("Link"), ","); !strings.Contains(h, `</things>; rel="things"`) ||
		!strings.Contains(h, `rel="service-desc"`) {
		t.Errorf("health links=%s", h)
	}

	resp = api.Get("/things")
	h := strings.Join(resp.Result().Header.Values("Link"), ",")
	for _, want := range []string{`</health>; rel="up"`, `</things/{id}>; rel="item"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(h, want) {
			t.Errorf("things links missing %s: %s", want, h)
		}
	}

	resp = api.Get("/things/a")
	h = strings.Join(resp.Result().Header.Values("Link"), ",")
	for _, want := range []string{`</things>; rel="collection"`, `rel="edit"`, `</things/a>; rel="self"`, `</saved/a>; rel="save"; method="PUT"`} {
		if !strings.Contains(h, want) {
			t.Errorf("item links missing %s: %s", want, h)
		}
	}
}
