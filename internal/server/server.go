package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/cagp/internal/api"
	"github.com/joeblew999/cagp/internal/api/finder"
	"github.com/joeblew999/cagp/internal/db"
	"github.com/joeblew999/cagp/internal/devicestore"
	"github.com/joeblew999/cagp/internal/humastar"
	"github.com/joeblew999/cagp/internal/metadata"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/service"
	"github.com/joeblew999/cagp/internal/session"
	"github.com/joeblew999/cagp/internal/store"
	"github.com/joeblew999/cagp/internal/templates"
	"github.com/joeblew999/cagp/internal/utils"
	"github.com/joeblew999/cagp/internal/view"
)

// Config holds the server configuration.
type Config struct {
	Host             string
	Port             string
	DataDir          string
	MetadataEndpoint string
	PhotoBase        string
	TilesFile        string
	Breakpoint       int

	// Store replaces the DuckDB property store when set.
	Store store.Store
	// Locator replaces the metadata client when set.
	Locator metadata.Locator
}

// Server is the property finder HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	renderer *templates.Renderer
}

// New creates a new server. A property store or device database that
// cannot be opened is logged and the server runs without it.
func New(cfg Config) *Server {
	if cfg.TilesFile == "" {
		cfg.TilesFile = "vacant_properties.pmtiles"
	}
	if cfg.Breakpoint <= 0 {
		cfg.Breakpoint = view.DefaultBreakpoint
	}
	mux := http.NewServeMux()

	links := humastar.Links{}
	humaConfig := huma.DefaultConfig("cagp API", "1.0.0")
	humaConfig.Info.Description = "Clean & Green Philly property finder: vacant properties, filters, saved lists and map tiles."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		renderer: templates.Default(),
	}

	st := cfg.Store
	if st == nil {
		st = s.openStore()
	}

	devices, err := devicestore.Open(filepath.Join(cfg.DataDir, "device.sqlite"))
	if err != nil {
		utils.Log.Warnf("Device store unavailable: %v", err)
	}

	tiles := service.NewTileService(cfg.DataDir, cfg.TilesFile)
	locator := cfg.Locator
	if locator == nil {
		locator = metadata.NewClient(cfg.MetadataEndpoint)
	}

	s.services = &api.Services{
		Layer:  service.NewLayerService(cfg.DataDir),
		Tile:   tiles,
		Tiler:  service.NewTilerService(cfg.DataDir),
		Source: service.NewSourceService(cfg.DataDir),
		Store:  st,
		Sessions: session.NewRegistry(session.Deps{
			Source:     st,
			Style:      tiles,
			Locator:    locator,
			Breakpoint: cfg.Breakpoint,
		}, devices),
		Devices:   devices,
		PhotoBase: cfg.PhotoBase,
	}

	s.routes()
	maps.Copy(links, humastar.AutoLinks(humaAPI, "/health", "finder"))
	return s
}

func (s *Server) openStore() store.Store {
	conn, err := db.Open(db.Config{DataDir: s.config.DataDir})
	if err != nil {
		utils.Log.Warnf("DuckDB unavailable, using an empty in-memory store: %v", err)
		return store.NewMemory()
	}
	st, err := store.NewDuckDB(context.Background(), conn)
	if err != nil {
		conn.Close()
		utils.Log.Warnf("DuckDB property table unavailable, using an empty in-memory store: %v", err)
		return store.NewMemory()
	}
	s.db = conn
	return st
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the wired services to CLI subcommands.
func (s *Server) Services() *api.Services {
	return s.services
}

// Close closes server resources.
func (s *Server) Close() error {
	return errors.Join(
		s.services.Store.Close(),
		s.services.Devices.Close(),
		s.services.Tile.Close(),
	)
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.services.Store).RegisterRoutes(s.humaAPI)
	api.NewPropertyHandler(s.services).RegisterRoutes(s.humaAPI)
	api.NewDeviceHandler(s.services.Devices).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	// Finder SSE routes using Huma + Datastar SDK
	finder.New(finder.Config{
		Sessions:  s.services.Sessions,
		Devices:   s.services.Devices,
		Store:     s.services.Store,
		PhotoBase: s.config.PhotoBase,
	}, s.renderer).RegisterRoutes(s.humaAPI)

	s.mux.Handle("GET /tiles/{z}/{x}/{y}", http.HandlerFunc(s.handleTile))
	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", s.handleTiles(s.services.Tile.TilesDir())))

	// Page routes
	s.mux.HandleFunc("GET "+property.FindPropertiesPath, s.handleFindProperties)
	s.mux.HandleFunc("GET "+property.FindPropertiesPath+"/{opa_id}", s.handleFindProperties)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, property.FindPropertiesPath, http.StatusFound)
	})
}

// pageData is the data for the "find-properties.html" page.
type pageData struct {
	Signals  string
	OPAID    string
	Panels   []view.Panel
	Badge    int
	Schema   []property.Dimension
	Layers   []service.LayerConfig
	TilesURL string
}

func (s *Server) handleFindProperties(w http.ResponseWriter, r *http.Request) {
	opaID := r.PathValue("opa_id")
	if opaID != "" && !property.ValidOPAID(opaID) {
		http.Redirect(w, r, property.FindPropertiesPath, http.StatusFound)
		return
	}

	device := session.DeviceID(w, r)
	sess, release := s.services.Sessions.Acquire(r.Context(), device)
	signals := finder.PageSignals(property.DefaultSchema, sess)
	badge := len(sess.Filters.State())
	release()

	raw, err := json.Marshal(signals)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := pageData{
		Signals:  string(raw),
		OPAID:    opaID,
		Panels:   []view.Panel{view.PanelList, view.PanelFilter, view.PanelDownload},
		Badge:    badge,
		Schema:   property.DefaultSchema,
		Layers:   s.services.Layer.List(),
		TilesURL: "/tiles/" + s.config.TilesFile,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Execute(w, "find-properties.html", data); err != nil {
		utils.Log.Errorf("render find-properties: %v", err)
	}
}

// handleTile serves one gzipped vector tile from the active archive.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.ParseUint(r.PathValue("z"), 10, 8)
	x, errX := strconv.ParseUint(r.PathValue("x"), 10, 32)
	y, errY := strconv.ParseUint(strings.TrimSuffix(r.PathValue("y"), ".mvt"), 10, 32)
	if errZ != nil || errX != nil || errY != nil {
		http.NotFound(w, r)
		return
	}

	data, ok, err := s.services.Tile.Tile(uint8(z), uint32(x), uint32(y))
	if err != nil {
		utils.Log.WithField("tile", r.URL.Path).Warnf("read tile: %v", err)
		http.Error(w, "tiles unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Content-Encoding", "gzip")
	w.Write(data)
}

func (s *Server) handleTiles(tilesDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.FileServer(http.Dir(tilesDir)).ServeHTTP(w, r)
	})
}
