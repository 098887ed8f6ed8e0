package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/cagp/internal/config"
	"github.com/joeblew999/cagp/internal/server"
	"github.com/joeblew999/cagp/internal/service"
	"github.com/joeblew999/cagp/internal/utils"
)

func newServer(opts *config.Options) *server.Server {
	if err := config.Load(opts); err != nil {
		utils.Log.Fatalf("Config error: %v", err)
	}
	return server.New(server.Config{
		Host:             opts.Host,
		Port:             fmt.Sprintf("%d", opts.Port),
		DataDir:          opts.DataDir,
		MetadataEndpoint: opts.MetadataEndpoint,
		PhotoBase:        opts.PhotoBase,
		TilesFile:        opts.TilesFile,
		Breakpoint:       opts.Breakpoint,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		var srv *server.Server
		var httpServer *http.Server

		hooks.OnStart(func() {
			srv = newServer(opts)
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			utils.Log.WithFields(map[string]any{
				"server": baseURL,
				"data":   opts.DataDir,
			}).Info("cagp server starting")
			utils.Log.Infof("Finder:  %s/find-properties", baseURL)
			utils.Log.Infof("Docs:    %s/docs", baseURL)
			utils.Log.Infof("OpenAPI: %s/openapi.json", baseURL)

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				utils.Log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			if httpServer != nil {
				httpServer.Shutdown(context.Background())
			}
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "cagp"
	cli.Root().Short = "Clean & Green Philly vacant property finder"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *config.Options) {
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// import subcommand: load a GeoJSON or Shapefile from <data-dir>/sources
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import properties from a file in the sources directory",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *config.Options) {
			srv := newServer(opts)
			defer srv.Close()
			svc := srv.Services()

			if err := svc.Source.Validate(args[0]); err != nil {
				utils.Log.Fatalf("Import: %v", err)
			}
			n, err := svc.Source.Import(cmd.Context(), svc.Store, args[0])
			if err != nil {
				utils.Log.Fatalf("Import %s: %v", args[0], err)
			}
			utils.Log.Infof("Imported %d properties from %s", n, args[0])
		}),
	}
	cli.Root().AddCommand(importCmd)

	// tiles subcommand: build the PMTiles archive from the property store
	tilesCmd := &cobra.Command{
		Use:   "tiles",
		Short: "Generate the PMTiles archive served to the map",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *config.Options) {
			srv := newServer(opts)
			defer srv.Close()
			svc := srv.Services()

			minZoom, _ := cmd.Flags().GetInt("min-zoom")
			maxZoom, _ := cmd.Flags().GetInt("max-zoom")
			stats, err := svc.Tiler.Generate(cmd.Context(), svc.Store, service.TileGenerateOptions{
				OutputName: strings.TrimSuffix(opts.TilesFile, ".pmtiles"),
				MinZoom:    minZoom,
				MaxZoom:    maxZoom,
			}, func(progress int, status string) {
				utils.Log.WithField("progress", progress).Info(status)
			})
			if err != nil {
				utils.Log.Fatalf("Generate tiles: %v", err)
			}
			utils.Log.Infof("Wrote %d tiles for %d properties to %s", stats.Tiles, stats.Features, opts.TilesFile)
		}),
	}
	tilesCmd.Flags().Int("min-zoom", 10, "Lowest zoom level")
	tilesCmd.Flags().Int("max-zoom", 14, "Highest zoom level")
	cli.Root().AddCommand(tilesCmd)

	cli.Run()
}
