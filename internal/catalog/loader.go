package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/logger"
)

// Component names double as file names (with a .json suffix) for directory
// snapshots.
const (
	ComponentItems        = "DestinyInventoryItemDefinition"
	ComponentPlugSets     = "DestinyPlugSetDefinition"
	ComponentCollectibles = "DestinyCollectibleDefinition"
	ComponentSeasons      = "seasons"
	ComponentSeasonBackup = "seasons_backup"
	ComponentWatermarks   = "watermark-to-season"
)

var allComponents = []string{
	ComponentItems,
	ComponentPlugSets,
	ComponentCollectibles,
	ComponentSeasons,
	ComponentSeasonBackup,
	ComponentWatermarks,
}

// Source yields the raw JSON document of one catalog component.
type Source interface {
	Component(ctx context.Context, name string) ([]byte, error)
}

// HTTPSource downloads components from the Bungie manifest and the d2ai
// season tables.
type HTTPSource struct {
	bungie *resty.Client
	d2ai   *resty.Client
	paths  map[string]string
}

func NewHTTPSource(bungieBaseURL, d2aiBaseURL, apiKey string, timeout time.Duration) *HTTPSource {
	bungie := resty.New().
		SetBaseURL(bungieBaseURL).
		SetTimeout(timeout)
	if apiKey != "" {
		bungie.SetHeader("X-API-Key", apiKey)
	}
	return &HTTPSource{
		bungie: bungie,
		d2ai:   resty.New().SetBaseURL(d2aiBaseURL).SetTimeout(timeout),
	}
}

type manifestResponse struct {
	Response struct {
		Version                        string                       `json:"version"`
		JSONWorldComponentContentPaths map[string]map[string]string `json:"jsonWorldComponentContentPaths"`
	} `json:"Response"`
}

// Prepare fetches the manifest index so component paths are known. It must
// run before Component is called concurrently.
func (s *HTTPSource) Prepare(ctx context.Context) error {
	var manifest manifestResponse
	resp, err := s.bungie.R().
		SetContext(ctx).
		SetResult(&manifest).
		Get("/Platform/Destiny2/Manifest/")
	if err != nil {
		return fmt.Errorf("%w: manifest request: %v", apperr.ErrUpstream, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: manifest status %d", apperr.ErrUpstream, resp.StatusCode())
	}
	paths, ok := manifest.Response.JSONWorldComponentContentPaths["en"]
	if !ok {
		return fmt.Errorf("%w: manifest has no english component paths", apperr.ErrUpstream)
	}
	s.paths = paths
	logger.Info("Manifest index loaded", "version", manifest.Response.Version, "components", len(paths))
	return nil
}

func (s *HTTPSource) Component(ctx context.Context, name string) ([]byte, error) {
	var req *resty.Request
	var path string
	switch name {
	case ComponentSeasons, ComponentSeasonBackup, ComponentWatermarks:
		req = s.d2ai.R()
		path = "/" + name + ".json"
	default:
		p, ok := s.paths[name]
		if !ok {
			return nil, fmt.Errorf("%w: manifest has no component %s", apperr.ErrUpstream, name)
		}
		req = s.bungie.R()
		path = p
	}

	resp, err := req.SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %v", apperr.ErrUpstream, name, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %s status %d", apperr.ErrUpstream, name, resp.StatusCode())
	}
	return resp.Body(), nil
}

// DirSource reads components from <dir>/<component>.json.
type DirSource struct {
	Dir string
}

func (s DirSource) Component(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog component %s: %w", name, err)
	}
	return data, nil
}

type rawComponents map[string][]byte

func fetchAll(ctx context.Context, src Source) (rawComponents, error) {
	results := make([][]byte, len(allComponents))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range allComponents {
		i, name := i, name
		g.Go(func() error {
			data, err := src.Component(gctx, name)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	raw := make(rawComponents, len(allComponents))
	for i, name := range allComponents {
		raw[name] = results[i]
	}
	return raw, nil
}

// Load downloads or reads every component in parallel and builds a Catalog.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	start := time.Now()
	raw, err := fetchAll(ctx, src)
	if err != nil {
		return nil, err
	}

	var (
		items        map[string]ItemDefinition
		plugSets     map[string]PlugSetDefinition
		collectibles map[string]CollectibleDefinition
		seasons      Seasons
	)
	decode := []struct {
		name string
		into any
	}{
		{ComponentItems, &items},
		{ComponentPlugSets, &plugSets},
		{ComponentCollectibles, &collectibles},
		{ComponentSeasons, &seasons.Source},
		{ComponentSeasonBackup, &seasons.Backup},
		{ComponentWatermarks, &seasons.Watermark},
	}
	for _, d := range decode {
		if err := json.Unmarshal(raw[d.name], d.into); err != nil {
			return nil, fmt.Errorf("failed to decode catalog component %s: %w", d.name, err)
		}
	}

	cat := New(values(items), values(plugSets), values(collectibles), seasons)
	logger.Info("Catalog loaded",
		"items", cat.Size(),
		"weapons", len(cat.Weapons()),
		"duration", time.Since(start).String(),
	)
	return cat, nil
}

// Snapshot copies every component from src into dir so later runs can load
// offline with DirSource.
func Snapshot(ctx context.Context, src Source, dir string) error {
	raw, err := fetchAll(ctx, src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	for name, data := range raw {
		if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			return fmt.Errorf("failed to write catalog component %s: %w", name, err)
		}
	}
	return nil
}

func values[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
