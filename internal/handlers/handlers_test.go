package handlers

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/builds"
	"wishlistbuilder/internal/catalog"
	"wishlistbuilder/internal/config"
	"wishlistbuilder/internal/database"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/models"
	"wishlistbuilder/internal/vault"
)

type fakeFetcher struct {
	items []models.VaultItem
	err   error
	calls int
}

func (f *fakeFetcher) FetchVault(_ context.Context, _ vault.Player, _ string) ([]models.VaultItem, error) {
	f.calls++
	return f.items, f.err
}

func testCatalog() *catalog.Catalog {
	sockets := func() *catalog.Sockets {
		return &catalog.Sockets{
			SocketEntries: []catalog.SocketEntry{
				{RandomizedPlugSetHash: 1},
				{RandomizedPlugSetHash: 1},
			},
			SocketCategories: []catalog.SocketCategory{
				{SocketCategoryHash: catalog.PerkSocketCategoryHash, SocketIndexes: []int{0, 1}},
			},
		}
	}
	weapon := func(hash uint32, name string) catalog.ItemDefinition {
		return catalog.ItemDefinition{
			Hash:              hash,
			ItemType:          catalog.ItemTypeWeapon,
			Equippable:        true,
			DisplayProperties: catalog.DisplayProperties{Name: name},
			IconWatermark:     "/wm/vog.png",
			Sockets:           sockets(),
		}
	}

	return catalog.New(
		[]catalog.ItemDefinition{weapon(100, "Fatebringer"), weapon(200, "Fatebringer (Timelost)")},
		[]catalog.PlugSetDefinition{{Hash: 1, ReusablePlugItems: []catalog.PlugItem{{PlugItemHash: 10}, {PlugItemHash: 20}}}},
		nil,
		catalog.Seasons{Watermark: catalog.SeasonTable{"/wm/vog.png": 14}},
	)
}

type testServer struct {
	router  *gin.Engine
	db      *sql.DB
	bus     *events.Bus
	fetcher *fakeFetcher
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return setupTestServerWithConfig(t, &config.Config{Environment: "development"})
}

func setupTestServerWithConfig(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	cat := testCatalog()
	bus := events.NewBus(8)
	store := database.NewStore(db)
	fetcher := &fakeFetcher{}

	h := &Handler{
		DB:      db,
		Catalog: cat,
		Engine:  builds.NewEngine(store, cat, bus),
		Vault:   vault.NewCache(store, fetcher, bus, 5*time.Minute, time.Minute),
		Bus:     bus,
	}
	r := gin.New()
	SetupRoutes(r, cfg, h)

	return &testServer{router: r, db: db, bus: bus, fetcher: fetcher}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) createWishlist(t *testing.T, name string) models.Wishlist {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/wishlists", fmt.Sprintf(`{"name": %q}`, name))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Wishlist](t, w)
}

func TestWishlistRoutes(t *testing.T) {
	s := setupTestServer(t)

	created := s.createWishlist(t, "Raid")
	assert.NotEmpty(t, created.UniqueID)

	w := s.do(t, http.MethodPost, "/api/wishlists", `{"name": "   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/wishlists/%d", created.ID), `{"name": "Raid weapons", "description": "VoG"}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[models.Wishlist](t, w)
	assert.Equal(t, "Raid weapons", updated.Name)
	assert.Equal(t, created.UniqueID, updated.UniqueID)

	w = s.do(t, http.MethodGet, "/api/wishlists", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Wishlists []models.Wishlist `json:"wishlists"`
	}](t, w)
	assert.Len(t, list.Wishlists, 1)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/wishlists/%d", created.ID), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/wishlists/%d", created.ID), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/wishlists/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuildRoutesPropagate(t *testing.T) {
	s := setupTestServer(t)
	wl := s.createWishlist(t, "Raid")

	body := fmt.Sprintf(`{"wishlist_id": %d, "item_hash": 100, "name": "PvE", "tags": ["PvE"], "plugs": [[10], [20]]}`, wl.ID)
	w := s.do(t, http.MethodPost, "/api/builds", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result := decode[builds.Result](t, w)
	assert.Equal(t, 1, result.Copies)
	require.NotNil(t, result.Build)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/wishlists/%d/builds?item_hash=200", wl.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	byItem := decode[struct {
		Builds []models.Build `json:"builds"`
	}](t, w)
	require.Len(t, byItem.Builds, 1)
	assert.Equal(t, "PvE", byItem.Builds[0].Name)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/builds/%d", result.Build.ID), `{"name": "PvE v2", "tags": ["PvE"], "plugs": [[10], [20]]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	all, err := database.GetBuildsByWishlist(context.Background(), s.db, wl.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, b := range all {
		assert.Equal(t, "PvE v2", b.Name)
	}

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/builds/%d", result.Build.ID), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	all, err = database.GetBuildsByWishlist(context.Background(), s.db, wl.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateBuildValidation(t *testing.T) {
	s := setupTestServer(t)
	wl := s.createWishlist(t, "Raid")

	w := s.do(t, http.MethodPost, "/api/builds", fmt.Sprintf(`{"wishlist_id": %d, "item_hash": 999}`, wl.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/builds", `{"wishlist_id": 42, "item_hash": 100}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/builds", fmt.Sprintf(`{"wishlist_id": %d, "item_hash": 100, "tags": ["Shiny"]}`, wl.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/builds/77", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClearBuilds(t *testing.T) {
	s := setupTestServer(t)
	wl := s.createWishlist(t, "Raid")

	body := fmt.Sprintf(`{"wishlist_id": %d, "item_hash": 100, "plugs": [[10], [20]]}`, wl.ID)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/builds", body).Code)

	w := s.do(t, http.MethodDelete, fmt.Sprintf("/api/wishlists/%d/builds", wl.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted": 2}`, w.Body.String())
}

const importFile = `{"name": "Imported", "description": "", "uniqueId": "wl-imp", "data": [
  {"name": "Roll", "description": "note", "hash": 100, "plugs": [[10], [20]], "tags": ["GodPVE"], "uniqueId": "b-1"},
  {"name": "trash", "description": "", "hash": 200, "plugs": [[20]], "tags": ["Trash"]}]}`

func TestImportExport(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/import", importFile)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	imported := decode[struct {
		Wishlist models.Wishlist `json:"wishlist"`
		Builds   int             `json:"builds"`
	}](t, w)
	assert.Equal(t, 2, imported.Builds)

	w = s.do(t, http.MethodPost, "/api/import", importFile)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/import", `{"name": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/wishlists/%d/export?pretty_print=true&omit_descriptions=true", imported.Wishlist.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Imported.json")
	assert.Contains(t, w.Body.String(), "\n    \"name\": \"Imported\"")
	assert.NotContains(t, w.Body.String(), "note")
	assert.Contains(t, w.Body.String(), `"GodPVE"`)

	w = s.do(t, http.MethodPost, "/api/export/package",
		fmt.Sprintf(`{"name": "Bundle", "wishlist_ids": [%d]}`, imported.Wishlist.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "b-1")
	assert.Contains(t, w.Body.String(), `"Bundle"`)
}

func TestItemView(t *testing.T) {
	s := setupTestServer(t)
	w := s.do(t, http.MethodPost, "/api/import", importFile)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[struct {
		Wishlist models.Wishlist `json:"wishlist"`
	}](t, w).Wishlist.ID

	s.fetcher.items = []models.VaultItem{{ItemInstanceID: "i-1", ItemHash: 100, PlugHashes: []uint32{10, 20}}}

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/wishlists/%d/items?membership_type=3&membership_id=4611", id), "",
		"Authorization", "Bearer access")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Items []struct {
			ItemHash   uint32 `json:"item_hash"`
			BuildCount int    `json:"build_count"`
			Owned      bool   `json:"owned"`
			IsTrash    bool   `json:"is_trash"`
			Name       string `json:"name"`
			Season     int    `json:"season"`
		} `json:"items"`
		VaultError string `json:"vault_error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.VaultError)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, uint32(100), resp.Items[0].ItemHash)
	assert.True(t, resp.Items[0].Owned)
	assert.Equal(t, 14, resp.Items[0].Season)
	assert.Equal(t, "Fatebringer", resp.Items[0].Name)
	assert.False(t, resp.Items[1].Owned)
	assert.True(t, resp.Items[1].IsTrash)
	assert.Equal(t, 1, s.fetcher.calls)
}

func TestItemViewNotUpstreamLimited(t *testing.T) {
	s := setupTestServerWithConfig(t, &config.Config{Environment: "production"})
	w := s.do(t, http.MethodPost, "/api/import", importFile)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[struct {
		Wishlist models.Wishlist `json:"wishlist"`
	}](t, w).Wishlist.ID

	s.fetcher.items = []models.VaultItem{{ItemInstanceID: "i-1", ItemHash: 100, PlugHashes: []uint32{10, 20}}}
	path := fmt.Sprintf("/api/wishlists/%d/items?membership_type=3&membership_id=4611", id)
	for i := 0; i < 5; i++ {
		w = s.do(t, http.MethodGet, path, "", "Authorization", "Bearer access")
		assert.Equal(t, http.StatusOK, w.Code, "load %d", i)
	}
	assert.Equal(t, 1, s.fetcher.calls)

	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/api/vault/refresh", `{"membership_type":3,"membership_id":"4611"}`, "Authorization", "Bearer access")
	}
	w = s.do(t, http.MethodPost, "/api/vault/refresh", `{"membership_type":3,"membership_id":"4611"}`, "Authorization", "Bearer access")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestItemViewDegradesOnVaultError(t *testing.T) {
	s := setupTestServer(t)
	w := s.do(t, http.MethodPost, "/api/import", importFile)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[struct {
		Wishlist models.Wishlist `json:"wishlist"`
	}](t, w).Wishlist.ID

	s.fetcher.err = fmt.Errorf("%w: bungie is down", apperr.ErrUpstream)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/wishlists/%d/items?membership_type=3&membership_id=4611", id), "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Builds []struct {
			Owned bool `json:"owned"`
		} `json:"builds"`
		VaultError string `json:"vault_error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.VaultError, "bungie is down")
	require.Len(t, resp.Builds, 2)
	for _, b := range resp.Builds {
		assert.False(t, b.Owned)
	}

	w = s.do(t, http.MethodPost, "/api/vault/refresh", `{"membership_type": 3, "membership_id": "4611"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAlternatesRoute(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/api/items/100/alternates", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"item": {"hash": 100, "name": "Fatebringer", "season": 14, "confirmed": false},
		"alternates": [{"hash": 200, "name": "Fatebringer (Timelost)", "season": 14, "confirmed": false}]
	}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/items/5/alternates", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/items/x/alternates", "").Code)
}

func TestGitHubDisabled(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/github/link", `{"repo": "a/b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatsAndHealth(t *testing.T) {
	s := setupTestServer(t)
	s.createWishlist(t, "Raid")

	w := s.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_wishlists":1`)

	w = s.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"catalog_items":2`)

	w = s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsStream(t *testing.T) {
	s := setupTestServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	require.Eventually(t, func() bool { return s.bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.bus.Publish(events.Event{Kind: events.BuildsChanged, WishlistID: 7})

	var seen []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			seen = append(seen, strings.TrimSpace(name))
			if strings.TrimSpace(name) == string(events.BuildsChanged) {
				break
			}
		}
	}
	assert.Equal(t, []string{"ready", "builds_changed"}, seen)
}

func TestEventsStreamEndsWhenBusCloses(t *testing.T) {
	s := setupTestServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return s.bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.bus.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event:ready")
	assert.NoError(t, ctx.Err())
}
