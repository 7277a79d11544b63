package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/catalog"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/models"
)

func TestAnnotateIgnoresSlotPositions(t *testing.T) {
	builds := []models.Build{{ItemHash: 1, Plugs: [][]uint32{{1}, {2}}}}
	items := []models.VaultItem{{ItemHash: 1, PlugHashes: []uint32{2, 1}}}

	got := Annotate(builds, items)
	require.Len(t, got, 1)
	assert.True(t, got[0].Owned)
}

func TestAnnotate(t *testing.T) {
	items := []models.VaultItem{
		{ItemInstanceID: "a", ItemHash: 1, PlugHashes: []uint32{10, 20}},
		{ItemInstanceID: "b", ItemHash: 1, PlugHashes: []uint32{30, 40}},
		{ItemInstanceID: "c", ItemHash: 2, PlugHashes: []uint32{10, 40}},
	}

	tests := []struct {
		name  string
		build models.Build
		want  bool
	}{
		{"one instance satisfies every slot", models.Build{ItemHash: 1, Plugs: [][]uint32{{5, 30}, {40}}}, true},
		{"slots split across instances", models.Build{ItemHash: 1, Plugs: [][]uint32{{10}, {40}}}, false},
		{"other item carries the plugs", models.Build{ItemHash: 3, Plugs: [][]uint32{{10}}}, false},
		{"empty slots are wildcards", models.Build{ItemHash: 2, Plugs: [][]uint32{{}, {40}}}, true},
		{"no plugs and item present", models.Build{ItemHash: 2}, true},
		{"no plugs and item absent", models.Build{ItemHash: 9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Annotate([]models.Build{tt.build}, items)
			assert.Equal(t, tt.want, got[0].Owned)
		})
	}
}

func TestSummarizeTrashIndependentOfOwnership(t *testing.T) {
	builds := []models.Build{
		{ItemHash: 7, Name: "Rolls I like", Plugs: [][]uint32{{1}}},
		{ItemHash: 7, Name: "  tRaSh ", Plugs: [][]uint32{{99}}},
		{ItemHash: 8, Name: "PvP", Plugs: [][]uint32{{2}}},
		{ItemHash: 7, Name: "Another"},
	}
	items := []models.VaultItem{{ItemHash: 7, PlugHashes: []uint32{1}}}

	got := Summarize(Annotate(builds, items))
	assert.Equal(t, []ItemSummary{
		{ItemHash: 7, BuildCount: 3, Owned: true, IsTrash: true},
		{ItemHash: 8, BuildCount: 1, Owned: false, IsTrash: false},
	}, got)
}

func TestIsTrashName(t *testing.T) {
	assert.True(t, IsTrashName("Trash"))
	assert.True(t, IsTrashName(" TRASH\t"))
	assert.False(t, IsTrashName("Trash roll"))
	assert.False(t, IsTrashName(""))
}

type memCache struct {
	data map[string]models.VaultData
}

func (m *memCache) GetVaultData(_ context.Context, playerID string) (*models.VaultData, error) {
	d, ok := m.data[playerID]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", playerID, apperr.ErrNotFound)
	}
	return &d, nil
}

func (m *memCache) SaveVaultData(_ context.Context, data *models.VaultData) error {
	m.data[data.PlayerID] = *data
	return nil
}

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) FetchVault(_ context.Context, _ Player, _ string) ([]models.VaultItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []models.VaultItem{{ItemHash: uint32(f.calls)}}, nil
}

func newTestCache(now *time.Time) (*Cache, *countingFetcher) {
	fetcher := &countingFetcher{}
	c := NewCache(&memCache{data: map[string]models.VaultData{}}, fetcher, events.NewBus(1), 5*time.Minute, time.Minute)
	c.now = func() time.Time { return *now }
	return c, fetcher
}

func TestCacheFreshnessAndDebounce(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache, fetcher := newTestCache(&now)
	ctx := context.Background()
	player := Player{MembershipType: 3, MembershipID: "4611686018"}

	_, err := cache.Load(ctx, player, "tok", false)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)

	now = now.Add(2 * time.Minute)
	_, err = cache.Load(ctx, player, "tok", false)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "fresh data is served from cache")

	now = now.Add(-90 * time.Second)
	_, err = cache.Refresh(ctx, player, "tok")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "refresh inside the debounce window is a no-op")

	now = now.Add(90 * time.Second)
	data, err := cache.Refresh(ctx, player, "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, now, data.CreatedAt)

	now = now.Add(6 * time.Minute)
	_, err = cache.Load(ctx, player, "tok", false)
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.calls, "stale data is refetched")
}

func TestCacheFetchError(t *testing.T) {
	now := time.Now()
	cache, fetcher := newTestCache(&now)
	fetcher.err = fmt.Errorf("%w: boom", apperr.ErrUpstream)

	_, err := cache.Load(context.Background(), Player{MembershipType: 1, MembershipID: "x"}, "tok", false)
	assert.True(t, errors.Is(err, apperr.ErrUpstream))

	_, err = cache.Load(context.Background(), Player{}, "tok", false)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

const profileJSON = `{
  "ErrorCode": 1,
  "ErrorStatus": "Success",
  "Response": {
    "profileInventory": {"data": {"items": [
      {"itemHash": 100, "itemInstanceId": "i1"},
      {"itemHash": 555, "itemInstanceId": "armor"}
    ]}},
    "characterInventories": {"data": {"c1": {"items": [{"itemHash": 200, "itemInstanceId": "i2"}]}}},
    "characterEquipment": {"data": {"c1": {"items": [{"itemHash": 100, "itemInstanceId": "i3"}]}}},
    "profileCurrencies": {"data": {"items": [{"itemHash": 777}]}},
    "itemComponents": {"sockets": {"data": {
      "i1": {"sockets": [{"plugHash": 10}, {}, {"plugHash": 20}]},
      "i3": {"sockets": [{"plugHash": 30}]}
    }}}
  }
}`

func testItems() *catalog.Catalog {
	return catalog.New([]catalog.ItemDefinition{
		{Hash: 100, ItemType: catalog.ItemTypeWeapon, Equippable: true, DisplayProperties: catalog.DisplayProperties{Name: "Fatebringer"}},
		{Hash: 200, ItemType: catalog.ItemTypeWeapon, Equippable: true, DisplayProperties: catalog.DisplayProperties{Name: "Vision of Confluence"}},
		{Hash: 555, ItemType: 2, Equippable: true},
	}, nil, nil, catalog.Seasons{})
}

func TestBungieClientFetchVault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Platform/Destiny2/3/Profile/4611/", r.URL.Path)
		assert.Equal(t, profileComponents, r.URL.Query().Get("components"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(profileJSON))
	}))
	defer srv.Close()

	client := NewBungieClient(srv.URL, "key", 10, 5*time.Second, testItems())
	items, err := client.FetchVault(context.Background(), Player{MembershipType: 3, MembershipID: "4611"}, "tok")
	require.NoError(t, err)

	byInstance := map[string]models.VaultItem{}
	for _, it := range items {
		byInstance[it.ItemInstanceID] = it
	}
	require.Len(t, byInstance, 3)
	assert.Equal(t, []uint32{10, 20}, byInstance["i1"].PlugHashes)
	assert.Equal(t, "Vision of Confluence", byInstance["i2"].ItemName)
	assert.Empty(t, byInstance["i2"].PlugHashes)
	assert.Equal(t, []uint32{30}, byInstance["i3"].PlugHashes)
}

func TestBungieClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"ErrorCode": 5, "Message": "maintenance"}`},
		{"empty response", http.StatusOK, `{"ErrorCode": 1}`},
		{"no items", http.StatusOK, `{"ErrorCode": 1, "Response": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewBungieClient(srv.URL, "", 10, time.Second, testItems())
			_, err := client.FetchVault(context.Background(), Player{MembershipType: 1, MembershipID: "1"}, "tok")
			assert.True(t, errors.Is(err, apperr.ErrUpstream), "got %v", err)
		})
	}
}

func TestBungieClientRequiresToken(t *testing.T) {
	client := NewBungieClient("http://127.0.0.1:1", "", 10, time.Second, testItems())
	_, err := client.FetchVault(context.Background(), Player{MembershipType: 1, MembershipID: "1"}, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}
