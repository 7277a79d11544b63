package vault

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/catalog"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/metrics"
	"wishlistbuilder/internal/models"
)

// profileComponents: vault, character inventories, equipment, postmaster
// and item sockets.
const profileComponents = "102,201,205,202,305"

// ItemLookup resolves instance item hashes to catalog definitions.
type ItemLookup interface {
	Item(hash uint32) (*catalog.ItemDefinition, bool)
}

// BungieClient fetches a player's weapons from the Destiny 2 profile endpoint.
type BungieClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	items   ItemLookup
}

func NewBungieClient(baseURL, apiKey string, perSecond float64, timeout time.Duration, items ItemLookup) *BungieClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &BungieClient{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		items:   items,
	}
}

type profileItem struct {
	ItemHash       uint32 `json:"itemHash"`
	ItemInstanceID string `json:"itemInstanceId"`
}

type itemList struct {
	Items []profileItem `json:"items"`
}

type socketState struct {
	PlugHash uint32 `json:"plugHash"`
}

type profileResponse struct {
	Response *struct {
		ProfileInventory struct {
			Data *itemList `json:"data"`
		} `json:"profileInventory"`
		ProfileCurrencies struct {
			Data *itemList `json:"data"`
		} `json:"profileCurrencies"`
		CharacterInventories struct {
			Data map[string]itemList `json:"data"`
		} `json:"characterInventories"`
		CharacterEquipment struct {
			Data map[string]itemList `json:"data"`
		} `json:"characterEquipment"`
		ItemComponents struct {
			Sockets struct {
				Data map[string]struct {
					Sockets []socketState `json:"sockets"`
				} `json:"data"`
			} `json:"sockets"`
		} `json:"itemComponents"`
	} `json:"Response"`
	ErrorCode   int    `json:"ErrorCode"`
	ErrorStatus string `json:"ErrorStatus"`
	Message     string `json:"Message"`
}

// FetchVault returns every weapon instance the player holds, with the plugs
// currently inserted in its sockets.
func (c *BungieClient) FetchVault(ctx context.Context, player Player, token string) ([]models.VaultItem, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing bungie access token", apperr.ErrInvalidInput)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for bungie rate limit: %w", err)
	}

	var profile profileResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParams(map[string]string{
			"type": strconv.Itoa(player.MembershipType),
			"id":   player.MembershipID,
		}).
		SetQueryParam("components", profileComponents).
		SetResult(&profile).
		SetError(&profile).
		Get("/Platform/Destiny2/{type}/Profile/{id}/")
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("bungie", metrics.StatusClass(0)).Inc()
		return nil, fmt.Errorf("%w: profile request: %v", apperr.ErrUpstream, err)
	}
	metrics.UpstreamRequests.WithLabelValues("bungie", metrics.StatusClass(resp.StatusCode())).Inc()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: profile status %d: %s", apperr.ErrUpstream, resp.StatusCode(), profile.Message)
	}
	if profile.Response == nil {
		return nil, fmt.Errorf("%w: profile response is empty", apperr.ErrUpstream)
	}

	r := profile.Response
	var all []profileItem
	if r.ProfileInventory.Data != nil {
		all = append(all, r.ProfileInventory.Data.Items...)
	}
	for _, inv := range r.CharacterInventories.Data {
		all = append(all, inv.Items...)
	}
	for _, eq := range r.CharacterEquipment.Data {
		all = append(all, eq.Items...)
	}
	if r.ProfileCurrencies.Data != nil {
		all = append(all, r.ProfileCurrencies.Data.Items...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: profile contains no items", apperr.ErrUpstream)
	}

	var out []models.VaultItem
	for _, it := range all {
		def, ok := c.items.Item(it.ItemHash)
		if !ok || !def.IsWeapon() {
			continue
		}
		vi := models.VaultItem{
			ItemInstanceID: it.ItemInstanceID,
			ItemHash:       it.ItemHash,
			ItemName:       def.Name(),
			PlugHashes:     []uint32{},
		}
		if sockets, ok := r.ItemComponents.Sockets.Data[it.ItemInstanceID]; ok {
			for _, s := range sockets.Sockets {
				if s.PlugHash != 0 {
					vi.PlugHashes = append(vi.PlugHashes, s.PlugHash)
				}
			}
		}
		out = append(out, vi)
	}

	logger.Debug("Profile parsed", "membership", player.MembershipID, "items", len(all), "weapons", len(out))
	return out, nil
}
