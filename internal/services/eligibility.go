package services

import (
	"context"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/floradispatch/internal/config"
	"github.com/example/floradispatch/internal/models"
	"github.com/example/floradispatch/internal/repositories"
)

// MatchTier orders how precisely a store's service area covers the order area.
type MatchTier int

const (
	MatchExact MatchTier = iota
	MatchWildcard
	MatchSubstring
)

func (t MatchTier) String() string {
	switch t {
	case MatchExact:
		return "exact"
	case MatchWildcard:
		return "wildcard"
	default:
		return "substring"
	}
}

func (t MatchTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Price sources of a candidate's floor price.
const (
	PriceSourceOverride  = "area_product"
	PriceSourceMinAmount = "min_amount"
	PriceSourceNone      = "none"
)

// ReasonNoEligibleStore marks a resolved address that no store can serve.
const ReasonNoEligibleStore = "no_eligible_store"

var wildcardMarkers = []string{"전체", "*"}

// StoreCandidate is one store allowed to fulfil an order.
type StoreCandidate struct {
	StoreID        uuid.UUID `json:"store_id"`
	StoreName      string    `json:"store_name"`
	MatchedArea    string    `json:"matched_area"`
	Tier           MatchTier `json:"tier"`
	EffectivePrice int64     `json:"effective_price"`
	PriceSource    string    `json:"price_source"`
}

// EligibilityResult separates an unparseable address from an empty candidate set.
type EligibilityResult struct {
	Resolution AreaResolution   `json:"resolution"`
	Reason     string           `json:"reason,omitempty"`
	Candidates []StoreCandidate `json:"candidates"`
}

// RankCandidates filters and orders stores for an order in a resolved area.
// Candidates sort by match tier, then floor price, then store id.
func RankCandidates(
	order UnifiedOrder,
	area Area,
	headquarters uuid.UUID,
	stores []models.Store,
	deliveryAreas []models.DeliveryArea,
	pricing []models.AreaProductPricing,
) []StoreCandidate {
	areasByStore := make(map[uuid.UUID][]models.DeliveryArea)
	for _, da := range deliveryAreas {
		areasByStore[da.StoreID] = append(areasByStore[da.StoreID], da)
	}
	pricingByStore := make(map[uuid.UUID][]models.AreaProductPricing)
	for _, p := range pricing {
		if p.ProductID == order.Product.ID {
			pricingByStore[p.StoreID] = append(pricingByStore[p.StoreID], p)
		}
	}

	seen := make(map[uuid.UUID]struct{}, len(stores))
	candidates := make([]StoreCandidate, 0)
	for _, store := range stores {
		if store.ID == headquarters || !store.Accepting() {
			continue
		}
		if _, dup := seen[store.ID]; dup {
			continue
		}

		matched, tier, ok := matchServiceArea(store.ServiceAreas, area)
		if !ok {
			continue
		}

		names := []string{matched, area.Key()}
		delivery, hasDelivery := findDeliveryArea(areasByStore[store.ID], names)
		if hasDelivery && !delivery.IsActive {
			continue
		}

		price, source := int64(0), PriceSourceNone
		if hasDelivery {
			price, source = delivery.MinAmount, PriceSourceMinAmount
		}
		if override, found := findPricing(pricingByStore[store.ID], names); found {
			if !override.IsAvailable {
				continue
			}
			price, source = override.Price, PriceSourceOverride
		}

		if order.Pricing.Subtotal < price {
			continue
		}

		seen[store.ID] = struct{}{}
		candidates = append(candidates, StoreCandidate{
			StoreID:        store.ID,
			StoreName:      store.BusinessName,
			MatchedArea:    matched,
			Tier:           tier,
			EffectivePrice: price,
			PriceSource:    source,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.EffectivePrice != b.EffectivePrice {
			return a.EffectivePrice < b.EffectivePrice
		}
		return a.StoreID.String() < b.StoreID.String()
	})
	return candidates
}

// matchServiceArea returns the best-matching service area entry.
func matchServiceArea(entries []string, area Area) (string, MatchTier, bool) {
	best, bestTier, found := "", MatchSubstring, false
	key := area.Key()

	for _, raw := range entries {
		entry := canonicalEntry(raw)
		if entry == "" {
			continue
		}
		var tier MatchTier
		switch {
		case entry == key:
			tier = MatchExact
		case isWildcardFor(entry, area.Sido):
			tier = MatchWildcard
		case tokenMatch(entry, area):
			tier = MatchSubstring
		default:
			continue
		}
		if !found || tier < bestTier {
			best, bestTier, found = raw, tier, true
		}
		if tier == MatchExact {
			break
		}
	}
	return best, bestTier, found
}

// canonicalEntry rewrites a leading province alias to its official name.
func canonicalEntry(entry string) string {
	fields := strings.Fields(entry)
	if len(fields) == 0 {
		return ""
	}
	if sido, ok := CanonicalProvince(fields[0]); ok {
		fields[0] = sido
	}
	return strings.Join(fields, " ")
}

func isWildcardFor(entry, sido string) bool {
	fields := strings.Fields(entry)
	if len(fields) != 2 || fields[0] != sido {
		return false
	}
	for _, marker := range wildcardMarkers {
		if fields[1] == marker {
			return true
		}
	}
	return false
}

// tokenMatch reports whether the entry names the order's sigungu or dong as
// whole tokens, so 서구 does not match 강서구.
func tokenMatch(entry string, area Area) bool {
	tokens := strings.FieldsFunc(entry, isAreaSeparator)
	if len(tokens) == 0 {
		return false
	}
	if sido, ok := CanonicalProvince(tokens[0]); ok && sido != area.Sido {
		return false
	}
	return containsRun(tokens, strings.Fields(area.Sigungu)) || containsRun(tokens, strings.Fields(area.Dong))
}

func isAreaSeparator(r rune) bool {
	switch r {
	case ',', '/', '·', '(', ')':
		return true
	}
	return unicode.IsSpace(r)
}

// containsRun reports whether want appears as consecutive tokens.
func containsRun(tokens, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func findDeliveryArea(rows []models.DeliveryArea, names []string) (models.DeliveryArea, bool) {
	for _, name := range names {
		for _, row := range rows {
			if canonicalEntry(row.AreaName) == canonicalEntry(name) {
				return row, true
			}
		}
	}
	return models.DeliveryArea{}, false
}

func findPricing(rows []models.AreaProductPricing, names []string) (models.AreaProductPricing, bool) {
	for _, name := range names {
		for _, row := range rows {
			if canonicalEntry(row.AreaName) == canonicalEntry(name) {
				return row, true
			}
		}
	}
	return models.AreaProductPricing{}, false
}

// EligibilityResolver loads the store network and ranks it for an order.
type EligibilityResolver struct {
	repo   repositories.Repository
	orders *OrderLoader
	cfg    config.DispatchConfig
	logger *zap.Logger
}

func NewEligibilityResolver(deps Deps) *EligibilityResolver {
	return &EligibilityResolver{repo: deps.Repo, orders: deps.loader(), cfg: deps.Config, logger: deps.Logger}
}

// Resolve returns the ranked candidates for the referenced order. An
// unparseable address yields ErrAddressUnresolved alongside the result so
// callers can still report the reason.
func (r *EligibilityResolver) Resolve(ctx context.Context, ref OrderRef) (EligibilityResult, error) {
	order, err := r.orders.Load(ctx, r.repo, ref)
	if err != nil {
		return EligibilityResult{}, err
	}
	return r.ResolveOrder(ctx, order)
}

// ResolveOrder ranks candidates for an already normalized order.
func (r *EligibilityResolver) ResolveOrder(ctx context.Context, order UnifiedOrder) (EligibilityResult, error) {
	resolution := ResolveArea(order.Delivery)
	if !resolution.Resolved {
		r.logger.Info("delivery address unresolved",
			zap.String("order", order.Ref().String()),
			zap.String("reason", resolution.Reason),
		)
		return EligibilityResult{Resolution: resolution, Reason: resolution.Reason, Candidates: []StoreCandidate{}},
			ErrAddressUnresolved
	}

	stores, err := r.repo.ListStores(ctx)
	if err != nil {
		return EligibilityResult{}, storeErr("list stores", err)
	}
	ids := make([]uuid.UUID, 0, len(stores))
	for _, s := range stores {
		ids = append(ids, s.ID)
	}
	areas, err := r.repo.ListDeliveryAreas(ctx, ids)
	if err != nil {
		return EligibilityResult{}, storeErr("list delivery areas", err)
	}
	pricing, err := r.repo.ListAreaProductPricing(ctx, ids, order.Product.ID)
	if err != nil {
		return EligibilityResult{}, storeErr("list area pricing", err)
	}

	candidates := RankCandidates(order, resolution.Area, r.cfg.HeadquartersStoreID, stores, areas, pricing)
	result := EligibilityResult{Resolution: resolution, Candidates: candidates}
	if len(candidates) == 0 {
		result.Reason = ReasonNoEligibleStore
	}
	return result, nil
}
