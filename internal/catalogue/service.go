package catalogue

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/nmi-agro/fdm/internal/core"
	"github.com/nmi-agro/fdm/pkg/cache"
	"github.com/nmi-agro/fdm/pkg/logger"
)

const (
	listTTL      = 10 * time.Minute
	defaultLimit = 25
	maxLimit     = 100

	cultivationsKey = "cultivations"
	fertilizersKey  = "fertilizers"
)

// Service syncs the embedded catalogues into the store and answers
// searches from a short-lived in-memory copy.
type Service struct {
	store        core.CatalogueStore
	logger       *slog.Logger
	cultivations cache.Cache[[]core.CultivationCatalogueEntry]
	fertilizers  cache.Cache[[]core.FertilizerCatalogueEntry]
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Service on store. Close releases the list caches.
func New(store core.CatalogueStore, opts ...Option) *Service {
	s := &Service{
		store:        store,
		logger:       logger.NewNope(),
		cultivations: cache.NewMemory[[]core.CultivationCatalogueEntry](cache.WithDefaultTTL(listTTL)),
		fertilizers:  cache.NewMemory[[]core.FertilizerCatalogueEntry](cache.WithDefaultTTL(listTTL)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Close() error {
	return cmp.Or(s.cultivations.Close(), s.fertilizers.Close())
}

// SyncResult counts the rows a sync wrote.
type SyncResult struct {
	Cultivations int `json:"cultivations"`
	Fertilizers  int `json:"fertilizers"`
}

// Sync upserts the embedded catalogues. Entries whose hash is unchanged
// are skipped, so repeated syncs are cheap.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	cultivations, err := Cultivations()
	if err != nil {
		return res, err
	}
	if res.Cultivations, err = s.store.UpsertCultivationCatalogue(ctx, cultivations); err != nil {
		return res, fmt.Errorf("catalogue: sync cultivations: %w", err)
	}

	fertilizers, err := Fertilizers()
	if err != nil {
		return res, err
	}
	if res.Fertilizers, err = s.store.UpsertFertilizerCatalogue(ctx, fertilizers); err != nil {
		return res, fmt.Errorf("catalogue: sync fertilizers: %w", err)
	}

	if res.Cultivations > 0 {
		_ = s.cultivations.Delete(ctx, cultivationsKey)
	}
	if res.Fertilizers > 0 {
		_ = s.fertilizers.Delete(ctx, fertilizersKey)
	}
	s.logger.InfoContext(ctx, "catalogues synced",
		slog.Int("cultivations", res.Cultivations),
		slog.Int("fertilizers", res.Fertilizers),
	)
	return res, nil
}

// SearchCultivations matches q against the Dutch and English names and the
// catalogue id, ignoring case and diacritics. An empty q lists the first
// limit entries.
func (s *Service) SearchCultivations(ctx context.Context, q string, limit int) ([]core.CultivationCatalogueEntry, error) {
	all, err := cache.GetOrSet(ctx, s.cultivations, cultivationsKey,
		func(ctx context.Context) ([]core.CultivationCatalogueEntry, time.Duration, error) {
			entries, err := s.store.ListCultivationCatalogue(ctx)
			return entries, listTTL, err
		})
	if err != nil {
		return nil, fmt.Errorf("catalogue: list cultivations: %w", err)
	}
	return search(all, q, limit, func(e core.CultivationCatalogueEntry) []string {
		return []string{e.Name, e.NameEN, e.ID, e.HCat3Name}
	}), nil
}

// SearchFertilizers is SearchCultivations for the fertilizer catalogue.
func (s *Service) SearchFertilizers(ctx context.Context, q string, limit int) ([]core.FertilizerCatalogueEntry, error) {
	all, err := cache.GetOrSet(ctx, s.fertilizers, fertilizersKey,
		func(ctx context.Context) ([]core.FertilizerCatalogueEntry, time.Duration, error) {
			entries, err := s.store.ListFertilizerCatalogue(ctx)
			return entries, listTTL, err
		})
	if err != nil {
		return nil, fmt.Errorf("catalogue: list fertilizers: %w", err)
	}
	return search(all, q, limit, func(e core.FertilizerCatalogueEntry) []string {
		return []string{e.NameNL, e.NameEN, e.ID}
	}), nil
}

// search returns entries whose keys contain every word of q. Entries with
// a key starting with q rank first.
func search[E any](entries []E, q string, limit int, keys func(E) []string) []E {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	query := Fold(q)
	words := strings.Fields(query)

	type hit struct {
		entry  E
		prefix bool
		order  int
	}
	var hits []hit
	for i, e := range entries {
		folded := make([]string, 0, 4)
		for _, k := range keys(e) {
			folded = append(folded, Fold(k))
		}
		joined := strings.Join(folded, " ")
		if !containsAll(joined, words) {
			continue
		}
		prefix := query != "" && slices.ContainsFunc(folded, func(k string) bool {
			return strings.HasPrefix(k, query)
		})
		hits = append(hits, hit{entry: e, prefix: prefix, order: i})
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		if a.prefix != b.prefix {
			if a.prefix {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.order, b.order)
	})

	out := make([]E, 0, min(len(hits), limit))
	for _, h := range hits[:min(len(hits), limit)] {
		out = append(out, h.entry)
	}
	return out
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

// Fold lower-cases s and strips diacritics, so "Snijmaïs" matches "mais".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
