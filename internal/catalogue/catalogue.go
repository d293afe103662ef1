package catalogue

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nmi-agro/fdm/internal/core"
)

//go:embed data/*.yaml
var dataFS embed.FS

var (
	ErrInvalidCatalogue = errors.New("catalogue: invalid catalogue")
	ErrDuplicateEntry   = errors.New("catalogue: duplicate entry")
)

type document[E any] struct {
	Source  string `yaml:"source"`
	Entries []E    `yaml:"entries"`
}

// Cultivations returns the embedded cultivation catalogue with hashes set.
func Cultivations() ([]core.CultivationCatalogueEntry, error) {
	doc, err := decode[core.CultivationCatalogueEntry]("data/cultivations.yaml")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(doc.Entries))
	for i := range doc.Entries {
		e := &doc.Entries[i]
		if e.ID == "" || e.Name == "" {
			return nil, fmt.Errorf("%w: cultivation entry %d lacks id or name", ErrInvalidCatalogue, i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
		seen[e.ID] = true
		if e.Source == "" {
			e.Source = doc.Source
		}
		e.Hash = hash(e.ID, e.Source, e.Name, e.NameEN, e.HCat3, e.HCat3Name)
	}
	return doc.Entries, nil
}

// Fertilizers returns the embedded fertilizer catalogue with hashes set.
func Fertilizers() ([]core.FertilizerCatalogueEntry, error) {
	doc, err := decode[core.FertilizerCatalogueEntry]("data/fertilizers.yaml")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(doc.Entries))
	for i := range doc.Entries {
		e := &doc.Entries[i]
		if e.ID == "" || e.NameNL == "" {
			return nil, fmt.Errorf("%w: fertilizer entry %d lacks id or name", ErrInvalidCatalogue, i)
		}
		if !e.Type.Valid() {
			return nil, fmt.Errorf("%w: %s has type %q", ErrInvalidCatalogue, e.ID, e.Type)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
		seen[e.ID] = true
		if e.Source == "" {
			e.Source = doc.Source
		}
		e.Hash = hash(e.ID, e.Source, e.NameNL, e.NameEN, string(e.Type),
			num(e.DM), num(e.OM), num(e.NRt), num(e.PRt), num(e.KRt))
	}
	return doc.Entries, nil
}

func decode[E any](name string) (*document[E], error) {
	data, err := dataFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("catalogue: read %s: %w", name, err)
	}
	var doc document[E]
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrInvalidCatalogue, err)
	}
	return &doc, nil
}

// hash fingerprints an entry so unchanged rows are skipped on sync.
func hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

func num(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
