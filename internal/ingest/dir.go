package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresuchdata/pricing-model/backend-go/internal/domain"
	"github.com/andresuchdata/pricing-model/backend-go/internal/pricing"
	"github.com/rs/zerolog/log"
)

// Snapshot is a loaded input set plus which tables were present.
type Snapshot struct {
	Inputs  domain.PricingInputs
	Loaded  []string
	Missing []string
}

type tableSet struct {
	tables map[string]*table
}

func newTableSet() *tableSet {
	return &tableSet{tables: make(map[string]*table)}
}

// tableKind resolves a file or sheet base name to a table kind.
func tableKind(name string) (string, bool) {
	key := normalizeHeader(name)
	for kind, aliases := range tableAliases {
		for _, a := range aliases {
			if key == a {
				return kind, true
			}
		}
	}
	return "", false
}

// addNamed registers t under the kind its name resolves to. The first table
// of a kind wins.
func (s *tableSet) addNamed(name string, t *table) bool {
	kind, ok := tableKind(name)
	if !ok {
		log.Debug().Str("name", name).Msg("ingest: skipping unrecognized table")
		return false
	}
	if _, dup := s.tables[kind]; dup {
		log.Warn().Str("table", kind).Str("name", name).Msg("ingest: duplicate table ignored")
		return false
	}
	t.name = kind
	s.tables[kind] = t
	return true
}

func (s *tableSet) assemble() (*Snapshot, error) {
	pt, ok := s.tables[TableProducts]
	if !ok {
		return nil, &domain.ConfigError{Table: TableProducts, Err: ErrTableNotFound}
	}

	snap := &Snapshot{}
	products, err := productsFromTable(pt)
	if err != nil {
		return nil, err
	}

	if t, ok := s.tables[TableCosts]; ok {
		costs, err := costsFromTable(t)
		if err != nil {
			return nil, err
		}
		products = JoinCosts(products, costs)
	}
	snap.Inputs.Products = products

	if t, ok := s.tables[TableCompetitors]; ok {
		snap.Inputs.Competitors = competitorsFromTable(t)
	}
	if t, ok := s.tables[TableStock]; ok {
		snap.Inputs.Stock = stockFromTable(t)
	}
	if t, ok := s.tables[TableWeights]; ok {
		snap.Inputs.Weights = weightsFromTable(t)
	}
	if t, ok := s.tables[TableBrandPolicies]; ok {
		snap.Inputs.BrandPolicies = brandPoliciesFromTable(t)
	}
	if t, ok := s.tables[TableExclusions]; ok {
		snap.Inputs.Exclusions = exclusionsFromTable(t)
	}
	if t, ok := s.tables[TableElasticities]; ok {
		snap.Inputs.Elasticities = elasticitiesFromTable(t)
	}

	for kind := range tableAliases {
		if _, ok := s.tables[kind]; ok {
			snap.Loaded = append(snap.Loaded, kind)
		} else {
			snap.Missing = append(snap.Missing, kind)
		}
	}
	sort.Strings(snap.Loaded)
	sort.Strings(snap.Missing)
	return snap, nil
}

// LoadDir reads every recognized CSV or XLSX file in dir. A workbook named
// after a table contributes its first sheet; any other workbook contributes
// each sheet named after a table.
func LoadDir(dir string) (*Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input dir %s: %w", dir, err)
	}

	set := newTableSet()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		base := strings.TrimSuffix(name, filepath.Ext(name))
		path := filepath.Join(dir, name)

		switch ext {
		case ".csv":
			if _, ok := tableKind(base); !ok {
				log.Debug().Str("file", name).Msg("ingest: skipping unrecognized file")
				continue
			}
			t, err := readCSVFile(base, path)
			if err != nil {
				return nil, err
			}
			set.addNamed(base, t)
		case ".xlsx":
			tables, err := openWorkbook(path)
			if err != nil {
				return nil, err
			}
			if _, ok := tableKind(base); ok {
				if len(tables) > 0 {
					set.addNamed(base, tables[0])
				}
				continue
			}
			for _, t := range tables {
				set.addNamed(t.name, t)
			}
		}
	}

	snap, err := set.assemble()
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("dir", dir).
		Strs("loaded", snap.Loaded).
		Strs("missing", snap.Missing).
		Int("products", len(snap.Inputs.Products)).
		Msg("ingest: snapshot loaded")
	return snap, nil
}

// LoadWorkbook reads a snapshot from one workbook on disk.
func LoadWorkbook(path string) (*Snapshot, error) {
	tables, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	set := newTableSet()
	for _, t := range tables {
		set.addNamed(t.name, t)
	}
	return set.assemble()
}

func readCSVFile(name, path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return readCSVTable(name, f)
}

func costKey(productID, city string) string {
	return pricing.CanonicalProductID(productID) + "|" + strings.ToLower(strings.TrimSpace(city))
}
