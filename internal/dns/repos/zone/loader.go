package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/rr-dns/internal/dns/common/utils"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

// LoadDirectory walks dir, loading every supported zone file (YAML, JSON,
// TOML) and constructing one Zone per distinct zone_root found. This is the
// external tokenizer of spec §9: it turns operator-authored zone text into
// the Record envelopes that zone.New validates and stores.
func LoadDirectory(dir string, defaultTTL time.Duration) (map[string]*Zone, error) {
	recordsByRoot := make(map[string][]domain.Record)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		root, records, err := loadZoneFileWithRoot(path, defaultTTL)
		if err != nil {
			return fmt.Errorf("error parsing zone file %s: %w", path, err)
		}
		if root != "" && len(records) > 0 {
			recordsByRoot[root] = append(recordsByRoot[root], records...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zones := make(map[string]*Zone, len(recordsByRoot))
	for root, records := range recordsByRoot {
		originName, err := domain.ParseName(root, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid zone root %q: %w", root, err)
		}
		z, err := New(originName, records)
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", root, err)
		}
		zones[root] = z
	}
	return zones, nil
}

// expandName returns the fully qualified domain name for a label, expanding
// '@' to the root, and appending the root if the label is not already
// absolute.
func expandName(label, root string) string {
	if label == "@" {
		return root
	}
	if strings.HasSuffix(label, ".") {
		return label
	}
	return label + "." + root
}

// toStringValues converts a raw koanf-parsed value (string or []any of
// strings) into a slice of non-empty strings, skipping empty or non-string
// elements.
func toStringValues(val any) []string {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// buildRecords constructs one domain.Record per value for a given owner FQDN
// and RR type string, encoding each text value to wire-format rdata via the
// local encodeRRData dispatch table.
func buildRecords(fqdn string, rrType string, values []string, defaultTTL time.Duration) ([]domain.Record, error) {
	rType := domain.RRTypeFromString(rrType)
	owner, err := domain.ParseName(fqdn, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid owner name %q: %w", fqdn, err)
	}
	var records []domain.Record
	for _, s := range values {
		if s == "" {
			continue
		}
		data, err := encodeRRData(rType, s)
		if err != nil {
			return nil, err
		}
		rec, err := domain.NewRecord(owner, rType, domain.RRClassIN, uint32(defaultTTL.Seconds()), data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// loadZoneFileWithRoot loads and parses a single zone file, returning both
// its zone_root and the records it declares.
func loadZoneFileWithRoot(path string, defaultTTL time.Duration) (string, []domain.Record, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return "", nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return "", nil, fmt.Errorf("failed to load zone file %s: %w", path, err)
	}

	root := k.String("zone_root")
	if root == "" {
		return "", nil, fmt.Errorf("zone file %s missing 'zone_root'", path)
	}
	root = utils.CanonicalDNSName(root) + "."

	var records []domain.Record
	for name, raw := range k.Raw() {
		if name == "zone_root" {
			continue
		}
		rawMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		fqdn := utils.CanonicalDNSName(expandName(name, root)) + "."
		for rrType, val := range rawMap {
			values := toStringValues(val)
			if len(values) == 0 {
				continue
			}
			recs, err := buildRecords(fqdn, rrType, values, defaultTTL)
			if err != nil {
				return "", nil, fmt.Errorf("invalid record in %s: %w", path, err)
			}
			records = append(records, recs...)
		}
	}
	return root, records, nil
}

// loadZoneFile loads a single zone file, discarding its zone_root.
func loadZoneFile(path string, defaultTTL time.Duration) ([]domain.Record, error) {
	_, records, err := loadZoneFileWithRoot(path, defaultTTL)
	return records, err
}

// LoadFile loads a single zone file for a known origin and builds a Zone
// from it. This backs jnamed.conf's `primary <origin> <file>` directive,
// where the origin is already known and need not be derived from the
// file's own zone_root.
func LoadFile(path string, origin domain.Name, defaultTTL time.Duration) (*Zone, error) {
	records, err := loadZoneFile(path, defaultTTL)
	if err != nil {
		return nil, err
	}
	return New(origin, records)
}
