package colconfig

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sanitycheck/internal/core"
)

// LoadMetadata reads dataset metadata. YAML and TOML files hold a flat
// table; .env and .properties files hold KEY=value lines.
func LoadMetadata(path string) (core.Metadata, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".env", ".properties":
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read metadata %s: %w", path, err)
		}
		return normalizeMetadata(values), nil
	}

	var raw map[string]any
	if err := decodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", path, err)
	}
	return flattenMetadata(raw)
}

// ParseMetadata decodes metadata held in memory. KEY=value text is accepted
// when it does not parse in the given format.
func ParseMetadata(data []byte, format Format) (core.Metadata, error) {
	var raw map[string]any
	if err := decode(data, format, &raw); err == nil {
		return flattenMetadata(raw)
	}
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return normalizeMetadata(values), nil
}

func normalizeMetadata(values map[string]string) core.Metadata {
	md := make(core.Metadata, len(values))
	for k, v := range values {
		md[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return md
}

// flattenMetadata turns decoded scalars into strings. Nested tables and
// lists are rejected.
func flattenMetadata(raw map[string]any) (core.Metadata, error) {
	md := make(core.Metadata, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.TrimSpace(k))
		switch val := v.(type) {
		case nil:
			md[key] = ""
		case string:
			md[key] = val
		case bool:
			md[key] = strconv.FormatBool(val)
		case int:
			md[key] = strconv.Itoa(val)
		case int64:
			md[key] = strconv.FormatInt(val, 10)
		case float64:
			md[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case fmt.Stringer:
			md[key] = val.String()
		default:
			return nil, fmt.Errorf("metadata %q: expected a single value, got %T", k, v)
		}
	}
	return md, nil
}
