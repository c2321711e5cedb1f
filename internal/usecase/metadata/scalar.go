package metadata

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/resdex/internal/domain/resource"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
)

// scalarItem converts one non-reference value into an Item for ft.
func scalarItem(ft field.Type, v any) (resource.Item, error) {
	switch ft {
	case field.Integer:
		n, err := toInt(v)
		if err != nil {
			return resource.Item{}, err
		}
		return resource.Item{Value: strconv.FormatInt(n, 10)}, nil
	case field.Boolean:
		b, err := toBool(v)
		if err != nil {
			return resource.Item{}, err
		}
		return resource.Item{Value: strconv.FormatBool(b)}, nil
	case field.Timestamp:
		ts, err := toTimestamp(v)
		if err != nil {
			return resource.Item{}, err
		}
		return resource.Item{Value: strconv.FormatInt(ts, 10)}, nil
	case field.DateRange:
		return dateRange(v)
	case field.Link:
		return link(v)
	case field.Geofield:
		return geo(v)
	case field.Address:
		return address(v)
	case field.Email:
		s, err := toString(v)
		if err != nil {
			return resource.Item{}, err
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return resource.Item{}, fmt.Errorf("invalid email %q", s)
		}
		return resource.Item{Value: s}, nil
	default:
		s, err := toString(v)
		if err != nil {
			return resource.Item{}, err
		}
		return resource.Item{Value: s}, nil
	}
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", fmt.Errorf("expected a scalar, got %T", v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case json.Number:
		return x.String() != "0", nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	return false, fmt.Errorf("expected a boolean, got %T", v)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// toTimestamp accepts unix seconds or an ISO-8601 string.
func toTimestamp(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Unix(), nil
			}
		}
		return 0, fmt.Errorf("invalid date %q", s)
	}
	return 0, fmt.Errorf("expected a date, got %T", v)
}

func dateRange(v any) (resource.Item, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return resource.Item{}, fmt.Errorf("daterange must be an object with start and end")
	}
	start, err := toTimestamp(obj["start"])
	if err != nil {
		return resource.Item{}, fmt.Errorf("daterange start: %w", err)
	}
	item := resource.Item{Value: strconv.FormatInt(start, 10)}
	if raw, ok := obj["end"]; ok && raw != nil {
		end, err := toTimestamp(raw)
		if err != nil {
			return resource.Item{}, fmt.Errorf("daterange end: %w", err)
		}
		if end < start {
			return resource.Item{}, fmt.Errorf("daterange ends before it starts")
		}
		item.End = strconv.FormatInt(end, 10)
	}
	return item, nil
}

func link(v any) (resource.Item, error) {
	if s, ok := v.(string); ok {
		return resource.Item{URI: s}, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return resource.Item{}, fmt.Errorf("link must be a string or an object with uri")
	}
	uri, _ := obj["uri"].(string)
	if uri == "" {
		return resource.Item{}, fmt.Errorf("link uri is required")
	}
	title, _ := obj["title"].(string)
	return resource.Item{URI: uri, Title: title}, nil
}

func geo(v any) (resource.Item, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return resource.Item{}, fmt.Errorf("geofield must be an object with lat and lon")
	}
	lat, err := toFloat(obj["lat"])
	if err != nil {
		return resource.Item{}, fmt.Errorf("geofield lat: %w", err)
	}
	lon, err := toFloat(obj["lon"])
	if err != nil {
		return resource.Item{}, fmt.Errorf("geofield lon: %w", err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return resource.Item{}, fmt.Errorf("coordinates out of range")
	}
	return resource.Item{Lat: &lat, Lon: &lon}, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

// address keeps the parts as given; Value joins them for indexing.
func address(v any) (resource.Item, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return resource.Item{}, fmt.Errorf("address must be an object")
	}
	parts := make(map[string]string, len(obj))
	keys := make([]string, 0, len(obj))
	for k, raw := range obj {
		s, err := toString(raw)
		if err != nil {
			return resource.Item{}, fmt.Errorf("address %s: %w", k, err)
		}
		if s == "" {
			continue
		}
		parts[k] = s
		keys = append(keys, k)
	}
	sort.Strings(keys)
	joined := make([]string, 0, len(keys))
	for _, k := range keys {
		joined = append(joined, parts[k])
	}
	return resource.Item{Value: strings.Join(joined, ", "), Address: parts}, nil
}
