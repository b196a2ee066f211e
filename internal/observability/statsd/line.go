package statsd

import (
	"sort"
	"strconv"
	"strings"
)

// lineFormat renders "prefix.name:value|kind|#k:v,..." with tags sorted by key.
type lineFormat struct {
	prefix string
	global map[string]string
}

func newLineFormat(prefix string, global map[string]string) lineFormat {
	return lineFormat{
		prefix: strings.Trim(strings.TrimSpace(prefix), "."),
		global: cloneTags(global),
	}
}

func (f lineFormat) line(name, value, kind string, tags map[string]string) (string, bool) {
	metric := f.metricName(name)
	if metric == "" {
		return "", false
	}
	var b strings.Builder
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)
	b.WriteString(f.tags(tags))
	return b.String(), true
}

func (f lineFormat) metricName(name string) string {
	n := normalizeMetricName(name)
	switch {
	case n == "":
		return ""
	case f.prefix == "":
		return n
	default:
		return f.prefix + "." + n
	}
}

// normalizeMetricName maps spaces and slashes to underscores and collapses empty segments.
func normalizeMetricName(name string) string {
	n := strings.NewReplacer(" ", "_", "/", "_").Replace(strings.TrimSpace(name))
	parts := strings.Split(n, ".")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

// tags merges per-call tags over the global ones. Empty keys are dropped.
func (f lineFormat) tags(local map[string]string) string {
	if len(f.global) == 0 && len(local) == 0 {
		return ""
	}
	merged := cloneTags(f.global)
	for k, v := range cloneTags(local) {
		merged[k] = v
	}
	if len(merged) == 0 {
		return ""
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ":" + merged[k]
	}
	return "|#" + strings.Join(pairs, ",")
}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
