package search

import (
	"fmt"
	"strings"
	"time"
)

// AlertFilter narrows an alert search
type AlertFilter struct {
	SubscriptionID string
	Severities     []string
	Statuses       []string
	Since          *time.Time
	Limit          int64
	Offset         int64
}

// String renders the Meilisearch filter expression, or "" when nothing is set
func (f AlertFilter) String() string {
	var filters []string

	if f.SubscriptionID != "" {
		filters = append(filters, fmt.Sprintf("subscription_id = %s", quote(f.SubscriptionID)))
	}
	if len(f.Severities) > 0 {
		filters = append(filters, anyOf("severity", f.Severities))
	}
	if len(f.Statuses) > 0 {
		filters = append(filters, anyOf("status", f.Statuses))
	}
	if f.Since != nil {
		filters = append(filters, fmt.Sprintf("created_at >= %d", f.Since.Unix()))
	}

	return strings.Join(filters, " AND ")
}

func anyOf(field string, values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%s = %s", field, quote(v))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, " OR "))
}

// quote wraps a value in double quotes, escaping embedded quotes
func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
