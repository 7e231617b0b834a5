package notification

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DeepLink returns where a click on the notification leads: data.url, then
// data.link, then the reservation page for data.reservation_id, then "/".
// Relative links are resolved against baseURL when one is set.
func DeepLink(baseURL string, data map[string]any) string {
	link := "/"
	switch {
	case stringField(data, "url") != "":
		link = stringField(data, "url")
	case stringField(data, "link") != "":
		link = stringField(data, "link")
	case stringField(data, "reservation_id") != "":
		link = "/reservations/" + url.PathEscape(stringField(data, "reservation_id"))
	}

	if baseURL == "" {
		return link
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(ref).String()
}

// stringField reads data[key] as a string. JSON numbers are accepted since
// ids often arrive unquoted.
func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int, int64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}
