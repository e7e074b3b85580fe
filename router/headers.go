package router

import "strings"

// EssentialResponseHeaders is the allow-list of upstream response headers
// worth carrying across the provider wire. Hop-by-hop headers and anything
// connection-specific stay behind.
var EssentialResponseHeaders = []string{
	"content-type",
	"cache-control",
	"x-request-id",
}

// FilterEssentialHeaders copies the entries of h whose names appear in the
// allow-list, comparing case-insensitively and lower-casing the kept names.
func FilterEssentialHeaders(h map[string]string, essential []string) map[string]string {
	filtered := make(map[string]string)
	for name, value := range h {
		lower := strings.ToLower(name)
		for _, want := range essential {
			if lower == want {
				filtered[lower] = value
				break
			}
		}
	}
	return filtered
}
