package dispatch

import (
	"fmt"
	"net/url"
	"strings"

	id "hie-gateway/pkg/domain"
)

// Directory resolves entity ids to webhook base URLs.
type Directory map[id.EntityID]string

// ParseDirectory reads "entity=url,entity=url". Blank input yields an empty
// directory.
func ParseDirectory(raw string) (Directory, error) {
	dir := Directory{}
	for pair := range strings.SplitSeq(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, endpoint, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("entity endpoint %q: expected id=url", pair)
		}
		entity, err := id.ParseEntityID(name)
		if err != nil {
			return nil, fmt.Errorf("entity endpoint %q: %w", pair, err)
		}
		u, err := url.Parse(strings.TrimSpace(endpoint))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("entity endpoint %q: invalid url", pair)
		}
		dir[entity] = strings.TrimRight(u.String(), "/")
	}
	return dir, nil
}

// Resolve returns the base URL for entity.
func (d Directory) Resolve(entity id.EntityID) (string, bool) {
	u, ok := d[entity]
	return u, ok
}
