package homepage

import (
	"errors"
	"slices"
	"strings"
)

// ErrNoBookmarks is returned when a config holds no usable entry.
var ErrNoBookmarks = errors.New("no valid bookmarks found in config")

// MapDrafts flattens config into drafts, in file order for categories and
// name order within a category. Entries without href are skipped; the
// title is abbr when set, the bookmark name otherwise.
func MapDrafts(config BookmarksConfig) ([]Draft, error) {
	drafts := make([]Draft, 0)

	for _, category := range config {
		for _, categoryName := range sortedKeys(category) {
			for _, bookmarkMap := range category[categoryName] {
				for _, name := range sortedKeys(bookmarkMap) {
					entries := bookmarkMap[name]
					if len(entries) == 0 {
						continue
					}
					entry := entries[0]

					href := strings.TrimSpace(entry.Href)
					if href == "" {
						continue
					}

					title := strings.TrimSpace(entry.Abbr)
					if title == "" {
						title = name
					}

					drafts = append(drafts, Draft{
						Title:    title,
						URL:      href,
						Category: categoryName,
					})
				}
			}
		}
	}

	if len(drafts) == 0 {
		return nil, ErrNoBookmarks
	}

	return drafts, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
