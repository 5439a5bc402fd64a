package portal

import (
	"sort"
	"strings"
	"time"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/dto"
)

// FilterNews keeps published items matching the category and free-text query,
// featured items first, then newest first
func FilterNews(items []*domain.NewsItem, filter *dto.NewsFilter) []*domain.NewsItem {
	category := strings.ToLower(filter.Category)
	query := strings.ToLower(filter.Query)

	out := make([]*domain.NewsItem, 0, len(items))
	for _, item := range items {
		if !item.Published {
			continue
		}
		if category != "" && category != "all" && strings.ToLower(item.Category) != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(item.Title), query) &&
			!strings.Contains(strings.ToLower(item.Summary), query) {
			continue
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Featured != out[j].Featured {
			return out[i].Featured
		}
		return publishedAt(out[i]).After(publishedAt(out[j]))
	})

	return out
}

// pageOf returns the page of items described by filter
func pageOf(items []*domain.NewsItem, filter *dto.NewsFilter) []*domain.NewsItem {
	offset := filter.Offset()
	if offset >= len(items) {
		return []*domain.NewsItem{}
	}
	end := offset + filter.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func publishedAt(item *domain.NewsItem) time.Time {
	if item.PublishedDate == nil {
		return time.Time{}
	}
	return *item.PublishedDate
}
