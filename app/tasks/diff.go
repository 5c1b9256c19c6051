package tasks

import (
	"slices"

	"github.com/lysyi3m/rss-relay/app/feed"
)

// ChannelDiff is the outcome of comparing a fetched feed with the ledger.
// New keeps feed order; Stale is sorted.
type ChannelDiff struct {
	New   []feed.Item
	Stale []string
}

// Diff returns the items of the live feed that are absent from stored and the
// stored identifiers that are absent from the live feed. Repeated identifiers
// within the feed count once, the first occurrence wins.
func Diff(items []feed.Item, stored []string) ChannelDiff {
	storedSet := make(map[string]struct{}, len(stored))
	for _, guid := range stored {
		storedSet[guid] = struct{}{}
	}

	var diff ChannelDiff
	live := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := live[item.GUID]; dup {
			continue
		}
		live[item.GUID] = struct{}{}

		if _, ok := storedSet[item.GUID]; !ok {
			diff.New = append(diff.New, item)
		}
	}

	for guid := range storedSet {
		if _, ok := live[guid]; !ok {
			diff.Stale = append(diff.Stale, guid)
		}
	}
	slices.Sort(diff.Stale)

	return diff
}
