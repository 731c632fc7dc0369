// Package dedup collapses candidates that describe the same occurrence
// into one canonical event. Merge is deterministic and order-independent:
// candidates are sorted before clustering, so concurrent adapters can
// feed it in any order (and re-running it is a no-op).
package dedup

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"time"

	"techcal/src-server/adapter"
	"techcal/src-server/model"
	"techcal/src-server/normalize"
)

type Options struct {
	// max start delta for two candidates to still be one occurrence;
	// anything further apart is a recurring series, not a duplicate
	Tolerance time.Duration
	// source-kind ranking, higher wins field conflicts
	Rank map[adapter.SourceKind]int
	// retention window applied on top of each event's start
	Retention time.Duration
	// called once per dropped malformed candidate
	Dropped func(c adapter.CandidateEvent, reason string)
}

// RankFromOrder turns the configured priority list (highest first) into
// the rank map Merge consumes.
func RankFromOrder(order []string) map[adapter.SourceKind]int {
	rank := make(map[adapter.SourceKind]int, len(order))
	for i, kind := range order {
		rank[adapter.SourceKind(kind)] = len(order) - i
	}
	return rank
}

// EventID derives the stable identifier from the normalized identity
// fields. Never random: re-ingesting the same logical event must land on
// the same id.
func EventID(titleKey string, start time.Time, ownerKey string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%d|%s", titleKey, start.UTC().Truncate(time.Minute).Unix(), ownerKey)
	return fmt.Sprintf("%x", h.Sum(nil))
}

type keyed struct {
	cand     adapter.CandidateEvent
	titleKey string
	ownerKey string
	rank     int
}

// Merge groups candidates by identity and merges each group into one
// canonical event per occurrence.
func Merge(cands []adapter.CandidateEvent, opts Options) []model.Event {
	drop := opts.Dropped
	if drop == nil {
		drop = func(adapter.CandidateEvent, string) {}
	}

	groups := make(map[string][]keyed)
	for _, c := range cands {
		switch {
		case c.Title == "":
			drop(c, "blank title")
			continue
		case c.Start.IsZero():
			drop(c, "invalid start")
			continue
		case c.Source.Source == "":
			drop(c, "missing provenance")
			continue
		}
		k := keyed{
			cand:     c,
			titleKey: normalize.TitleKey(c.Title),
			ownerKey: normalize.OwnerKey(c),
			rank:     opts.Rank[c.Source.Kind],
		}
		coarse := k.titleKey + "\x00" + k.ownerKey
		groups[coarse] = append(groups[coarse], k)
	}

	events := make([]model.Event, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			if !group[i].cand.Start.Equal(group[j].cand.Start) {
				return group[i].cand.Start.Before(group[j].cand.Start)
			}
			if group[i].rank != group[j].rank {
				return group[i].rank > group[j].rank
			}
			return group[i].cand.Source.Source < group[j].cand.Source.Source
		})

		// cluster by start: a candidate joins the open cluster while it
		// stays within tolerance of the cluster's earliest start
		var cluster []keyed
		for _, k := range group {
			if len(cluster) > 0 && k.cand.Start.Sub(cluster[0].cand.Start) > opts.Tolerance {
				events = append(events, mergeCluster(cluster, opts))
				cluster = nil
			}
			cluster = append(cluster, k)
		}
		if len(cluster) > 0 {
			events = append(events, mergeCluster(cluster, opts))
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].StartUnixUTC != events[j].StartUnixUTC {
			return events[i].StartUnixUTC < events[j].StartUnixUTC
		}
		return events[i].ID < events[j].ID
	})
	return events
}

func mergeCluster(cluster []keyed, opts Options) model.Event {
	winner := cluster[0]
	for _, k := range cluster[1:] {
		if k.rank > winner.rank {
			winner = k
		}
	}

	start := winner.cand.Start.UTC().Truncate(time.Minute)
	event := model.Event{
		ID:               EventID(winner.titleKey, start, winner.ownerKey),
		Title:            winner.cand.Title,
		DisplayTitle:     winner.cand.DisplayTitle,
		StartUnixUTC:     start.Unix(),
		Location:         winner.cand.Location,
		LocationType:     winner.cand.LocationType,
		GroupName:        winner.cand.GroupName,
		GroupWebsite:     winner.cand.GroupWebsite,
		SubmitterName:    winner.cand.SubmitterName,
		SubmitterLink:    winner.cand.SubmitterLink,
		URL:              winner.cand.URL,
		Priority:         winner.rank,
		ExpiresAtUnixUTC: start.Add(opts.Retention).Unix(),
	}

	// backfill blanks from the rest, highest rank first
	rest := make([]keyed, 0, len(cluster))
	rest = append(rest, cluster...)
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].rank != rest[j].rank {
			return rest[i].rank > rest[j].rank
		}
		return rest[i].cand.Source.Source < rest[j].cand.Source.Source
	})
	for _, k := range rest {
		fill(&event.Location, k.cand.Location)
		fill(&event.URL, k.cand.URL)
		fill(&event.GroupName, k.cand.GroupName)
		fill(&event.GroupWebsite, k.cand.GroupWebsite)
		fill(&event.SubmitterName, k.cand.SubmitterName)
		fill(&event.SubmitterLink, k.cand.SubmitterLink)
		if event.LocationType == "" || event.LocationType == string(model.LocationUnknown) {
			if k.cand.LocationType != "" && k.cand.LocationType != string(model.LocationUnknown) {
				event.LocationType = k.cand.LocationType
			}
		}
	}
	if event.LocationType == "" {
		event.LocationType = string(model.LocationUnknown)
	}

	// provenance is the union of every contributing source regardless
	// of who won the fields
	seen := make(map[string]struct{}, len(cluster))
	for _, k := range rest {
		if _, ok := seen[k.cand.Source.Source]; ok {
			continue
		}
		seen[k.cand.Source.Source] = struct{}{}
		event.Sources = append(event.Sources, &model.EventSource{
			SourceName: k.cand.Source.Source,
			Kind:       string(k.cand.Source.Kind),
		})
	}
	sort.Slice(event.Sources, func(i, j int) bool {
		return event.Sources[i].SourceName < event.Sources[j].SourceName
	})

	return event
}

func fill(dst *string, val string) {
	if *dst == "" && val != "" {
		*dst = val
	}
}
