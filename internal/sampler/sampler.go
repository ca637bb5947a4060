package sampler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"fixture-crawler/internal/components/telemetry"
)

const (
	report_no_entities    = "sampler.no-entities"
	report_missing_states = "sampler.missing-states"
)

// Selection assigns a representative entity to a state tag.
type Selection struct {
	Tag    string
	Entity Entity
}

// AssetName is the identifier of the fixture capturing a selection, e.g.
// "job-running".
func (s Selection) AssetName(kind string) string {
	return fmt.Sprintf("%s-%s", kind, strings.ToLower(s.Tag))
}

// Assign gives each vocabulary tag the first entity carrying it. An entity
// carrying several tags represents all of them.
func Assign(entities []Entity, vocabulary []string) (selected []Selection, missing []string) {
	for _, tag := range vocabulary {
		found := false
		for _, entity := range entities {
			if entity.Has(tag) {
				selected = append(selected, Selection{Tag: tag, Entity: entity})
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, tag)
		}
	}
	return selected, missing
}

type FetchFunc func(ctx context.Context, entity Entity, name string) error

// ByState calls fetch once per covered vocabulary tag with the asset name
// "<kind>-<tag>". An empty entity list is reported and yields no call.
func ByState(
	ctx context.Context,
	tel telemetry.API,
	kind string,
	entities []Entity,
	vocabulary []string,
	fetch FetchFunc,
) error {
	if len(entities) == 0 {
		tel.ReportWarning(report_no_entities, kind)
		return nil
	}

	selected, missing := Assign(entities, vocabulary)
	for _, s := range selected {
		err := fetch(ctx, s.Entity, s.AssetName(kind))
		if err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		tel.ReportWarning(report_missing_states, kind, missing)
	}
	return nil
}

// Bounds returns the smallest and largest numeric index of the entities.
func Bounds(entities []Entity) (lowest int64, highest int64, ok bool) {
	for _, e := range entities {
		if !e.HasIndex {
			continue
		}
		if !ok || e.Index < lowest {
			lowest = e.Index
		}
		if !ok || e.Index > highest {
			highest = e.Index
		}
		ok = true
	}
	return lowest, highest, ok
}

// ArchivedProbe is an index older than every live entity, expected to be
// purged from the live store but known to the accounting store.
func ArchivedProbe(lowest int64) int64 {
	return lowest - 1
}

// UnfoundProbe is an index no entity has reached yet.
func UnfoundProbe(highest int64) int64 {
	return highest * 2
}

// PickBusy returns a uniformly random entity among the busy ones.
func PickBusy(entities []Entity, r *rand.Rand) (Entity, bool) {
	var busy []Entity
	for _, e := range entities {
		if e.Busy() {
			busy = append(busy, e)
		}
	}
	if len(busy) == 0 {
		return Entity{}, false
	}
	return busy[r.IntN(len(busy))], true
}
