package views

import (
	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

// CacheLine is one way of one cache set.
type CacheLine struct {
	ID    snapshot.ID `json:"id"`
	Index int64       `json:"index"`
	Tag   int64       `json:"tag"`
	Valid bool        `json:"valid"`
	Dirty bool        `json:"dirty"`
	Bytes []int64     `json:"bytes"`
}

// CacheSet holds the ways of one index.
type CacheSet struct {
	Index int         `json:"index"`
	Ways  []CacheLine `json:"ways"`
}

// Cache is the L1 cache grouped by index.
type Cache struct {
	LineSize          int64      `json:"lineSize"`
	IndexBits         int64      `json:"indexBits"`
	OffsetBits        int64      `json:"offsetBits"`
	ReplacementPolicy string     `json:"replacementPolicy"`
	Sets              []CacheSet `json:"sets"`
}

// Cache selects the cache view. The backend already nests lines per index and
// way; the view only types them.
func (s *Selectors) Cache(snap *snapshot.Snapshot) (*Cache, error) {
	v, err := s.memo(snap, "cache", "", func() (interface{}, error) {
		return buildCache(snap)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cache), nil
}

func buildCache(snap *snapshot.Snapshot) (*Cache, error) {
	obj, err := block(snap, snapshot.BlockCache)
	if err != nil {
		return nil, err
	}

	c := &Cache{Sets: []CacheSet{}}
	c.LineSize, _ = obj.Int("lineSize")
	c.IndexBits, _ = obj.Int("indexBits")
	c.OffsetBits, _ = obj.Int("offsetBits")
	c.ReplacementPolicy, _ = obj.Str("replacementPolicyType")

	raw, ok := obj.Get("cache")
	if !ok {
		return c, nil
	}
	sets, ok := deref(snap, raw).(snapshot.Array)
	if !ok {
		return nil, errors.Newf(errors.MalformedSnapshot, "cache lines must be a list, got %s", raw.Kind())
	}

	for i, rawSet := range sets.Items {
		ways, ok := deref(snap, rawSet).(snapshot.Array)
		if !ok {
			return nil, errors.Newf(errors.MalformedSnapshot, "cache set %d must be a list", i)
		}
		set := CacheSet{Index: i, Ways: make([]CacheLine, 0, len(ways.Items))}
		for j, rawLine := range ways.Items {
			line, ok := deref(snap, rawLine).(*snapshot.Object)
			if !ok {
				return nil, errors.Newf(errors.MalformedSnapshot, "cache line %d/%d must be an object", i, j)
			}
			set.Ways = append(set.Ways, cacheLine(snap, line))
		}
		c.Sets = append(c.Sets, set)
	}
	return c, nil
}

func cacheLine(snap *snapshot.Snapshot, obj *snapshot.Object) CacheLine {
	l := CacheLine{ID: obj.ID, Bytes: []int64{}}
	l.Index, _ = obj.Int("index")
	l.Tag, _ = obj.Int("tag")
	l.Valid, _ = obj.Bool("valid")
	l.Dirty, _ = obj.Bool("dirty")
	if raw, ok := obj.Get("decodedLine"); ok {
		if data, ok := deref(snap, raw).(snapshot.Array); ok {
			for _, item := range data.Items {
				if n, ok := item.(snapshot.Number); ok {
					b, _ := n.Int64()
					l.Bytes = append(l.Bytes, b)
				}
			}
		}
	}
	return l
}

func deref(snap *snapshot.Snapshot, v snapshot.Value) snapshot.Value {
	if ref, ok := v.(snapshot.Ref); ok {
		if target, found := snap.Lookup(ref.Target); found {
			return target
		}
	}
	return v
}
