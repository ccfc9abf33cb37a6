package domain

// CandidateFilter narrows candidate selection for vector search. From/To
// bound the sold date window (inclusive, yyyy-mm-dd). Category and Season,
// when set, are post-filters applied after the shard merge: neither is part
// of the embedding index key.
type CandidateFilter struct {
	From     string
	To       string
	Category string
	Season   string
}

// CandidateSet is a partial-tolerant candidate selection. Degraded is true
// when some shards failed and the set is incomplete.
type CandidateSet struct {
	Items    []SoldItem
	Degraded bool
}
