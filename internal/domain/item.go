package domain

// SoldItem is a priced, timestamped sale record indexed for similarity search.
type SoldItem struct {
	TenantID   string
	ProductID  string
	SellerID   string // owning entity; shard assignment keys off this alone
	SoldDate   string // yyyy-mm-dd
	PriceCents int64
	Category   string
	Brand      string // optional
	Condition  string // optional
	Season     string // optional, Q1..Q4
	Source     string // optional
	// EmbeddingKey references the externally stored 1024-dim vector.
	EmbeddingKey string
}

// ScoredItem is a search hit with its cosine similarity score.
type ScoredItem struct {
	Item       SoldItem
	Similarity float64
}
