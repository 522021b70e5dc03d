package domain

import "time"

// ProviderSchedule holds the collection schedule for one provider.
type ProviderSchedule struct {
	Provider   string     `json:"provider"`
	Expression string     `json:"expression"`
	Timezone   string     `json:"timezone"`
	Active     bool       `json:"active"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Known providers (Dutch retail). The adapter registry is the source of
// truth at runtime; these constants exist for defaults and seeds.
const (
	ProviderAlbertHeijn = "albert_heijn"
	ProviderJumbo       = "jumbo"
	ProviderDirk        = "dirk"
	ProviderEtos        = "etos"
	ProviderHoogvliet   = "hoogvliet"
	ProviderKruidvat    = "kruidvat"
)
