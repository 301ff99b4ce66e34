package chunk

// StorageTier classifies where a chunk's bytes live. Tier changes are
// backend concerns; the ledger only records the current placement.
type StorageTier string

const (
	TierHot     StorageTier = "hot"
	TierWarm    StorageTier = "warm"
	TierCold    StorageTier = "cold"
	TierArchive StorageTier = "archive"
)

// IsValid reports whether t is a known storage tier.
func (t StorageTier) IsValid() bool {
	switch t {
	case TierHot, TierWarm, TierCold, TierArchive:
		return true
	}
	return false
}
