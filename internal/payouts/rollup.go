package payouts

// CoarseKeyFunc re-keys a fine-grained bucket onto a coarser grouping.
type CoarseKeyFunc func(key int64, b *Bucket) int64

// ByCorporation rolls character-level buckets up to their corporation.
func ByCorporation(_ int64, b *Bucket) int64 {
	return b.CorporationID
}

// Rollup merges buckets into coarser buckets using the same fold rules as
// aggregation: sums add, distinct sets union, windows widen to
// [min start, max end]. The merge is associative, so rolling up an
// already-rolled-up result gives the same totals as rolling up the original
// fine-grained set directly.
func Rollup(buckets map[int64]*Bucket, keyFn CoarseKeyFunc) map[int64]*Bucket {
	out := make(map[int64]*Bucket, len(buckets))
	for key, b := range buckets {
		coarse := keyFn(key, b)
		dst, ok := out[coarse]
		if !ok {
			dst = newBucket()
			dst.CorporationID = b.CorporationID
			out[coarse] = dst
		}
		dst.merge(b)
	}
	return out
}
