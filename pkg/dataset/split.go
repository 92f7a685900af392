package dataset

import (
	"fmt"
	"hash/fnv"
)

// Split names a partition of a dataset.
type Split string

const (
	// SplitTrain is the training partition
	SplitTrain Split = "train"
	// SplitEval is the evaluation partition
	SplitEval Split = "eval"
	// SplitAll disables split filtering
	SplitAll Split = "all"
)

// ParseSplit converts a string into a Split.
func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case SplitTrain:
		return SplitTrain, nil
	case SplitEval:
		return SplitEval, nil
	case "", SplitAll:
		return SplitAll, nil
	default:
		return "", fmt.Errorf("unknown split: %s", s)
	}
}

// SplitSpec defines a deterministic hash-based train/eval split. The
// hash expression is evaluated server-side with FARM_FINGERPRINT so
// that repeated queries assign every row to the same bucket. Rows in
// buckets [0, TrainBuckets) form the training set; the rest form the
// evaluation set. The two sets are disjoint and together cover all rows.
type SplitSpec struct {
	// HashExpr is a SQL expression producing an INT64 hash for a row,
	// e.g. FARM_FINGERPRINT(CAST(pickup_datetime AS STRING))
	HashExpr string
	// Buckets is the total number of hash buckets
	Buckets int
	// TrainBuckets is the number of buckets assigned to training
	TrainBuckets int
}

// Predicate renders the SQL WHERE predicate selecting the split.
// SplitAll returns an empty string.
func (s SplitSpec) Predicate(split Split) string {
	if split == SplitAll {
		return ""
	}

	bucket := fmt.Sprintf("ABS(MOD(%s, %d))", s.HashExpr, s.Buckets)
	if split == SplitTrain {
		return fmt.Sprintf("%s < %d", bucket, s.TrainBuckets)
	}
	return fmt.Sprintf("%s >= %d", bucket, s.TrainBuckets)
}

// LocalBucket assigns a key to a hash bucket client-side. It is used to
// split rows read from local files, where no SQL engine is available.
// FNV-64a is stable across runs and platforms, so the assignment is
// deterministic for a given key.
func LocalBucket(key string, buckets int) int {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(buckets))
}

// LocalSplit assigns a key to a split client-side using LocalBucket.
func (s SplitSpec) LocalSplit(key string) Split {
	if LocalBucket(key, s.Buckets) < s.TrainBuckets {
		return SplitTrain
	}
	return SplitEval
}
