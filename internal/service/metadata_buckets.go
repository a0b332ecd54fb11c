package service

import (
	"fmt"
)

// External payment providers cap metadata values at a fixed byte size per
// key. PackMetadataBuckets serializes a list of small records into numbered
// key/value buckets, each under the byte ceiling, independent of any
// provider-specific constraint.

// MetadataBudget describes the key/value budget of an external metadata field.
type MetadataBudget struct {
	KeyPrefix  string // buckets are named <prefix>0, <prefix>1, ...
	MaxBuckets int
	BucketSize int // byte ceiling per bucket value
	Separator  string
}

// ErrMetadataOverflow is returned when the records do not fit the budget.
type ErrMetadataOverflow struct {
	Records int
	Packed  int
}

func (e *ErrMetadataOverflow) Error() string {
	return fmt.Sprintf("metadata budget exceeded: packed %d of %d records", e.Packed, e.Records)
}

// PackMetadataBuckets packs records into buckets under the budget. Records
// are never split across buckets; a record larger than a whole bucket, or
// more records than the budget can hold, yields ErrMetadataOverflow with the
// buckets packed so far.
func PackMetadataBuckets(records []string, budget MetadataBudget) (map[string]string, error) {
	buckets := make(map[string]string)
	if len(records) == 0 {
		return buckets, nil
	}

	sep := budget.Separator
	if sep == "" {
		sep = ";"
	}

	current := ""
	bucket := 0
	packed := 0

	flush := func() {
		if current != "" {
			buckets[fmt.Sprintf("%s%d", budget.KeyPrefix, bucket)] = current
			bucket++
			current = ""
		}
	}

	for _, record := range records {
		if len(record) > budget.BucketSize {
			flush()
			return buckets, &ErrMetadataOverflow{Records: len(records), Packed: packed}
		}

		candidate := record
		if current != "" {
			candidate = current + sep + record
		}

		if len(candidate) > budget.BucketSize {
			flush()
			if bucket >= budget.MaxBuckets {
				return buckets, &ErrMetadataOverflow{Records: len(records), Packed: packed}
			}
			candidate = record
		}

		current = candidate
		packed++
	}

	if bucket >= budget.MaxBuckets && current != "" {
		return buckets, &ErrMetadataOverflow{Records: len(records), Packed: packed - 1}
	}
	flush()
	return buckets, nil
}
