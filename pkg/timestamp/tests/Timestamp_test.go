package timestamptests

import "testing"

import "github.com/sirgallo/tso/pkg/timestamp"


func TestBatchWireRoundTrip(t *testing.T) {
	batch := &timestamp.TimestampBatch{
		TbeBaseNanos: 100000000001,
		TsDelta: 8000000,
		TsoId: 1,
		TbeNanoSecStep: 4,
		Count: 3,
		TTLNanos: 8000000,
	}

	encoded := timestamp.EncodeBatch(batch)

	t.Logf("actual encoded size: %d, expected encoded size: %d\n", len(encoded), timestamp.BatchWireSize)
	if len(encoded) != timestamp.BatchWireSize {
		t.Errorf("actual encoded size not equal to expected: actual(%d), expected(%d)\n", len(encoded), timestamp.BatchWireSize)
	}

	decoded, decErr := timestamp.DecodeBatch(encoded)
	if decErr != nil { t.Errorf("decode failed: %s\n", decErr.Error()) }

	if *decoded != *batch {
		t.Errorf("decoded batch not equal to original: actual(%v), expected(%v)\n", *decoded, *batch)
	}
}

func TestDecodeTruncatedBatch(t *testing.T) {
	_, decErr := timestamp.DecodeBatch(make([]byte, timestamp.BatchWireSize - 1))
	if decErr == nil { t.Errorf("expected error decoding truncated batch\n") }
}

func TestBatchExpansion(t *testing.T) {
	batch := &timestamp.TimestampBatch{
		TbeBaseNanos: 100000000001,
		TsDelta: 8000000,
		TsoId: 1,
		TbeNanoSecStep: 4,
		Count: 3,
		TTLNanos: 8000000,
	}

	expanded := batch.Expand()

	expectedTbes := []uint64{ 100000000001, 100000000005, 100000000009 }

	t.Logf("actual count: %d, expected count: %d\n", len(expanded), len(expectedTbes))
	if len(expanded) != len(expectedTbes) {
		t.Errorf("actual count not equal to expected: actual(%d), expected(%d)\n", len(expanded), len(expectedTbes))
	}

	for i, ts := range expanded {
		if ts.TbeNanos != expectedTbes[i] {
			t.Errorf("timestamp %d Tbe not equal to expected: actual(%d), expected(%d)\n", i, ts.TbeNanos, expectedTbes[i])
		}

		expectedTse := expectedTbes[i] - 8000000
		if ts.TseNanos() != expectedTse {
			t.Errorf("timestamp %d Tse not equal to expected: actual(%d), expected(%d)\n", i, ts.TseNanos(), expectedTse)
		}
	}
}
