package timestamp

import "encoding/binary"

import "github.com/cockroachdb/errors"


//=========================================== Timestamp Batch


/*
	expand timestamp i (0 based) out of the batch

	Tbe of the expanded timestamp is TbeBaseNanos + i * TbeNanoSecStep, the
	uncertainty window size and tso id are shared across the whole batch
*/

func (batch *TimestampBatch) At(i uint16) Timestamp {
	return Timestamp{
		TbeNanos: batch.TbeBaseNanos + uint64(i) * uint64(batch.TbeNanoSecStep),
		TsDelta: batch.TsDelta,
		TsoId: batch.TsoId,
		TbeNanoSecStep: batch.TbeNanoSecStep,
	}
}

/*
	expand the full batch into individual timestamps in issue order
*/

func (batch *TimestampBatch) Expand() []Timestamp {
	expanded := make([]Timestamp, batch.Count)
	for i := uint16(0); i < batch.Count; i++ {
		expanded[i] = batch.At(i)
	}

	return expanded
}

// Tse is the start of the uncertainty window
func (ts *Timestamp) TseNanos() uint64 {
	return ts.TbeNanos - uint64(ts.TsDelta)
}

/*
	encode a batch to its fixed little-endian wire layout

		uint64 TbeBaseNanos
		uint32 TsDelta
		uint32 TsoId
		uint16 TbeNanoSecStep
		uint16 Count
		uint32 TTLNanos
*/

func EncodeBatch(batch *TimestampBatch) []byte {
	encoded := make([]byte, BatchWireSize)

	binary.LittleEndian.PutUint64(encoded[0:8], batch.TbeBaseNanos)
	binary.LittleEndian.PutUint32(encoded[8:12], batch.TsDelta)
	binary.LittleEndian.PutUint32(encoded[12:16], batch.TsoId)
	binary.LittleEndian.PutUint16(encoded[16:18], batch.TbeNanoSecStep)
	binary.LittleEndian.PutUint16(encoded[18:20], batch.Count)
	binary.LittleEndian.PutUint32(encoded[20:24], batch.TTLNanos)

	return encoded
}

/*
	decode a batch from its wire layout
*/

func DecodeBatch(encoded []byte) (*TimestampBatch, error) {
	if len(encoded) < BatchWireSize { return nil, errors.Newf("timestamp batch truncated: %d bytes", len(encoded)) }

	return &TimestampBatch{
		TbeBaseNanos: binary.LittleEndian.Uint64(encoded[0:8]),
		TsDelta: binary.LittleEndian.Uint32(encoded[8:12]),
		TsoId: binary.LittleEndian.Uint32(encoded[12:16]),
		TbeNanoSecStep: binary.LittleEndian.Uint16(encoded[16:18]),
		Count: binary.LittleEndian.Uint16(encoded[18:20]),
		TTLNanos: binary.LittleEndian.Uint32(encoded[20:24]),
	}, nil
}
