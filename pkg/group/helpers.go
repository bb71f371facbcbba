package group

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// BroadcastFloat64 broadcasts root's v to every worker.
func BroadcastFloat64(ctx context.Context, ch Channel, v float64, root int) (float64, error) {
	var payload []byte
	if ch.Rank() == root {
		payload = binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
	}
	got, err := ch.Broadcast(ctx, payload, root)
	if err != nil {
		return 0, err
	}
	if len(got) != 8 {
		return 0, fmt.Errorf("broadcast from rank %d: %d-byte payload, want 8", root, len(got))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(got)), nil
}

// GatherJSON gathers one JSON-encodable value per worker at root, ordered by
// rank. Non-root workers receive nil.
func GatherJSON[T any](ctx context.Context, ch Channel, v T, root int) ([]T, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode gather payload: %w", err)
	}
	raw, err := ch.Gather(ctx, payload, root)
	if err != nil {
		return nil, err
	}
	if ch.Rank() != root {
		return nil, nil
	}
	out := make([]T, len(raw))
	for r, b := range raw {
		if err := json.Unmarshal(b, &out[r]); err != nil {
			return nil, fmt.Errorf("decode gather payload from rank %d: %w", r, err)
		}
	}
	return out, nil
}
