package recommend

import (
	"context"
	"sort"
)

// Local scores items by user-user similarity computed in process. Each
// result row is [item, score], best first, ties broken by lower item index.
// Items the user already interacted with are not recommended.
type Local struct{}

// NewLocal returns the in-process recommender.
func NewLocal() *Local { return &Local{} }

// Deterministic is always true.
func (*Local) Deterministic() bool { return true }

// Recommend implements Recommender.
func (*Local) Recommend(ctx context.Context, req Request) (Matrix, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := req.Activity[req.UserIndex]
	items := len(target)

	scores := make([]int64, items)
	for u, row := range req.Activity {
		if int64(u) == req.UserIndex {
			continue
		}
		var sim int64
		for j := range row {
			sim += target[j] * row[j]
		}
		if sim == 0 {
			continue
		}
		for j := range row {
			scores[j] += sim * row[j]
		}
	}

	candidates := make([]int, 0, items)
	for j := 0; j < items; j++ {
		if target[j] == 0 {
			candidates = append(candidates, j)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return scores[candidates[a]] > scores[candidates[b]]
	})

	n := int(req.K)
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make(Matrix, n)
	for i := 0; i < n; i++ {
		j := candidates[i]
		out[i] = []int64{int64(j), scores[j]}
	}
	return out, nil
}
