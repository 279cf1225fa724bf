package loadgen

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
)

const scoreRange = 1_000_000

// generate creates one submission per account with distinct scores, so the
// expected order is total.
func generate(cfg Config) []Submission {
	r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	used := make(map[float64]struct{}, cfg.Accounts)
	out := make([]Submission, cfg.Accounts)
	expire := int64(math.Max(1, cfg.ExpireIn.Seconds()))

	for i := range out {
		score := float64(r.IntN(scoreRange))
		for {
			if _, dup := used[score]; !dup {
				break
			}
			score = float64(r.IntN(scoreRange))
		}
		used[score] = struct{}{}

		account := uuid.NewString()
		out[i] = Submission{
			Account:  account,
			Score:    score,
			Name:     fmt.Sprintf("player-%d", i),
			ExpireIn: expire,
			Profile:  map[string]any{"seq": i},
		}
	}
	return out
}
