package segment

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"

	"github.com/openpref/preflearn/internal/envs"
)

// #region clip-length

// ClipSteps converts a clip length in seconds to environment steps.
func ClipSteps(clipSeconds, fps float64) int {
	n := int(math.Ceil(clipSeconds * fps))
	if n < 1 {
		n = 1
	}
	return n
}

// #endregion clip-length

// #region sampler

// SampleRandRollouts draws nSegments clips from uniform-random-action
// rollouts of envID, parallelized across workers. Workers share no
// mutable state; only the final append into the result serializes.
func SampleRandRollouts(ctx context.Context, envID string, nSegments int, clipSeconds float64, workers int, seed int64) ([]*Segment, error) {
	if nSegments <= 0 {
		return nil, fmt.Errorf("segment count must be > 0, got %d", nSegments)
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > nSegments {
		workers = nSegments
	}

	// Probe once so all workers agree on the clip length.
	probe, err := envs.Make(envID, seed)
	if err != nil {
		return nil, fmt.Errorf("sample rollouts: %w", err)
	}
	clipLen := ClipSteps(clipSeconds, probe.FPS())

	var (
		mu       sync.Mutex
		segments []*Segment
		wg       sync.WaitGroup
		firstErr error
	)

	quota := make([]int, workers)
	for i := 0; i < nSegments; i++ {
		quota[i%workers]++
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker, want int) {
			defer wg.Done()
			env, err := envs.Make(envID, seed+int64(worker)+1)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			rng := rand.New(rand.NewSource(seed + int64(worker)*1000))
			segs := rolloutSegments(ctx, env, rng, envID, want, clipLen, worker)
			mu.Lock()
			segments = append(segments, segs...)
			mu.Unlock()
		}(w, quota[w])
	}
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("sample rollouts: %w", firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(segments) < nSegments {
		return nil, fmt.Errorf("sample rollouts: only %d/%d segments collected; clip length %d steps may exceed typical %s episodes",
			len(segments), nSegments, clipLen, envID)
	}
	log.Printf("[SAMPLE] collected %d segments of %d steps from %s", len(segments), clipLen, envID)
	return segments, nil
}

// rolloutSegments runs uniform-random episodes and chops them into
// contiguous clips of clipLen steps, discarding each episode's short tail.
func rolloutSegments(ctx context.Context, env envs.Env, rng *rand.Rand, envID string, want, clipLen, worker int) []*Segment {
	// Bail out if the env keeps producing episodes shorter than one clip,
	// otherwise a too-long clip length would spin here forever.
	const maxBarrenEpisodes = 500

	segments := make([]*Segment, 0, want)
	episode := 0
	barren := 0
	for len(segments) < want {
		if ctx.Err() != nil || barren >= maxBarrenEpisodes {
			return segments
		}
		episode++
		obs := env.Reset()
		steps := make([]Step, 0, env.MaxEpisodeSteps())
		for {
			action := rng.Intn(env.NumActions())
			next, reward, done := env.Step(action)
			steps = append(steps, Step{Obs: obs, Action: action, Reward: reward})
			obs = next
			if done {
				break
			}
		}
		if len(steps) < clipLen {
			barren++
			continue
		}
		barren = 0
		for start := 0; start+clipLen <= len(steps) && len(segments) < want; start += clipLen {
			clip := append([]Step(nil), steps[start:start+clipLen]...)
			segments = append(segments, NewSegment(envID, env.ObsShape(), env.NumActions(), clip, episode, worker))
		}
	}
	return segments
}

// #endregion sampler
