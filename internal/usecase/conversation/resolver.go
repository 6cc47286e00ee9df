package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/speakerid-team/speaker-id/internal/infrastructure/cache"
	errs "github.com/speakerid-team/speaker-id/internal/usecase/errors"
)

// ExistenceProber answers whether an object key is present in the store.
type ExistenceProber interface {
	Exists(ctx context.Context, objectKey string) (bool, error)
}

const resolveCacheTTL = time.Hour

// PathResolver maps a conversation + utterance reference to its effective
// object-store key. Historical ingests used several key layouts (three-digit
// zero padding, two-digit padding, unpadded, off-by-one indices, clips
// stored outside the utterances/ subdirectory), so resolution probes a
// bounded ordered candidate list and returns the first key the store
// reports as present. Hits are cached; resolution never writes.
type PathResolver struct {
	prober ExistenceProber
	cache  cache.Store
	logger *zap.Logger
}

// NewPathResolver creates a resolver over the given store.
func NewPathResolver(prober ExistenceProber, cacheStore cache.Store, logger *zap.Logger) *PathResolver {
	return &PathResolver{
		prober: prober,
		cache:  cacheStore,
		logger: logger,
	}
}

// Candidates builds the ordered key list probed for one utterance reference.
// The order is fixed: the canonical current layout first, then legacy
// layouts from oldest ingest batches.
func Candidates(conversationKey, utteranceKey string) []string {
	raw := strings.TrimSuffix(utteranceKey, ".wav")
	index, hasIndex := parseUtteranceIndex(raw)

	prefix := fmt.Sprintf("conversations/%s/", conversationKey)
	ordered := make([]string, 0, 7)
	add := func(key string) {
		for _, existing := range ordered {
			if existing == key {
				return
			}
		}
		ordered = append(ordered, key)
	}

	if hasIndex {
		add(fmt.Sprintf("%sutterances/utterance_%03d.wav", prefix, index))
	}
	add(fmt.Sprintf("%sutterances/%s.wav", prefix, raw))
	if hasIndex {
		// some batches numbered from 1 instead of 0
		add(fmt.Sprintf("%sutterances/utterance_%03d.wav", prefix, index+1))
		add(fmt.Sprintf("%sutterance_%03d.wav", prefix, index))
	}
	add(fmt.Sprintf("%s%s.wav", prefix, raw))
	if hasIndex {
		add(fmt.Sprintf("%sutterances/utterance_%02d.wav", prefix, index))
		add(fmt.Sprintf("%sutterances/utterance_%d.wav", prefix, index))
	}

	return ordered
}

// parseUtteranceIndex extracts the numeric index from references like
// "utterance_007", "007" or "7".
func parseUtteranceIndex(raw string) (int, bool) {
	digits := strings.TrimPrefix(raw, "utterance_")
	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// Resolve returns the object key holding the utterance's audio, or
// ErrAudioNotFound after the whole candidate list misses.
func (r *PathResolver) Resolve(ctx context.Context, conversationKey, utteranceKey string) (string, error) {
	cacheKey := fmt.Sprintf("resolve:%s:%s", conversationKey, utteranceKey)
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, cacheKey); ok {
			return cached, nil
		}
	}

	var probeErr error
	for _, candidate := range Candidates(conversationKey, utteranceKey) {
		exists, err := r.prober.Exists(ctx, candidate)
		if err != nil {
			// remember the failure but keep probing the rest of the list
			probeErr = err
			continue
		}
		if exists {
			if r.cache != nil {
				r.cache.Set(ctx, cacheKey, candidate, resolveCacheTTL)
			}
			return candidate, nil
		}
	}

	if probeErr != nil {
		return "", fmt.Errorf("audio resolution failed for %s/%s: %w", conversationKey, utteranceKey, probeErr)
	}
	if r.logger != nil {
		r.logger.Warn("❌ Audio not found after probing all key layouts",
			zap.String("conversation_key", conversationKey),
			zap.String("utterance_key", utteranceKey))
	}
	return "", errs.ErrAudioNotFound
}

// ResolveStored probes the utterance's stored object key before falling
// back to the candidate list. Rows ingested with an explicit legacy key may
// sit outside every known layout, so the stored key wins when present. A
// probe failure on the stored key falls through to the list.
func (r *PathResolver) ResolveStored(ctx context.Context, conversationKey, utteranceKey, storedKey string) (string, error) {
	if storedKey != "" {
		exists, err := r.prober.Exists(ctx, storedKey)
		if err == nil && exists {
			return storedKey, nil
		}
	}
	return r.Resolve(ctx, conversationKey, utteranceKey)
}

// InvalidateCached drops a cached resolution, used after deletes.
func (r *PathResolver) InvalidateCached(ctx context.Context, conversationKey, utteranceKey string) {
	if r.cache != nil {
		r.cache.Delete(ctx, fmt.Sprintf("resolve:%s:%s", conversationKey, utteranceKey))
	}
}
