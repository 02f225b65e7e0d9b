package vectorstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// searchOversample is the factor by which the local index over-fetches
// candidates before applying the scope filter.
const searchOversample = 3

// metaExt is appended to the index path to locate the mapping bundle.
const metaExt = ".meta"

// LocalIndex is the in-process flat similarity index. Vectors are
// normalized to unit length on upsert and on query so that inner-product
// search is equivalent to cosine similarity.
//
// The index is append-only: an update is a delete followed by a reinsert
// under a fresh slot, and deleted slots are never reclaimed, so the slot
// file grows with unique-id churn rather than with current content. A
// search issued between the delete and the reinsert of the same id may
// observe neither vector.
type LocalIndex struct {
	indexPath string
	metaPath  string
	dim       int
	saveEvery int

	// saveMu serializes whole save cycles so two concurrent saves
	// cannot cross-rename and pair a newer bundle with older slots.
	saveMu sync.Mutex

	mu       sync.RWMutex
	vectors  [][]float32 // slot-indexed, unit-normalized
	metadata map[string]Payload
	idToIdx  map[string]int
	idxToID  map[int]string
	nextIdx  int
	upserts  int // since last persistence
}

// persistedVectors is the on-disk form of the slot file.
type persistedVectors struct {
	Dim     int
	Vectors [][]float32
}

// metaBundle is the on-disk form of the mapping bundle.
type metaBundle struct {
	Metadata map[string]Payload `json:"metadata"`
	IDToIdx  map[string]int     `json:"id_to_idx"`
	IdxToID  map[int]string     `json:"idx_to_id"`
	NextIdx  int                `json:"next_idx"`
}

// LocalOptions configures a LocalIndex.
type LocalOptions struct {
	// IndexPath is the slot file path; the mapping bundle is stored next
	// to it with a .meta extension.
	IndexPath string
	// Dim is the fixed vector dimension for the lifetime of the index.
	Dim int
	// SaveEvery persists the pair after this many upserts. Zero disables
	// periodic persistence; Close still persists unconditionally.
	SaveEvery int
}

// NewLocalIndex creates a local flat index. Call Ensure before use to
// load any previously persisted state.
func NewLocalIndex(opts LocalOptions) (*LocalIndex, error) {
	if opts.IndexPath == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive: %d", opts.Dim)
	}

	return &LocalIndex{
		indexPath: opts.IndexPath,
		metaPath:  opts.IndexPath + metaExt,
		dim:       opts.Dim,
		saveEvery: opts.SaveEvery,
		metadata:  make(map[string]Payload),
		idToIdx:   make(map[string]int),
		idxToID:   make(map[int]string),
	}, nil
}

// Ensure loads the persisted index/metadata pair if present. Unreadable
// or structurally invalid files are renamed to a backup path and the
// index starts empty; load problems never propagate past Ensure.
func (x *LocalIndex) Ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(x.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	_, indexErr := os.Stat(x.indexPath)
	_, metaErr := os.Stat(x.metaPath)
	if indexErr != nil || metaErr != nil {
		if indexErr == nil || metaErr == nil {
			// Half a pair is unusable evidence; preserve it.
			logger.Warn("incomplete index pair on disk, starting fresh",
				zap.String("index", x.indexPath))
			x.backupCorrupted()
		}
		logger.Info("local index created", zap.Int("dim", x.dim))
		return nil
	}

	if err := x.load(); err != nil {
		logger.Error("failed to load local index, starting fresh",
			zap.String("index", x.indexPath), zap.Error(err))
		x.backupCorrupted()
		x.mu.Lock()
		x.reset()
		x.mu.Unlock()
		return nil
	}

	x.mu.RLock()
	count := len(x.metadata)
	x.mu.RUnlock()
	logger.Info("local index loaded", zap.Int("vectors", count))
	return nil
}

func (x *LocalIndex) reset() {
	x.vectors = nil
	x.metadata = make(map[string]Payload)
	x.idToIdx = make(map[string]int)
	x.idxToID = make(map[int]string)
	x.nextIdx = 0
	x.upserts = 0
}

func (x *LocalIndex) load() error {
	indexData, err := os.ReadFile(x.indexPath)
	if err != nil {
		return fmt.Errorf("failed to read slot file: %w", err)
	}
	var pv persistedVectors
	if err := gob.NewDecoder(bytes.NewReader(indexData)).Decode(&pv); err != nil {
		return fmt.Errorf("failed to decode slot file: %w", err)
	}
	if pv.Dim != x.dim {
		return fmt.Errorf("persisted dimension %d does not match configured %d", pv.Dim, x.dim)
	}

	metaData, err := os.ReadFile(x.metaPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata bundle: %w", err)
	}
	var bundle metaBundle
	if err := json.Unmarshal(metaData, &bundle); err != nil {
		return fmt.Errorf("failed to decode metadata bundle: %w", err)
	}
	if bundle.Metadata == nil || bundle.IDToIdx == nil || bundle.IdxToID == nil {
		return fmt.Errorf("metadata bundle missing required maps")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.vectors = pv.Vectors
	x.metadata = bundle.Metadata
	x.idToIdx = bundle.IDToIdx
	x.idxToID = bundle.IdxToID
	x.nextIdx = bundle.NextIdx
	x.upserts = 0

	// A bundle may reference slots the slot file does not hold, for
	// example after a crash between the two renames. Such ids cannot be
	// searched; drop them so the live maps only point at real vectors.
	for slot, id := range x.idxToID {
		if slot >= 0 && slot < len(x.vectors) {
			continue
		}
		logger.Warn("dropping id with no persisted vector",
			zap.String("id", id), zap.Int("slot", slot))
		delete(x.idxToID, slot)
		delete(x.idToIdx, id)
		delete(x.metadata, id)
	}

	// Drift between the bookkeeping maps is a warning, not a failure:
	// the loaded state is still used.
	for _, issue := range CheckConsistency(len(x.metadata), len(x.idToIdx), len(x.idxToID)) {
		logger.Warn("local index consistency issue", zap.String("issue", issue))
	}
	if len(x.vectors) != x.nextIdx {
		logger.Warn("persisted slot count does not match counter",
			zap.Int("slots", len(x.vectors)), zap.Int("next_idx", x.nextIdx))
		// Upsert appends, so the counter must match the slice length.
		x.nextIdx = len(x.vectors)
	}
	return nil
}

// backupCorrupted renames the persisted pair so the evidence survives
// recovery. Rename failures are logged and otherwise ignored.
func (x *LocalIndex) backupCorrupted() {
	for _, path := range []string{x.indexPath, x.metaPath} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		backup := path + ".corrupt"
		if err := os.Rename(path, backup); err != nil {
			logger.Error("failed to back up corrupted index file",
				zap.String("path", path), zap.Error(err))
		} else {
			logger.Warn("corrupted index file preserved", zap.String("backup", backup))
		}
	}
}

// Upsert inserts or replaces the vector and payload for id. An existing
// id is removed first and reinserted under a fresh slot; the old slot is
// retained but unreachable.
func (x *LocalIndex) Upsert(ctx context.Context, id string, vector []float32, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := SanitizeID(id)
	if err != nil {
		return err
	}
	if err := ValidateVector(vector, x.dim, id); err != nil {
		return err
	}
	if err := ValidatePayload(payload); err != nil {
		return err
	}

	vec := Normalize(vector)

	x.mu.Lock()
	if slot, ok := x.idToIdx[id]; ok {
		delete(x.metadata, id)
		delete(x.idToIdx, id)
		delete(x.idxToID, slot)
	}

	slot := x.nextIdx
	x.nextIdx++
	x.vectors = append(x.vectors, vec)
	x.metadata[id] = payload
	x.idToIdx[id] = slot
	x.idxToID[slot] = id

	x.upserts++
	needSave := x.saveEvery > 0 && x.upserts%x.saveEvery == 0
	x.mu.Unlock()

	if needSave {
		if err := x.save(); err != nil {
			logger.Error("periodic index persistence failed", zap.Error(err))
		}
	}
	return nil
}

// Delete removes the id's mapping and payload. The slot itself is never
// reclaimed. Returns whether an entry existed.
func (x *LocalIndex) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	id, err := SanitizeID(id)
	if err != nil {
		return false, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	slot, ok := x.idToIdx[id]
	if !ok {
		return false, nil
	}
	delete(x.metadata, id)
	delete(x.idToIdx, id)
	delete(x.idxToID, slot)
	return true, nil
}

// Search returns up to k hits ordered by descending inner-product score.
// It over-fetches searchOversample*k candidates to compensate for filter
// rejection, then applies flt and truncates to k.
func (x *LocalIndex) Search(ctx context.Context, vector []float32, k int, flt *Filter) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateSearchParams(vector, k, x.dim); err != nil {
		return nil, err
	}

	q := Normalize(vector)

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.idToIdx) == 0 {
		return nil, nil
	}

	type candidate struct {
		slot  int
		score float64
	}
	candidates := make([]candidate, 0, len(x.idxToID))
	for slot := range x.idxToID {
		vec := x.vectors[slot]
		var dot float64
		for i := range q {
			dot += float64(q[i] * vec[i])
		}
		candidates = append(candidates, candidate{slot: slot, score: dot})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].slot < candidates[j].slot
	})

	searchK := k * searchOversample
	if searchK > len(candidates) {
		searchK = len(candidates)
	}

	hits := make([]Hit, 0, k)
	for _, cand := range candidates[:searchK] {
		id := x.idxToID[cand.slot]
		payload, ok := x.metadata[id]
		if !ok {
			continue
		}
		if !flt.Matches(payload) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: cand.score, Payload: payload})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

// Compact rebuilds the slot file keeping only live ids, reclaiming the
// space left by deletes and replaced entries. It is never triggered
// automatically and must be invoked explicitly.
func (x *LocalIndex) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	vectors := make([][]float32, 0, len(x.idToIdx))
	idToIdx := make(map[string]int, len(x.idToIdx))
	idxToID := make(map[int]string, len(x.idToIdx))

	ids := make([]string, 0, len(x.idToIdx))
	for id := range x.idToIdx {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		slot := len(vectors)
		vectors = append(vectors, x.vectors[x.idToIdx[id]])
		idToIdx[id] = slot
		idxToID[slot] = id
	}

	reclaimed := x.nextIdx - len(vectors)
	x.vectors = vectors
	x.idToIdx = idToIdx
	x.idxToID = idxToID
	x.nextIdx = len(vectors)
	x.mu.Unlock()

	logger.Info("local index compacted", zap.Int("reclaimed_slots", reclaimed))
	return x.save()
}

// save persists the index and metadata bundle as an atomic pair: both
// files are written to temporary paths and renamed together. Encoding
// happens under the read lock so a concurrent upsert cannot produce an
// inconsistent snapshot, and saveMu keeps concurrent save cycles from
// interleaving their renames.
func (x *LocalIndex) save() error {
	x.saveMu.Lock()
	defer x.saveMu.Unlock()

	x.mu.RLock()
	var indexBuf bytes.Buffer
	err := gob.NewEncoder(&indexBuf).Encode(persistedVectors{Dim: x.dim, Vectors: x.vectors})
	var metaData []byte
	if err == nil {
		metaData, err = json.Marshal(metaBundle{
			Metadata: x.metadata,
			IDToIdx:  x.idToIdx,
			IdxToID:  x.idxToID,
			NextIdx:  x.nextIdx,
		})
	}
	x.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode index state: %w", err)
	}

	indexTmp := x.indexPath + ".tmp"
	metaTmp := x.metaPath + ".tmp"
	if err := os.WriteFile(indexTmp, indexBuf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write slot file: %w", err)
	}
	if err := os.WriteFile(metaTmp, metaData, 0644); err != nil {
		return fmt.Errorf("failed to write metadata bundle: %w", err)
	}
	if err := os.Rename(indexTmp, x.indexPath); err != nil {
		return fmt.Errorf("failed to replace slot file: %w", err)
	}
	if err := os.Rename(metaTmp, x.metaPath); err != nil {
		return fmt.Errorf("failed to replace metadata bundle: %w", err)
	}

	logger.Debug("local index persisted", zap.String("path", x.indexPath))
	return nil
}

// Status reports backend statistics.
func (x *LocalIndex) Status(ctx context.Context) map[string]any {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return map[string]any{
		"backend":    "local",
		"index_path": x.indexPath,
		"dim":        x.dim,
		"count":      len(x.metadata),
		"slots":      x.nextIdx,
	}
}

// Close persists the pair unconditionally.
func (x *LocalIndex) Close() error {
	return x.save()
}

var _ Index = (*LocalIndex)(nil)
