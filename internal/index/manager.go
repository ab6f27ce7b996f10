package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nkosler/opsdesk/internal/docs"
)

// Embedder turns texts into fixed-dimension vectors. One call per batch;
// failures are per-call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// fallbackDim sizes zero-vector substitutes when no embedding call has
// succeeded yet and the true dimension is unknown.
const fallbackDim = 768

// DomainSource describes where one domain's documents live and which file
// types it ingests.
type DomainSource struct {
	Path       string
	Extensions []string
}

// Options configures a Manager.
type Options struct {
	Sources        map[Domain]DomainSource
	CacheDir       string
	ChunkSize      int
	ChunkOverlap   int
	MinChunkChars  int
	EmbedBatchSize int
	EmbedBatchGap  time.Duration
	TopK           int
	ContextBudget  int
}

// DefaultSources returns the standard domain layout: finance ingests PDFs
// only, IT ingests markdown, text, PDF, and Word documents.
func DefaultSources(itPath, financePath string) map[Domain]DomainSource {
	return map[Domain]DomainSource{
		DomainIT:      {Path: itPath, Extensions: []string{".md", ".txt", ".pdf", ".docx"}},
		DomainFinance: {Path: financePath, Extensions: []string{".pdf"}},
	}
}

// Status describes a domain index's current state.
type Status struct {
	Domain   Domain `json:"domain"`
	State    string `json:"state"` // "uninitialized" or "ready"
	Chunks   int    `json:"chunks"`
	Degraded bool   `json:"degraded"`
}

// Manager owns the per-domain index lifecycle: lazy initialization from cache
// or source documents, top-K search, and explicit refresh. Initialization and
// rebuild are serialized per domain; once a snapshot is installed, reads are
// safe for unbounded concurrent callers.
type Manager struct {
	embedder Embedder
	opts     Options
	splitter *docs.Splitter
	logger   *slog.Logger

	group singleflight.Group // collapses concurrent Ensure calls per domain

	mu        sync.RWMutex
	snapshots map[Domain]*Snapshot

	buildMu map[Domain]*sync.Mutex // serializes build/refresh per domain
}

// NewManager creates a Manager. Zero option fields get sensible defaults.
func NewManager(embedder Embedder, opts Options) *Manager {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = 200
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = 50
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 10
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 4000
	}

	buildMu := make(map[Domain]*sync.Mutex, len(opts.Sources))
	for d := range opts.Sources {
		buildMu[d] = &sync.Mutex{}
	}

	return &Manager{
		embedder:  embedder,
		opts:      opts,
		splitter:  docs.NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		logger:    slog.Default(),
		snapshots: make(map[Domain]*Snapshot),
		buildMu:   buildMu,
	}
}

// Ensure initializes the domain index if needed: load from cache when an
// artifact exists, otherwise build from source documents. Concurrent callers
// for the same domain share a single initialization.
func (m *Manager) Ensure(ctx context.Context, domain Domain) error {
	if !domain.Valid() {
		return fmt.Errorf("unsupported domain %q", domain)
	}

	m.mu.RLock()
	_, ready := m.snapshots[domain]
	m.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := m.group.Do(string(domain), func() (interface{}, error) {
		// Another waiter may have finished initialization already.
		m.mu.RLock()
		_, ready := m.snapshots[domain]
		m.mu.RUnlock()
		if ready {
			return nil, nil
		}
		return nil, m.initDomain(ctx, domain)
	})
	return err
}

// EnsureAll eagerly initializes every configured domain.
func (m *Manager) EnsureAll(ctx context.Context) error {
	for d := range m.opts.Sources {
		if err := m.Ensure(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// domainMu returns the build mutex for a domain, creating it on first use.
// Valid domains absent from opts.Sources still get a mutex; build rejects
// them with a clear error instead of a nil dereference here.
func (m *Manager) domainMu(domain Domain) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mu, ok := m.buildMu[domain]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.buildMu[domain] = mu
	return mu
}

func (m *Manager) initDomain(ctx context.Context, domain Domain) error {
	mu := m.domainMu(domain)
	mu.Lock()
	defer mu.Unlock()

	snap, err := LoadSnapshot(m.opts.CacheDir, domain)
	if err == nil {
		m.logger.Info("loaded index from cache", "domain", domain, "chunks", len(snap.Chunks), "degraded", snap.Degraded)
		m.install(domain, snap)
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		// Corrupt or unreadable cache: rebuild from source, never partial recovery.
		m.logger.Warn("index cache unusable, rebuilding", "domain", domain, "error", err)
	}
	return m.build(ctx, domain)
}

// Refresh deletes the domain's cache artifact and rebuilds from current
// source files. Serialized with any in-flight build for the same domain.
func (m *Manager) Refresh(ctx context.Context, domain Domain) error {
	if !domain.Valid() {
		return fmt.Errorf("unsupported domain %q", domain)
	}

	mu := m.domainMu(domain)
	mu.Lock()
	defer mu.Unlock()

	if err := RemoveCache(m.opts.CacheDir, domain); err != nil {
		return err
	}
	return m.build(ctx, domain)
}

// RefreshAll refreshes every configured domain.
func (m *Manager) RefreshAll(ctx context.Context) error {
	for d := range m.opts.Sources {
		if err := m.Refresh(ctx, d); err != nil {
			return fmt.Errorf("refreshing %s: %w", d, err)
		}
	}
	return nil
}

// build ingests the domain's source documents, embeds their chunks, and
// installs a new snapshot. Caller holds the domain build mutex.
func (m *Manager) build(ctx context.Context, domain Domain) error {
	src, ok := m.opts.Sources[domain]
	if !ok {
		return fmt.Errorf("no document source configured for domain %q", domain)
	}

	files, err := docs.ListSupported(src.Path, src.Extensions)
	if err != nil {
		return err
	}

	var chunks []docs.Chunk
	for _, path := range files {
		text, err := docs.ExtractText(path)
		if err != nil {
			m.logger.Error("failed to extract document text", "domain", domain, "file", path, "error", err)
			continue
		}
		fileChunks := docs.ChunksFromText(text, filepath.Base(path), m.splitter, m.opts.MinChunkChars)
		m.logger.Info("processed document", "domain", domain, "file", filepath.Base(path), "chunks", len(fileChunks))
		chunks = append(chunks, fileChunks...)
	}

	if len(chunks) == 0 {
		m.logger.Warn("no chunks extracted, domain index is empty", "domain", domain, "files", len(files))
		m.install(domain, &Snapshot{})
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, degraded := m.embedAll(ctx, texts)
	for i := range vectors {
		vectors[i] = Normalize(vectors[i])
	}

	snap := &Snapshot{Vectors: vectors, Chunks: chunks, Degraded: degraded}
	m.install(domain, snap)

	if err := SaveSnapshot(m.opts.CacheDir, domain, snap); err != nil {
		m.logger.Error("failed to persist index cache", "domain", domain, "error", err)
	} else {
		m.logger.Info("built index", "domain", domain, "chunks", len(chunks), "degraded", degraded)
	}
	return nil
}

// embedAll embeds texts in capped batches with a small gap between backend
// calls. A failed batch degrades to zero vectors instead of aborting the
// build; the returned flag reports whether any substitution happened.
func (m *Manager) embedAll(ctx context.Context, texts []string) ([][]float32, bool) {
	vectors := make([][]float32, 0, len(texts))
	degraded := false
	dim := 0

	for start := 0; start < len(texts); start += m.opts.EmbedBatchSize {
		end := start + m.opts.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if start > 0 && m.opts.EmbedBatchGap > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(m.opts.EmbedBatchGap):
			}
		}

		vecs, err := m.embedder.Embed(ctx, batch)
		if err != nil || len(vecs) != len(batch) {
			if err != nil {
				m.logger.Error("embedding batch failed, substituting zero vectors", "batch_start", start, "error", err)
			} else {
				m.logger.Error("embedding batch returned wrong count, substituting zero vectors", "batch_start", start, "got", len(vecs), "want", len(batch))
			}
			degraded = true
			d := dim
			if d == 0 {
				d = fallbackDim
			}
			for range batch {
				vectors = append(vectors, make([]float32, d))
			}
			continue
		}

		if dim == 0 && len(vecs) > 0 {
			dim = len(vecs[0])
		}
		vectors = append(vectors, vecs...)
	}

	return vectors, degraded
}

// install atomically replaces the domain's snapshot.
func (m *Manager) install(domain Domain, snap *Snapshot) {
	m.mu.Lock()
	m.snapshots[domain] = snap
	m.mu.Unlock()
}

func (m *Manager) snapshot(domain Domain) *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[domain]
}

// Search embeds the query and returns up to topK chunks ranked by descending
// cosine similarity. An absent or empty domain index yields an empty result,
// never an error; so does an embedding failure (logged, degraded relevance).
func (m *Manager) Search(ctx context.Context, domain Domain, query string, topK int) ([]docs.Chunk, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("unsupported domain %q", domain)
	}
	if err := m.Ensure(ctx, domain); err != nil {
		return nil, err
	}

	snap := m.snapshot(domain)
	if snap.Empty() {
		m.logger.Warn("search against empty domain index", "domain", domain)
		return nil, nil
	}

	if topK <= 0 {
		topK = m.opts.TopK
	}

	vecs, err := m.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		m.logger.Error("query embedding failed", "domain", domain, "error", err)
		return nil, nil
	}

	results := snap.Search(Normalize(vecs[0]), topK)
	m.logger.Debug("index search complete", "domain", domain, "results", len(results))
	return results, nil
}

// ContextFor assembles retrieval context for a query: up to ten candidates,
// concatenated in descending-similarity order, each tagged with its source,
// stopping before the token budget is exceeded. Highest-similarity content
// comes first and is least likely to be truncated.
func (m *Manager) ContextFor(ctx context.Context, domain Domain, query string, budget int) (string, error) {
	if budget <= 0 {
		budget = m.opts.ContextBudget
	}

	chunks, err := m.Search(ctx, domain, query, 10)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}

	var parts []string
	used := 0
	for _, c := range chunks {
		part := fmt.Sprintf("[From %s]\n%s\n", c.Source, c.Text)
		cost := len(part) / 4
		if used+cost > budget {
			break
		}
		parts = append(parts, part)
		used += cost
	}

	m.logger.Debug("assembled retrieval context", "domain", domain, "chunks", len(parts), "tokens", used)
	return strings.Join(parts, "\n"), nil
}

// DomainStatus reports the current state of one domain index.
func (m *Manager) DomainStatus(domain Domain) Status {
	snap := m.snapshot(domain)
	if snap == nil {
		return Status{Domain: domain, State: "uninitialized"}
	}
	return Status{Domain: domain, State: "ready", Chunks: len(snap.Chunks), Degraded: snap.Degraded}
}

// AllStatus reports every configured domain, IT first for stable output.
func (m *Manager) AllStatus() []Status {
	var out []Status
	for _, d := range []Domain{DomainIT, DomainFinance} {
		if _, ok := m.opts.Sources[d]; ok {
			out = append(out, m.DomainStatus(d))
		}
	}
	return out
}

// Degraded reports whether the domain's current snapshot contains zero-vector
// substitutes from embedding failures, making similarity scores unreliable.
func (m *Manager) Degraded(domain Domain) bool {
	snap := m.snapshot(domain)
	return snap != nil && snap.Degraded
}
