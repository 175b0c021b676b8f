// Package rag answers questions with an LLM, optionally grounded in context
// retrieved from a web page, a PDF or a persisted vector index.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Options configures the retrieval pipeline. Zero fields take their default;
// a zero ChunkSize also resets ChunkOverlap.
type Options struct {
	TopK           int
	ChunkSize      int
	ChunkOverlap   int
	Lang           Lang
	EmbedBatchSize int
}

// DefaultOptions mirrors the behaviour the helper has always had: 1000/200
// character chunks, four retrieved segments, Portuguese prompts.
func DefaultOptions() Options {
	return Options{
		TopK:           4,
		ChunkSize:      DefaultChunkSize,
		ChunkOverlap:   DefaultChunkOverlap,
		Lang:           LangPT,
		EmbedBatchSize: 100,
	}
}

// Deps are the collaborators a Service sequences. Only Chat is mandatory;
// operations that need a missing collaborator fail with ErrConfiguration.
type Deps struct {
	Chat       ChatClient
	Embeddings EmbeddingsClient
	Loader     DocumentLoader
	Store      IndexStore
	Logger     *slog.Logger
}

// Service is the query orchestrator. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	chat       ChatClient
	embeddings EmbeddingsClient
	loader     DocumentLoader
	store      IndexStore
	splitter   *Splitter
	opts       Options
	logger     *slog.Logger
}

func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Chat == nil {
		return nil, Errorf(ErrConfiguration, "rag", "chat client is required")
	}
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
		if opts.ChunkOverlap <= 0 {
			opts.ChunkOverlap = def.ChunkOverlap
		}
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = def.EmbedBatchSize
	}
	if opts.Lang == "" {
		opts.Lang = def.Lang
	}
	if _, err := ParseLang(string(opts.Lang)); err != nil {
		return nil, err
	}
	splitter, err := NewSplitter(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chat:       deps.Chat,
		embeddings: deps.Embeddings,
		loader:     deps.Loader,
		store:      deps.Store,
		splitter:   splitter,
		opts:       opts,
		logger:     logger,
	}, nil
}

func (s *Service) Options() Options { return s.opts }

// Ask sends question to the model verbatim, without any context. Blank
// questions are rejected.
func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	const op = "ask"
	if _, err := requireQuestion(op, question); err != nil {
		return "", s.fail(op, err)
	}
	answer, err := s.complete(ctx, op, question)
	if err != nil {
		return "", s.fail(op, err)
	}
	return answer, nil
}

// AskFromPrompt answers question using only the caller supplied context.
func (s *Service) AskFromPrompt(ctx context.Context, question, contextText string) (string, error) {
	const op = "askFromPrompt"
	q, err := requireQuestion(op, question)
	if err != nil {
		return "", s.fail(op, err)
	}
	prompt, err := BuildPrompt(s.opts.Lang, q, contextText)
	if err != nil {
		return "", s.fail(op, Wrap(ErrConfiguration, op, err))
	}
	answer, err := s.complete(ctx, op, prompt)
	if err != nil {
		return "", s.fail(op, err)
	}
	return answer, nil
}

// SaveEmbedding builds an index from src and persists it under name
// ("default" when empty), replacing any index already stored there.
func (s *Service) SaveEmbedding(ctx context.Context, src Source, name string) error {
	const op = "saveEmbedding"
	name, err := normalizeIndexName(op, name)
	if err != nil {
		return s.fail(op, err)
	}
	if s.store == nil {
		return s.fail(op, Errorf(ErrConfiguration, op, "no index store configured"))
	}
	idx, err := s.buildIndex(ctx, op, src)
	if err != nil {
		return s.fail(op, err)
	}
	if err := s.save(ctx, op, name, idx); err != nil {
		return s.fail(op, err)
	}
	return nil
}

// AskFromURL indexes the page at rawURL and answers question from it. A
// non-empty saveAs also persists the index under that name.
func (s *Service) AskFromURL(ctx context.Context, question, rawURL, saveAs string) (string, error) {
	return s.askFromSource(ctx, "askFromURL", question, FromURL(rawURL), saveAs)
}

// AskFromPDF is AskFromURL for a local PDF file.
func (s *Service) AskFromPDF(ctx context.Context, question, path, saveAs string) (string, error) {
	return s.askFromSource(ctx, "askFromPDF", question, FromPDF(path), saveAs)
}

// AskFromEmbedding answers question from the persisted index name. A missing
// index fails with ErrIndexNotFound before anything is embedded.
func (s *Service) AskFromEmbedding(ctx context.Context, question, name string) (string, error) {
	const op = "askFromEmbedding"
	q, err := requireQuestion(op, question)
	if err != nil {
		return "", s.fail(op, err)
	}
	searcher, err := s.openIndex(ctx, op, name)
	if err != nil {
		return "", s.fail(op, err)
	}
	answer, err := s.answer(ctx, op, q, searcher)
	if err != nil {
		return "", s.fail(op, err)
	}
	return answer, nil
}

// Retrieve returns the segments of the persisted index name that
// AskFromEmbedding would put in the prompt, without calling the model.
func (s *Service) Retrieve(ctx context.Context, question, name string) ([]ScoredSegment, error) {
	const op = "retrieve"
	q, err := requireQuestion(op, question)
	if err != nil {
		return nil, s.fail(op, err)
	}
	searcher, err := s.openIndex(ctx, op, name)
	if err != nil {
		return nil, s.fail(op, err)
	}
	hits, err := s.retrieve(ctx, op, q, searcher)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return hits, nil
}

// ListIndexes describes every index the store holds, sorted by name.
func (s *Service) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	const op = "listIndexes"
	lister, ok := s.store.(IndexLister)
	if !ok {
		return nil, s.fail(op, Errorf(ErrConfiguration, op, "index store %T cannot list indexes", s.store))
	}
	infos, err := lister.List(ctx)
	if err != nil {
		return nil, s.fail(op, Wrap(ErrConfiguration, op, err))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// BuildIndex runs load → split → embed for src and returns the in-memory
// index without persisting it.
func (s *Service) BuildIndex(ctx context.Context, src Source) (*VectorIndex, error) {
	const op = "buildIndex"
	idx, err := s.buildIndex(ctx, op, src)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return idx, nil
}

func (s *Service) askFromSource(ctx context.Context, op, question string, src Source, saveAs string) (string, error) {
	q, err := requireQuestion(op, question)
	if err != nil {
		return "", s.fail(op, err)
	}
	if saveAs != "" {
		if saveAs, err = normalizeIndexName(op, saveAs); err != nil {
			return "", s.fail(op, err)
		}
		if s.store == nil {
			return "", s.fail(op, Errorf(ErrConfiguration, op, "no index store configured"))
		}
	}

	idx, err := s.buildIndex(ctx, op, src)
	if err != nil {
		return "", s.fail(op, err)
	}
	if saveAs != "" {
		if err := s.save(ctx, op, saveAs, idx); err != nil {
			return "", s.fail(op, err)
		}
	}

	answer, err := s.answer(ctx, op, q, idx)
	if err != nil {
		return "", s.fail(op, err)
	}
	return answer, nil
}

func (s *Service) buildIndex(ctx context.Context, op string, src Source) (*VectorIndex, error) {
	if err := src.Validate(); err != nil {
		return nil, Wrap(ErrValidation, op, err)
	}
	if s.loader == nil {
		return nil, Errorf(ErrConfiguration, op, "no document loader configured")
	}
	if s.embeddings == nil {
		return nil, Errorf(ErrConfiguration, op, "no embeddings client configured")
	}

	start := time.Now()
	docs, err := s.loader.Load(ctx, src)
	if err != nil {
		return nil, Wrap(ErrSource, op, fmt.Errorf("load %s: %w", src, err))
	}

	segments := s.splitter.SplitDocuments(docs)
	if len(segments) == 0 {
		return nil, Errorf(ErrSource, op, "no text extracted from %s", src)
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Content
	}
	vectors, err := s.embed(ctx, op, texts)
	if err != nil {
		return nil, err
	}

	idx := NewVectorIndex(s.embeddings.Model())
	if err := idx.Add(segments, vectors); err != nil {
		return nil, Wrap(ErrProvider, op, err)
	}

	s.logger.Info("rag: index built",
		"op", op,
		"source", src.String(),
		"documents", len(docs),
		"segments", idx.Len(),
		"dimension", idx.Dimension,
		"duration", time.Since(start),
	)
	return idx, nil
}

// embed sends texts in batches of EmbedBatchSize and checks that one vector
// comes back per text.
func (s *Service) embed(ctx context.Context, op string, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += s.opts.EmbedBatchSize {
		end := min(i+s.opts.EmbedBatchSize, len(texts))
		vecs, err := s.embeddings.Embed(ctx, texts[i:end])
		if err != nil {
			return nil, Wrap(ErrProvider, op, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err))
		}
		if len(vecs) != end-i {
			return nil, Errorf(ErrProvider, op, "embed batch [%d:%d]: got %d vectors", i, end, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *Service) save(ctx context.Context, op, name string, idx *VectorIndex) error {
	if err := s.store.Save(ctx, name, idx); err != nil {
		return Wrap(ErrConfiguration, op, fmt.Errorf("save index %q: %w", name, err))
	}
	s.logger.Info("rag: index saved", "op", op, "index", name, "segments", idx.Len())
	return nil
}

func (s *Service) openIndex(ctx context.Context, op, name string) (Searcher, error) {
	name, err := normalizeIndexName(op, name)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, Errorf(ErrConfiguration, op, "no index store configured")
	}
	if s.embeddings == nil {
		return nil, Errorf(ErrConfiguration, op, "no embeddings client configured")
	}

	ok, err := s.store.Exists(ctx, name)
	if err != nil {
		return nil, Wrap(ErrConfiguration, op, fmt.Errorf("check index %q: %w", name, err))
	}
	if !ok {
		return nil, &Error{Kind: ErrIndexNotFound, Op: op, Err: fmt.Errorf("index %q does not exist", name)}
	}

	searcher, err := s.store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, ErrIndexNotFound) {
			return nil, Wrap(ErrIndexNotFound, op, err)
		}
		return nil, Wrap(ErrConfiguration, op, fmt.Errorf("open index %q: %w", name, err))
	}
	if mr, ok := searcher.(ModelReporter); ok {
		if m := mr.EmbeddingModel(); m != "" && m != s.embeddings.Model() {
			return nil, Errorf(ErrConfiguration, op,
				"index %q was built with embedding model %q, current model is %q", name, m, s.embeddings.Model())
		}
	}
	return searcher, nil
}

func (s *Service) retrieve(ctx context.Context, op, question string, searcher Searcher) ([]ScoredSegment, error) {
	vecs, err := s.embed(ctx, op, []string{question})
	if err != nil {
		return nil, err
	}
	hits, err := searcher.Search(ctx, vecs[0], s.opts.TopK)
	if err != nil {
		return nil, Wrap(ErrProvider, op, fmt.Errorf("search: %w", err))
	}
	s.logger.Debug("rag: retrieved", "op", op, "hits", len(hits))
	return hits, nil
}

func (s *Service) answer(ctx context.Context, op, question string, searcher Searcher) (string, error) {
	hits, err := s.retrieve(ctx, op, question, searcher)
	if err != nil {
		return "", err
	}
	prompt, err := BuildRetrievalPrompt(s.opts.Lang, question, hits)
	if err != nil {
		return "", Wrap(ErrConfiguration, op, err)
	}
	return s.complete(ctx, op, prompt)
}

func (s *Service) complete(ctx context.Context, op, prompt string) (string, error) {
	answer, err := s.chat.Complete(ctx, prompt)
	if err != nil {
		return "", Wrap(ErrProvider, op, err)
	}
	return answer, nil
}

// fail logs err once, at the boundary of a public operation.
func (s *Service) fail(op string, err error) error {
	s.logger.Error("rag: operation failed", "op", op, "error", err)
	return err
}

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidIndexName reports whether name can be used as a persisted index name.
// Names map to directories and collections, so path separators and ".." are
// rejected.
func ValidIndexName(name string) bool {
	return len(name) <= 128 && indexNamePattern.MatchString(name) && !strings.Contains(name, "..")
}

func normalizeIndexName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultIndexName, nil
	}
	if !ValidIndexName(name) {
		return "", Errorf(ErrValidation, op, "invalid index name %q", name)
	}
	return name, nil
}

func requireQuestion(op, question string) (string, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return "", Errorf(ErrValidation, op, "question is required")
	}
	return q, nil
}
