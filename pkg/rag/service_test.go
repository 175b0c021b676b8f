package rag_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
	"github.com/josinaldojr/doc-qa-rag/pkg/store"
)

const (
	pageURL = "https://example.com/pets"
	manual  = "/docs/manual.pdf"
)

var pageText = strings.Join([]string{
	"Gatos dormem até dezesseis horas por dia e gostam de lugares altos.",
	"Cachorros precisam de passeios diários e adoram brincar com bolas.",
	"Peixes vivem em aquários e precisam de água limpa e filtrada.",
	"Papagaios conseguem imitar a voz humana e vivem muitos anos.",
	"Coelhos comem feno e cenouras e gostam de cavar buracos.",
}, "\n\n")

type fixture struct {
	svc      *rag.Service
	chat     *mockChat
	embedder *hashEmbedder
	loader   *mapLoader
	store    *store.FileStore
}

func newFixture(t *testing.T, opts rag.Options) *fixture {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		chat:     &mockChat{},
		embedder: &hashEmbedder{},
		loader:   &mapLoader{docs: map[string]string{pageURL: pageText, manual: "Manual do usuário. Ligue o aparelho antes de usar."}},
		store:    fs,
	}
	f.svc, err = rag.NewService(rag.Deps{
		Chat:       f.chat,
		Embeddings: f.embedder,
		Loader:     f.loader,
		Store:      fs,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, opts)
	require.NoError(t, err)
	return f
}

// small chunks so that the page yields several segments
func smallChunks() rag.Options {
	return rag.Options{ChunkSize: 80, ChunkOverlap: 10}
}

func TestNewService_RequiresChat(t *testing.T) {
	_, err := rag.NewService(rag.Deps{}, rag.Options{})
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestNewService_Defaults(t *testing.T) {
	f := newFixture(t, rag.Options{})
	assert.Equal(t, rag.DefaultOptions(), f.svc.Options())
}

func TestAsk_SendsQuestionVerbatim(t *testing.T) {
	f := newFixture(t, rag.Options{})
	f.chat.On("Complete", mock.Anything, "  Quanto é 2+2?\n").Return("4", nil).Once()

	answer, err := f.svc.Ask(context.Background(), "  Quanto é 2+2?\n")
	require.NoError(t, err)
	assert.Equal(t, "4", answer)
	f.chat.AssertExpectations(t)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t, rag.Options{})
	_, err := f.svc.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, rag.ErrValidation)
	f.chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAsk_ProviderFailure(t *testing.T) {
	f := newFixture(t, rag.Options{})
	cause := errors.New("503 upstream")
	f.chat.On("Complete", mock.Anything, mock.Anything).Return("", cause)

	_, err := f.svc.Ask(context.Background(), "oi")
	assert.ErrorIs(t, err, rag.ErrProvider)
	assert.ErrorIs(t, err, cause)
}

func TestAskFromPrompt_UsesCallerContext(t *testing.T) {
	f := newFixture(t, rag.Options{})
	f.chat.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "O céu é verde em Marte.") &&
			strings.Contains(p, "De que cor é o céu?") &&
			strings.Contains(p, rag.FallbackPT)
	})).Return("Verde.", nil).Once()

	answer, err := f.svc.AskFromPrompt(context.Background(), "De que cor é o céu?", "O céu é verde em Marte.")
	require.NoError(t, err)
	assert.Equal(t, "Verde.", answer)
	f.chat.AssertExpectations(t)
}

func TestAskFromURL_RetrievesRelevantSegments(t *testing.T) {
	f := newFixture(t, smallChunks())
	var prompt string
	f.chat.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return("Dezesseis horas.", nil)

	answer, err := f.svc.AskFromURL(context.Background(), "Quantas horas os gatos dormem por dia?", pageURL, "")
	require.NoError(t, err)
	assert.Equal(t, "Dezesseis horas.", answer)
	assert.Contains(t, prompt, "Gatos dormem até dezesseis horas")
	assert.Contains(t, prompt, "Pergunta:\nQuantas horas os gatos dormem por dia?")

	exists, err := f.store.Exists(context.Background(), rag.DefaultIndexName)
	require.NoError(t, err)
	assert.False(t, exists, "nothing is persisted without saveAs")
}

func TestAskFromURL_SaveAsPersists(t *testing.T) {
	f := newFixture(t, smallChunks())
	f.chat.On("Complete", mock.Anything, mock.Anything).Return("ok", nil)

	_, err := f.svc.AskFromURL(context.Background(), "Coelhos comem o quê?", pageURL, "pets")
	require.NoError(t, err)

	exists, err := f.store.Exists(context.Background(), "pets")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAskFromPDF_LoaderFailureIsSourceError(t *testing.T) {
	f := newFixture(t, rag.Options{})
	_, err := f.svc.AskFromPDF(context.Background(), "o que é?", "/nao/existe.pdf", "")
	assert.ErrorIs(t, err, rag.ErrSource)
	f.chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestSaveEmbedding_ZeroSourceIsValidationError(t *testing.T) {
	f := newFixture(t, rag.Options{})
	err := f.svc.SaveEmbedding(context.Background(), rag.Source{}, "x")
	assert.ErrorIs(t, err, rag.ErrValidation)
	assert.Zero(t, f.loader.calls.Load())
	assert.Zero(t, f.embedder.calls.Load())
}

func TestSaveEmbedding_InvalidName(t *testing.T) {
	f := newFixture(t, rag.Options{})
	err := f.svc.SaveEmbedding(context.Background(), rag.FromURL(pageURL), "../fora")
	assert.ErrorIs(t, err, rag.ErrValidation)
	assert.Zero(t, f.loader.calls.Load())
}

func TestAskFromEmbedding_MissingIndex(t *testing.T) {
	f := newFixture(t, rag.Options{})

	_, err := f.svc.AskFromEmbedding(context.Background(), "qualquer coisa", "inexistente")
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrIndexNotFound)
	assert.Contains(t, err.Error(), "invalid directory")
	assert.Zero(t, f.embedder.calls.Load())
	f.chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestRetrieve_PersistedMatchesInMemory(t *testing.T) {
	f := newFixture(t, smallChunks())
	ctx := context.Background()
	const q = "Papagaios imitam a voz humana?"

	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromURL(pageURL), "pets"))

	idx, err := f.svc.BuildIndex(ctx, rag.FromURL(pageURL))
	require.NoError(t, err)
	qv, err := f.embedder.Embed(ctx, []string{q})
	require.NoError(t, err)
	want, err := idx.Search(ctx, qv[0], f.svc.Options().TopK)
	require.NoError(t, err)

	got, err := f.svc.Retrieve(ctx, q, "pets")
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Content, got[i].Content)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
	}
	assert.LessOrEqual(t, len(got), 4)
	assert.Contains(t, got[0].Content, "Papagaios")
}

func TestSaveEmbedding_TwiceIsIdempotent(t *testing.T) {
	f := newFixture(t, smallChunks())
	ctx := context.Background()

	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromURL(pageURL), ""))
	first, err := f.store.Load(ctx, rag.DefaultIndexName)
	require.NoError(t, err)

	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromURL(pageURL), ""))
	second, err := f.store.Load(ctx, rag.DefaultIndexName)
	require.NoError(t, err)

	assert.Equal(t, first.Model, second.Model)
	assert.Equal(t, first.Dimension, second.Dimension)
	assert.Equal(t, first.Segments, second.Segments)
	assert.Equal(t, first.Vectors, second.Vectors)
}

func TestSaveEmbedding_ReplacesPreviousIndex(t *testing.T) {
	f := newFixture(t, smallChunks())
	ctx := context.Background()

	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromURL(pageURL), "kb"))
	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromPDF(manual), "kb"))

	idx, err := f.store.Load(ctx, "kb")
	require.NoError(t, err)
	for _, s := range idx.Segments {
		assert.Equal(t, manual, s.Source)
	}
}

func TestAskFromEmbedding_FallbackInstruction(t *testing.T) {
	f := newFixture(t, smallChunks())
	ctx := context.Background()
	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromURL(pageURL), ""))

	f.chat.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Se a informação não estiver no contexto, diga: "+rag.FallbackPT)
	})).Return(rag.FallbackPT, nil).Once()

	answer, err := f.svc.AskFromEmbedding(ctx, "Qual a cotação do dólar hoje?", "")
	require.NoError(t, err)
	assert.Equal(t, rag.FallbackPT, answer)
	f.chat.AssertExpectations(t)
}

func TestAskFromEmbedding_ModelMismatch(t *testing.T) {
	f := newFixture(t, smallChunks())
	ctx := context.Background()
	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromURL(pageURL), "pets"))

	other, err := rag.NewService(rag.Deps{
		Chat:       f.chat,
		Embeddings: &hashEmbedder{model: "another-model"},
		Store:      f.store,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, smallChunks())
	require.NoError(t, err)

	_, err = other.AskFromEmbedding(ctx, "gatos?", "pets")
	assert.ErrorIs(t, err, rag.ErrConfiguration)
	f.chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestBuildIndex_EmbedFailureIsProviderError(t *testing.T) {
	f := newFixture(t, rag.Options{})
	f.embedder.err = errors.New("quota exceeded")

	_, err := f.svc.BuildIndex(context.Background(), rag.FromURL(pageURL))
	assert.ErrorIs(t, err, rag.ErrProvider)
}

func TestBuildIndex_BatchesEmbeddings(t *testing.T) {
	f := newFixture(t, rag.Options{ChunkSize: 80, ChunkOverlap: 10, EmbedBatchSize: 2})

	idx, err := f.svc.BuildIndex(context.Background(), rag.FromURL(pageURL))
	require.NoError(t, err)
	require.Greater(t, idx.Len(), 2)

	wantCalls := (idx.Len() + 1) / 2
	assert.Equal(t, int32(wantCalls), f.embedder.calls.Load())
	assert.Equal(t, fakeDim, idx.Dimension)
	assert.Equal(t, "fake-embedding", idx.Model)
}

func TestListIndexes_SortedByName(t *testing.T) {
	f := newFixture(t, rag.Options{})
	ctx := context.Background()
	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromPDF(manual), "zeta"))
	require.NoError(t, f.svc.SaveEmbedding(ctx, rag.FromPDF(manual), "alfa"))

	infos, err := f.svc.ListIndexes(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "alfa", infos[0].Name)
	assert.Equal(t, "zeta", infos[1].Name)
	assert.Equal(t, "fake-embedding", infos[0].Model)
	assert.Equal(t, fakeDim, infos[0].Dimension)
	assert.Equal(t, 1, infos[0].Segments)
}

// opaqueStore hides every method beyond rag.IndexStore.
type opaqueStore struct{ rag.IndexStore }

func TestListIndexes_StoreWithoutListing(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc, err := rag.NewService(rag.Deps{
		Chat:       &mockChat{},
		Embeddings: &hashEmbedder{},
		Loader:     &mapLoader{},
		Store:      opaqueStore{fs},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, rag.Options{})
	require.NoError(t, err)

	_, err = svc.ListIndexes(context.Background())
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}
