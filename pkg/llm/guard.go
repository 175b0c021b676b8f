package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

// RetryOpts configures how failed provider calls are retried.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
}

var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// GuardConfig limits the request rate to the provider and retries transient
// failures. The zero value disables both.
type GuardConfig struct {
	// RequestsPerSecond <= 0 means no limit.
	RequestsPerSecond float64
	Burst             int
	Retry             RetryOpts
}

// Guard wraps a provider so that every call waits for the limiter and
// ErrProvider failures are retried with exponential backoff. Validation and
// configuration errors are returned immediately.
type Guard struct {
	embeddings rag.EmbeddingsClient
	chat       rag.ChatClient
	limiter    *rate.Limiter
	retry      RetryOpts
}

func NewGuard(embeddings rag.EmbeddingsClient, chat rag.ChatClient, cfg GuardConfig) *Guard {
	g := &Guard{embeddings: embeddings, chat: chat, retry: cfg.Retry}
	if g.retry.MaxAttempts < 1 {
		g.retry.MaxAttempts = 1
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

func (g *Guard) Model() string {
	if g.embeddings == nil {
		return ""
	}
	return g.embeddings.Model()
}

func (g *Guard) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if g.embeddings == nil {
		return nil, rag.Errorf(rag.ErrConfiguration, "embed", "no embeddings client configured")
	}
	return retry(ctx, g, func(ctx context.Context) ([][]float32, error) {
		return g.embeddings.Embed(ctx, texts)
	})
}

func (g *Guard) Complete(ctx context.Context, prompt string) (string, error) {
	if g.chat == nil {
		return "", rag.Errorf(rag.ErrConfiguration, "chat", "no chat client configured")
	}
	return retry(ctx, g, func(ctx context.Context) (string, error) {
		return g.chat.Complete(ctx, prompt)
	})
}

func retry[T any](ctx context.Context, g *Guard, f func(context.Context) (T, error)) (T, error) {
	var (
		zero T
		out  T
		err  error
	)
	wait := g.retry.InitialWait

	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		if g.limiter != nil {
			if werr := g.limiter.Wait(ctx); werr != nil {
				return zero, werr
			}
		}

		out, err = f(ctx)
		if err == nil || !retryable(err) || attempt == g.retry.MaxAttempts-1 {
			return out, err
		}

		sleep := wait
		if g.retry.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if g.retry.MaxWait > 0 && sleep > g.retry.MaxWait {
			sleep = g.retry.MaxWait
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		wait *= 2
		if g.retry.MaxWait > 0 && wait > g.retry.MaxWait {
			wait = g.retry.MaxWait
		}
	}
	return out, err
}

// só falhas do provedor valem nova tentativa
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch rag.KindOf(err) {
	case rag.ErrProvider, nil:
		return true
	default:
		return false
	}
}

var (
	_ rag.EmbeddingsClient = (*Guard)(nil)
	_ rag.ChatClient       = (*Guard)(nil)
)
