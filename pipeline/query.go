package pipeline

import (
	"context"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/retry"
)

// Query runs embedQuery -> retrieve -> optional rerank -> generate
// against prompt.
func (e *Executor) Query(ctx context.Context, prompt string) (model.QueryResult, error) {
	e.metrics.RecordStart()
	start := e.clock()

	result, err := e.query(ctx, prompt)
	if err != nil {
		kind, _ := ragerr.KindOf(err)
		e.metrics.RecordFailure(string(kind), e.failingPluginHint(kind))
		e.logger.LogPluginError("pipeline", "query", err, e.clock().Sub(start))
		return model.QueryResult{}, err
	}

	e.metrics.RecordSuccess()
	result.Duration = e.clock().Sub(start)
	return result, nil
}

func (e *Executor) query(ctx context.Context, prompt string) (model.QueryResult, error) {
	if prompt == "" {
		return model.QueryResult{}, ragerr.New(ragerr.InvalidInput, "prompt must be a non-empty string")
	}
	if err := checkCancelled(ctx); err != nil {
		return model.QueryResult{}, err
	}

	embedder, err := e.embedder()
	if err != nil {
		return model.QueryResult{}, err
	}

	var queryVector model.Vector
	err = e.stage(ctx, "embedder.embedQuery", "query.embed", e.metrics.Embedding.Durations, func(ctx context.Context) error {
		return retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
			v, embedErr := embedder.EmbedQuery(ctx, prompt)
			if embedErr != nil {
				return ragerr.Wrap(ragerr.Transient, "query embedding failed", embedErr)
			}
			queryVector = v
			return nil
		})
	})
	if err != nil {
		return model.QueryResult{}, err
	}
	if len(queryVector) == 0 {
		return model.QueryResult{}, ragerr.New(ragerr.QueryEmbeddingFailed, "embedder returned an empty query vector")
	}

	if err := checkCancelled(ctx); err != nil {
		return model.QueryResult{}, err
	}

	retriever, err := e.retriever()
	if err != nil {
		return model.QueryResult{}, err
	}

	var chunks []model.ScoredChunk
	var warnings []string
	err = e.stage(ctx, "retriever.retrieve", "query.retrieve", e.metrics.Retrieval.Durations, func(ctx context.Context) error {
		return retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
			c, retrieveErr := retriever.Retrieve(ctx, queryVector)
			if retrieveErr != nil {
				return ragerr.Wrap(ragerr.Transient, "retrieve failed", retrieveErr)
			}
			chunks = c
			return nil
		})
	})
	if err != nil {
		return model.QueryResult{}, err
	}
	if len(chunks) == 0 {
		warnings = append(warnings, "retriever returned no chunks")
	}

	if err := checkCancelled(ctx); err != nil {
		return model.QueryResult{}, err
	}

	if reranker, ok, rerankErr := e.reranker(); rerankErr != nil {
		return model.QueryResult{}, rerankErr
	} else if ok {
		rerankPolicy := e.retryPolicy
		rerankPolicy.Retries = 2
		err = e.stage(ctx, "reranker.rerank", "query.rerank", nil, func(ctx context.Context) error {
			return retry.Do(ctx, rerankPolicy, func(ctx context.Context) error {
				reranked, rerankErr := reranker.Rerank(ctx, prompt, chunks)
				if rerankErr != nil {
					return ragerr.Wrap(ragerr.Transient, "rerank failed", rerankErr)
				}
				chunks = reranked
				return nil
			})
		})
		if err != nil {
			return model.QueryResult{}, err
		}
	}

	if err := checkCancelled(ctx); err != nil {
		return model.QueryResult{}, err
	}

	llm, err := e.llm()
	if err != nil {
		return model.QueryResult{}, err
	}

	var answer string
	err = e.stage(ctx, "llm.generate", "query.generate", e.metrics.LLM.Durations, func(ctx context.Context) error {
		return retry.Do(ctx, e.retryPolicy, func(ctx context.Context) error {
			a, genErr := llm.Generate(ctx, prompt, chunks)
			if genErr != nil {
				return ragerr.Wrap(ragerr.Transient, "generation failed", genErr)
			}
			answer = a
			return nil
		})
	})
	if err != nil {
		return model.QueryResult{}, err
	}
	if answer == "" {
		return model.QueryResult{}, ragerr.New(ragerr.GenerationFailed, "llm returned an empty response")
	}

	return model.QueryResult{Chunks: chunks, Answer: answer, Warnings: warnings}, nil
}
