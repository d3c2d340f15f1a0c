package pipeline

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/plugin"
	"github.com/ragforge/ragforge/ragerr"
)

func behaviorRegistry(loader plugin.Loader, embedder plugin.Embedder, retriever plugin.Retriever, llm plugin.LLM) *plugin.Registry {
	reg := plugin.NewRegistry()
	Expect(reg.Register(model.KindLoader, "loader", loader)).To(Succeed())
	Expect(reg.Register(model.KindEmbedder, "embedder", embedder)).To(Succeed())
	Expect(reg.Register(model.KindRetriever, "retriever", retriever)).To(Succeed())
	Expect(reg.Register(model.KindLLM, "llm", llm)).To(Succeed())
	return reg
}

var _ = Describe("Executor", func() {
	var (
		loader    *fakeLoader
		embedder  *fakeEmbedder
		retriever *fakeRetriever
		llm       *fakeLLM
		exec      *Executor
	)

	BeforeEach(func() {
		loader = &fakeLoader{docs: []model.Document{{ID: "d1", Content: "hello world"}}}
		embedder = &fakeEmbedder{}
		retriever = &fakeRetriever{results: []model.ScoredChunk{{Chunk: model.Chunk{Text: "hello"}, Score: 0.9}}}
		llm = &fakeLLM{answer: "the answer"}
		reg := behaviorRegistry(loader, embedder, retriever, llm)
		exec = New(reg, WithStages("loader", "embedder", "retriever", "", "llm"))
	})

	Describe("Ingest", func() {
		It("loads, chunks, embeds, and stores successfully", func() {
			result, err := exec.Ingest(context.Background(), "some/path")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.DocumentCount).To(Equal(1))
			Expect(result.ChunkCount).To(BeNumerically(">", 0))
		})

		When("the loader fails", func() {
			It("returns a Transient error after retries without calling the embedder", func() {
				loader.err = errors.New("disk unavailable")
				_, err := exec.Ingest(context.Background(), "some/path")
				Expect(err).To(HaveOccurred())
				kind, ok := ragerr.KindOf(err)
				Expect(ok).To(BeTrue())
				Expect(kind).To(Equal(ragerr.Transient))
				Expect(embedder.lastCall).To(BeNil())
			})
		})
	})

	Describe("Query", func() {
		It("embeds the prompt, retrieves context, and generates an answer", func() {
			result, err := exec.Query(context.Background(), "what is ragforge?")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Answer).To(Equal("the answer"))
			Expect(result.Chunks).To(HaveLen(1))
		})

		When("retrieval returns no chunks", func() {
			It("still generates an answer and records a warning", func() {
				retriever.results = nil
				result, err := exec.Query(context.Background(), "anything")
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Warnings).NotTo(BeEmpty())
			})
		})

		When("the prompt is empty", func() {
			It("rejects with InvalidInput before touching any plugin", func() {
				_, err := exec.Query(context.Background(), "")
				Expect(err).To(HaveOccurred())
				kind, _ := ragerr.KindOf(err)
				Expect(kind).To(Equal(ragerr.InvalidInput))
			})
		})
	})
})
