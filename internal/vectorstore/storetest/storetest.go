// Package storetest holds the ginkgo behaviours every vectorstore.Store must
// satisfy.
package storetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rag-chatbot/internal/models"
	"rag-chatbot/internal/vectorstore"
)

// Dimensions is the vector length used by the shared behaviours.
const Dimensions = 4

// Entry builds an entry for source with the given vector.
func Entry(id, source string, page *int, vec ...float32) vectorstore.Entry {
	return vectorstore.Entry{
		ID:        id,
		Chunk:     models.Chunk{Content: "content of " + id, Source: source, Page: page},
		Embedding: vec,
	}
}

// ItBehavesLikeAStore registers the shared specs. newStore must return an
// empty store holding Dimensions-length vectors.
func ItBehavesLikeAStore(newStore func() vectorstore.Store) {
	var (
		store vectorstore.Store
		ctx   context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
		ginkgo.DeferCleanup(func() {
			Expect(store.Close()).To(Succeed())
		})
	})

	ginkgo.It("returns nothing when empty", func() {
		results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	ginkgo.It("accepts an empty batch", func() {
		Expect(store.Add(ctx, nil)).To(Succeed())
	})

	ginkgo.It("returns the nearest entries first", func() {
		Expect(store.Add(ctx, []vectorstore.Entry{
			Entry("far", "a.txt", nil, 0, 0, 0, 1),
			Entry("near", "b.pdf", models.PageNumber(3), 1, 0, 0, 0),
			Entry("middle", "c.txt", nil, 1, 1, 0, 0),
		})).To(Succeed())

		results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("near"))
		Expect(results[0].Chunk.Source).To(Equal("b.pdf"))
		Expect(results[0].Chunk.Page).NotTo(BeNil())
		Expect(*results[0].Chunk.Page).To(Equal(3))
		Expect(results[0].Chunk.Content).To(Equal("content of near"))
		Expect(results[0].Score).To(BeNumerically("~", 1, 1e-4))
		Expect(results[1].ID).To(Equal("middle"))
		Expect(results[1].Chunk.Page).To(BeNil())
		Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
	})

	ginkgo.It("caps k at the number of stored entries", func() {
		Expect(store.Add(ctx, []vectorstore.Entry{
			Entry("one", "a.txt", nil, 1, 0, 0, 0),
			Entry("two", "a.txt", nil, 0, 1, 0, 0),
		})).To(Succeed())

		results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))
	})

	ginkgo.It("breaks ties by insertion order", func() {
		Expect(store.Add(ctx, []vectorstore.Entry{
			Entry("first", "a.txt", nil, 0, 1, 0, 0),
			Entry("second", "a.txt", nil, 0, 1, 0, 0),
		})).To(Succeed())
		Expect(store.Add(ctx, []vectorstore.Entry{
			Entry("third", "a.txt", nil, 0, 1, 0, 0),
		})).To(Succeed())

		results, err := store.Query(ctx, []float32{0, 1, 0, 0}, 3)
		Expect(err).NotTo(HaveOccurred())
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ID
		}
		Expect(ids).To(Equal([]string{"first", "second", "third"}))

		results, err = store.Query(ctx, []float32{0, 1, 0, 0}, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("first"))
	})

	ginkgo.It("keeps the earliest entries of a tie wider than the boundary", func() {
		Expect(store.Add(ctx, []vectorstore.Entry{
			Entry("far", "a.txt", nil, 0, 0, 0, 1),
			Entry("best", "a.txt", nil, 1, 0, 0, 0),
		})).To(Succeed())
		for _, id := range []string{"tie-1", "tie-2", "tie-3", "tie-4", "tie-5", "tie-6"} {
			Expect(store.Add(ctx, []vectorstore.Entry{Entry(id, "b.txt", nil, 1, 1, 0, 0)})).To(Succeed())
		}

		results, err := store.Query(ctx, []float32{1, 0, 0, 0}, 3)
		Expect(err).NotTo(HaveOccurred())
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ID
		}
		Expect(ids).To(Equal([]string{"best", "tie-1", "tie-2"}))
	})

	ginkgo.It("rejects vectors of the wrong length", func() {
		Expect(store.Add(ctx, []vectorstore.Entry{Entry("ok", "a.txt", nil, 1, 0, 0, 0)})).To(Succeed())

		err := store.Add(ctx, []vectorstore.Entry{Entry("short", "a.txt", nil, 1, 0)})
		Expect(err).To(HaveOccurred())

		_, err = store.Query(ctx, []float32{1, 0}, 1)
		Expect(err).To(MatchError(models.ErrRetrieval))
	})

	ginkgo.It("serves queries while ingesting", func() {
		var wg sync.WaitGroup
		for w := range 4 {
			wg.Add(1)
			go func() {
				defer ginkgo.GinkgoRecover()
				defer wg.Done()
				for i := range 10 {
					id := fmt.Sprintf("w%d-%d", w, i)
					Expect(store.Add(ctx, []vectorstore.Entry{Entry(id, "a.txt", nil, 1, float32(i), 0, 0)})).To(Succeed())
					_, err := store.Query(ctx, []float32{1, 0, 0, 0}, 3)
					Expect(err).NotTo(HaveOccurred())
				}
			}()
		}
		wg.Wait()

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(40))
	})
}
