package chromem_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/vector"
	"github.com/papercomputeco/reel/pkg/vector/chromem"
	"github.com/papercomputeco/reel/pkg/vector/vectortest"
)

var _ = Describe("ChromemDriver", func() {
	vectortest.DriverConformance(func() vector.VectorDriver {
		driver, err := chromem.NewChromemDriver(chromem.Config{Dimensions: vectortest.Dimensions}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return driver
	})

	It("requires dimensions", func() {
		_, err := chromem.NewChromemDriver(chromem.Config{}, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("persists collections to disk", func() {
		ctx := context.Background()
		dir := GinkgoT().TempDir()

		driver, err := chromem.NewChromemDriver(chromem.Config{Path: dir, Dimensions: vectortest.Dimensions}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(driver.Upsert(ctx, vector.Namespace("alice"), []vector.Record{
			vectortest.Record("c1", "alice", "durable", 1, 0, 0, 0),
		})).To(Succeed())

		reopened, err := chromem.NewChromemDriver(chromem.Config{Path: dir, Dimensions: vectortest.Dimensions}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		matches, err := reopened.Query(ctx, vector.Namespace("alice"), []float32{1, 0, 0, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(HaveLen(1))
		Expect(matches[0].Content).To(Equal("durable"))
	})
})
