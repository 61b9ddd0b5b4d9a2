package inmemory_test

import (
	. "github.com/onsi/ginkgo/v2"

	"github.com/papercomputeco/reel/pkg/vector"
	"github.com/papercomputeco/reel/pkg/vector/inmemory"
	"github.com/papercomputeco/reel/pkg/vector/vectortest"
)

var _ = Describe("Driver", func() {
	vectortest.DriverConformance(func() vector.VectorDriver {
		return inmemory.NewDriver(vectortest.Dimensions)
	})
})
