package nop_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/eventstream"
	"github.com/papercomputeco/reel/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("returns ErrNilExchangeEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishExchange(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilExchangeEvent))
	})

	It("succeeds for non-nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishExchange(context.Background(), eventstream.NewExchangeEvent(time.Now()))
		Expect(err).NotTo(HaveOccurred())
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
