package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("Worker Pool", func() {
	newPool := func(c *Config) *Pool {
		c.Logger = zap.NewNop()
		wp, err := NewPool(c)
		Expect(err).NotTo(HaveOccurred())
		return wp
	}

	It("applies defaults", func() {
		c := &Config{}
		wp := newPool(c)
		defer wp.Close()

		Expect(c.NumWorkers).To(Equal(defaultNumWorkers))
		Expect(c.QueueSize).To(Equal(defaultJobQueueSize))
		Expect(c.JobTimeout).To(Equal(defaultJobTimeout))
	})

	It("runs every enqueued job before Close returns", func() {
		wp := newPool(&Config{NumWorkers: 2})

		var ran atomic.Int32
		for range 10 {
			Expect(wp.Enqueue(Job{Kind: "count", Run: func(context.Context) error {
				ran.Add(1)
				return nil
			}})).To(BeTrue())
		}
		wp.Close()

		Expect(ran.Load()).To(Equal(int32(10)))
	})

	It("drops jobs without blocking when the queue is full", func() {
		wp := newPool(&Config{NumWorkers: 1, QueueSize: 1})

		release := make(chan struct{})
		started := make(chan struct{})
		Expect(wp.Enqueue(Job{Kind: "block", Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		}})).To(BeTrue())
		Eventually(started).Should(BeClosed())

		noop := Job{Kind: "noop", Run: func(context.Context) error { return nil }}
		Expect(wp.Enqueue(noop)).To(BeTrue())
		Expect(wp.Enqueue(noop)).To(BeFalse())

		close(release)
		wp.Close()
	})

	It("keeps working after a job fails or panics", func() {
		wp := newPool(&Config{NumWorkers: 1})

		var ran atomic.Bool
		wp.Enqueue(Job{Kind: "fail", Run: func(context.Context) error { return errors.New("boom") }})
		wp.Enqueue(Job{Kind: "panic", Run: func(context.Context) error { panic("boom") }})
		wp.Enqueue(Job{Kind: "ok", Run: func(context.Context) error {
			ran.Store(true)
			return nil
		}})
		wp.Close()

		Expect(ran.Load()).To(BeTrue())
	})

	It("bounds each job with the timeout", func() {
		wp := newPool(&Config{NumWorkers: 1, JobTimeout: 20 * time.Millisecond})

		var ctxErr atomic.Value
		wp.Enqueue(Job{Kind: "slow", Run: func(ctx context.Context) error {
			<-ctx.Done()
			ctxErr.Store(ctx.Err())
			return ctx.Err()
		}})
		wp.Close()

		Expect(ctxErr.Load()).To(MatchError(context.DeadlineExceeded))
	})

	It("rejects jobs after Close and tolerates a second Close", func() {
		wp := newPool(&Config{})
		wp.Close()

		Expect(wp.Enqueue(Job{Kind: "late", Run: func(context.Context) error { return nil }})).To(BeFalse())
		Expect(wp.Close).NotTo(Panic())
	})
})
