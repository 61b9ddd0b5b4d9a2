package cliui_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/cliui"
)

var _ = Describe("Mark", func() {
	It("marks failures and successes", func() {
		Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
	})
})

var _ = DescribeTable("FormatDuration",
	func(d time.Duration, want string) {
		Expect(cliui.FormatDuration(d)).To(Equal(want))
	},
	Entry("milliseconds", 12*time.Millisecond, "12ms"),
	Entry("seconds", 3200*time.Millisecond, "3.2s"),
)

var _ = Describe("Outcome", func() {
	It("joins the mark with the elapsed time", func() {
		Expect(cliui.Outcome(nil, 40*time.Millisecond)).To(HavePrefix(cliui.SuccessMark + " "))
		Expect(cliui.Outcome(nil, 40*time.Millisecond)).To(ContainSubstring("(40ms)"))
		Expect(cliui.Outcome(errors.New("boom"), 2*time.Second)).To(HavePrefix(cliui.FailMark + " "))
		Expect(cliui.Outcome(errors.New("boom"), 2*time.Second)).To(ContainSubstring("(2.0s)"))
	})
})
