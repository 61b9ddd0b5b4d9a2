package versioncmder_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	versioncmder "github.com/papercomputeco/reel/cmd/version"
	"github.com/papercomputeco/reel/pkg/utils"
)

var _ = Describe("NewVersionCmd", func() {
	run := func(args ...string) string {
		var out bytes.Buffer
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		Expect(cmd.Execute()).To(Succeed())
		return out.String()
	}

	It("prints version, commit and build time", func() {
		out := run()
		Expect(out).To(HavePrefix("reel " + utils.Version))
		Expect(out).To(ContainSubstring("commit: " + utils.Sha))
	})

	It("prints only the version with --short", func() {
		Expect(strings.TrimSpace(run("--short"))).To(Equal(utils.Version))
	})
})
