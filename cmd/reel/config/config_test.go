package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/reel/cmd/reel/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		subcommands := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	execute := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "reel-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .reel dir so the manager picks it up
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".reel"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	Describe("set subcommand", func() {
		It("writes config.toml", func() {
			_, err := execute("set", "generator.provider", "anthropic")
			Expect(err).NotTo(HaveOccurred())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".reel", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`provider = "anthropic"`))
		})

		It("rejects unknown keys", func() {
			_, err := execute("set", "invalid_key", "value")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			_, err := execute("set", "generator.provider")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid numeric values", func() {
			_, err := execute("set", "embedding.dimensions", "not-a-number")
			Expect(err).To(HaveOccurred())
		})

		It("masks secrets in its output", func() {
			out, err := execute("set", "generator.api_key", "sk-very-secret")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).NotTo(ContainSubstring("sk-very-secret"))
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := execute("set", "memory.top_k", "7")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("get", "memory.top_k")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("7"))
		})

		It("reports unset keys", func() {
			out, err := execute("get", "eventstream.brokers")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			_, err := execute("get", "invalid_key")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("memory.short_term_capacity"))
			Expect(out).To(ContainSubstring("generator.provider"))
		})

		It("masks secrets", func() {
			_, err := execute("set", "client.token", "tok-123")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).NotTo(ContainSubstring("tok-123"))
		})

		It("rejects any arguments", func() {
			_, err := execute("list", "extra")
			Expect(err).To(HaveOccurred())
		})
	})
})
