package persona_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/persona"
)

var _ = Describe("Catalog", func() {
	var catalog *persona.Catalog

	BeforeEach(func() {
		catalog = persona.NewCatalog(zap.NewNop())
	})

	It("has one distinct instruction per persona", func() {
		seen := map[string]bool{}
		for _, tag := range persona.Tags() {
			text := catalog.Instruction(tag)
			Expect(text).NotTo(BeEmpty())
			Expect(seen).NotTo(HaveKey(text))
			seen[text] = true
		}
	})

	It("falls back to the general assistant for unknown tags", func() {
		Expect(catalog.Instruction("pirate")).To(Equal(catalog.Instruction(persona.GeneralAssistant)))
		Expect(catalog.Instruction("")).To(Equal(catalog.Instruction(persona.GeneralAssistant)))
		Expect(persona.Valid("pirate")).To(BeFalse())
	})

	Describe("LoadFile", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "personas.yaml")
		})

		It("overrides only the listed personas", func() {
			builtIn := catalog.Instruction(persona.PatientEducator)
			Expect(os.WriteFile(path, []byte("programming-expert: Talk like a compiler.\n"), 0o600)).To(Succeed())

			Expect(catalog.LoadFile(path)).To(Succeed())
			Expect(catalog.Instruction(persona.ProgrammingExpert)).To(Equal("Talk like a compiler."))
			Expect(catalog.Instruction(persona.PatientEducator)).To(Equal(builtIn))
		})

		It("rejects unknown personas without changing the catalog", func() {
			before := catalog.Instruction(persona.ProgrammingExpert)
			Expect(os.WriteFile(path, []byte("programming-expert: x\npirate: arr\n"), 0o600)).To(Succeed())

			Expect(catalog.LoadFile(path)).To(MatchError(ContainSubstring("unknown persona")))
			Expect(catalog.Instruction(persona.ProgrammingExpert)).To(Equal(before))
		})

		It("rejects malformed YAML", func() {
			Expect(os.WriteFile(path, []byte("- not a map"), 0o600)).To(Succeed())
			Expect(catalog.LoadFile(path)).To(HaveOccurred())
		})
	})

	Describe("Watch", func() {
		It("reloads the file when it changes", func() {
			path := filepath.Join(GinkgoT().TempDir(), "personas.yaml")
			Expect(os.WriteFile(path, []byte("creative-collaborator: first\n"), 0o600)).To(Succeed())
			Expect(catalog.LoadFile(path)).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- catalog.Watch(ctx, path) }()
			DeferCleanup(func() {
				cancel()
				Eventually(done).Should(Receive(BeNil()))
			})

			// give the watcher time to register before writing
			time.Sleep(100 * time.Millisecond)
			Expect(os.WriteFile(path, []byte("creative-collaborator: second\n"), 0o600)).To(Succeed())

			Eventually(func() string {
				return catalog.Instruction(persona.CreativeCollaborator)
			}).WithTimeout(5 * time.Second).Should(Equal("second"))
		})
	})
})
