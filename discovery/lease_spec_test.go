package discovery_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rtpscore/rtpscore/discovery"
	"github.com/rtpscore/rtpscore/guid"
)

var _ = Describe("RemoteParticipant lease expiry", func() {
	var (
		engine *discovery.Engine
		local  guid.GuidPrefix
		remote guid.GuidPrefix
	)

	BeforeEach(func() {
		local = guid.GuidPrefix{1}
		remote = guid.GuidPrefix{2}
		engine = discovery.NewEngine(local)
	})

	When("a remote participant announces itself with a lease", func() {
		BeforeEach(func() {
			engine.OnSPDP(discovery.ParticipantData{GuidPrefix: remote, LeaseDuration: time.Minute}, time.Now())
		})

		It("becomes visible in the discovery table", func() {
			Expect(engine.ParticipantCount()).To(Equal(1))
			rp, ok := engine.RemoteParticipant(remote)
			Expect(ok).To(BeTrue())
			Expect(rp.Data.GuidPrefix).To(Equal(remote))
		})

		It("refreshing with identical data keeps exactly one entry", func() {
			engine.OnSPDP(discovery.ParticipantData{GuidPrefix: remote, LeaseDuration: time.Minute}, time.Now())
			Expect(engine.ParticipantCount()).To(Equal(1))
		})

		When("it self-disposes", func() {
			It("is removed and an expiry listener fires", func() {
				fired := make(chan guid.GuidPrefix, 1)
				engine.OnExpiry(func(prefix guid.GuidPrefix, last discovery.RemoteParticipant) {
					fired <- prefix
				})
				engine.DisposeSPDP(remote)

				Eventually(fired).Should(Receive(Equal(remote)))
				Expect(engine.ParticipantCount()).To(Equal(0))
			})
		})
	})

	When("a participant announces under a short lease", func() {
		It("expires and is swept from the table within one cleanup cycle", func() {
			engine = discovery.NewEngine(local)
			engine.OnSPDP(discovery.ParticipantData{GuidPrefix: remote, LeaseDuration: 200 * time.Millisecond}, time.Now())
			Expect(engine.ParticipantCount()).To(Equal(1))

			// The underlying cache's janitor sweeps on discovery.
			// DefaultResendPeriod, so allow a full cycle plus margin.
			Eventually(func() int {
				return engine.ParticipantCount()
			}, "5s", "100ms").Should(Equal(0))
		})
	})
})
