package match_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/match"
	"github.com/rtpscore/rtpscore/qos"
)

var _ = Describe("Matcher QoS arbitration", func() {
	var (
		m      *match.Matcher
		events chan match.Event
		wg, rg guid.Guid
	)

	BeforeEach(func() {
		m = match.New()
		events = make(chan match.Event, 8)
		m.AddListener(func(ev match.Event) { events <- ev })
		wg = guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSEDPPubWriter}
		rg = guid.Guid{Prefix: guid.GuidPrefix{2}, Entity: guid.EntityIdSEDPPubReader}
	})

	When("a reliable writer meets a best-effort reader", func() {
		It("matches, since RELIABLE offers at least as much as BEST_EFFORT requests", func() {
			m.RegisterLocal(match.Endpoint{Guid: wg, TopicName: "T", TypeName: "Ty", Writer: true,
				QoS: qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.Reliable}}})

			m.Evaluate(
				match.Endpoint{Guid: wg, TopicName: "T", TypeName: "Ty", Writer: true,
					QoS: qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.Reliable}}},
				match.Remote{Guid: rg, TopicName: "T", TypeName: "Ty", Writer: false,
					QoS: qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.BestEffort}}},
			)

			var ev match.Event
			Eventually(events).Should(Receive(&ev))
			Expect(ev.Kind).To(Equal(match.Matched))
		})
	})

	When("a best-effort writer meets a reliable reader", func() {
		It("reports incompatible QoS on the RELIABILITY policy", func() {
			m.Evaluate(
				match.Endpoint{Guid: wg, TopicName: "T", TypeName: "Ty", Writer: true,
					QoS: qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.BestEffort}}},
				match.Remote{Guid: rg, TopicName: "T", TypeName: "Ty", Writer: false,
					QoS: qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.Reliable}}},
			)

			var ev match.Event
			Eventually(events).Should(Receive(&ev))
			Expect(ev.Kind).To(Equal(match.IncompatibleQoS))
			Expect(ev.IncompatibleQoS).To(Equal(qos.PolicyReliability))
		})
	})

	When("a remote participant referencing a matched peer expires", func() {
		It("unmatches and emits Unmatched", func() {
			m.Evaluate(
				match.Endpoint{Guid: wg, TopicName: "T", TypeName: "Ty", Writer: true},
				match.Remote{Guid: rg, TopicName: "T", TypeName: "Ty", Writer: false},
			)
			Eventually(events).Should(Receive()) // drain the Matched event

			m.Unmatch(wg, rg)

			var ev match.Event
			Eventually(events).Should(Receive(&ev))
			Expect(ev.Kind).To(Equal(match.Unmatched))
			Expect(m.MatchedCount(wg)).To(Equal(0))
		})
	})
})
