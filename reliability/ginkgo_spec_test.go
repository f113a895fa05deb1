package reliability_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/history"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/reliability"
	"github.com/rtpscore/rtpscore/wire"
)

func reliableCache() *history.WriterCache {
	ep := qos.Endpoint{Reliability: qos.ReliabilityPolicy{Kind: qos.Reliable}}
	Expect(ep.Valid()).To(Succeed())
	return history.NewWriterCache(ep)
}

var _ = Describe("reliable writer/reader handshake", func() {
	var (
		writerGuid, readerGuid guid.Guid
		cache                  *history.WriterCache
		writer                 *reliability.Writer
		reader                 *reliability.Reader
	)

	BeforeEach(func() {
		writerGuid = guid.Guid{Prefix: guid.GuidPrefix{1}, Entity: guid.EntityIdSEDPPubWriter}
		readerGuid = guid.Guid{Prefix: guid.GuidPrefix{2}, Entity: guid.EntityIdSEDPPubReader}
		cache = reliableCache()
		writer = reliability.NewWriter(writerGuid, cache, reliability.DefaultWriterDefaults())
		reader = reliability.NewReader(readerGuid, reliability.DefaultReaderDefaults())
	})

	When("a reader matches a writer with no history yet", func() {
		It("gets a pre-emptive ACKNACK requesting nothing", func() {
			an := reader.MatchWriter(writerGuid, writerGuid.Entity)
			Expect(an.ReaderSNState.Base).To(Equal(guid.SequenceNumber(1)))
			Expect(an.Final).To(BeFalse())
		})
	})

	When("the writer publishes two samples and heartbeats", func() {
		BeforeEach(func() {
			cache.Add(guid.InstanceHandle{1}, history.Alive, time.Unix(1, 0), []byte("a"), nil)
			cache.Add(guid.InstanceHandle{1}, history.Alive, time.Unix(2, 0), []byte("b"), nil)
			writer.MatchReader(readerGuid, readerGuid.Entity)
			reader.MatchWriter(writerGuid, writerGuid.Entity)
		})

		It("announces the full held range", func() {
			hbs := writer.Heartbeats()
			Expect(hbs).To(HaveLen(1))
			Expect(hbs[0].FirstSeq).To(Equal(guid.SequenceNumber(1)))
			Expect(hbs[0].LastSeq).To(Equal(guid.SequenceNumber(2)))
		})

		It("drives the reader to ACKNACK both announced sequences as missing, since no DATA arrived", func() {
			hbs := writer.Heartbeats()
			schedule, _ := reader.OnHeartbeat(writerGuid, hbs[0], time.Now())
			Expect(schedule).To(BeTrue())

			an, ok := reader.BuildAckNack(writerGuid)
			Expect(ok).To(BeTrue())
			Expect(an.ReaderSNState.Contains(1)).To(BeTrue())
			Expect(an.ReaderSNState.Contains(2)).To(BeTrue())
		})

		It("has the writer acknowledge a cumulative ACKNACK and stop retransmitting", func() {
			an := wire.AckNackSubmessage{ReaderSNState: wire.SequenceNumberSet{Base: 3, Bits: nil}, Count: 1}
			gaps := writer.OnAckNack(readerGuid, an)
			Expect(gaps).To(BeEmpty())
			Expect(writer.RetransmitDue(time.Now().Add(time.Hour))).To(BeEmpty())
		})
	})
})
