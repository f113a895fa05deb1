// Package rtpscfg holds the Participant/Domain configuration surface:
// plain structs with a Valid() method that fills documented defaults and
// rejects out-of-range values (the same idiom qos and go-iecp5's
// cs104.Config use), loaded from viper sources and optionally
// hot-reloaded via fsnotify when QoS profiles live in a watched file.
package rtpscfg

import (
	"time"

	"github.com/rtpscore/rtpscore/guid"
	"github.com/rtpscore/rtpscore/qos"
	"github.com/rtpscore/rtpscore/rtpserr"
)

// DomainConfig configures one Participant.
type DomainConfig struct {
	DomainId      int
	ParticipantId int
	VendorId      uint16 // open question; defaults to 0x01AA, the value of wire.VendorIdRtpscore

	ResendPeriod           time.Duration // SPDP steady-state announcement interval
	LeaseDuration          time.Duration
	HeartbeatPeriod        time.Duration
	NackResponseDelay      time.Duration
	HeartbeatResponseDelay time.Duration

	DefaultEndpointQoS qos.Endpoint
	DefaultGroupQoS    qos.Group

	UserData []byte
}

// Bound constants documented alongside DomainConfig.Valid()'s defaults.
const (
	DefaultLeaseDuration             = 10 * time.Second
	DefaultHeartbeatPeriod           = 100 * time.Millisecond
	DefaultNackResponseDelayMax      = 200 * time.Millisecond
	DefaultHeartbeatResponseDelayMax = 200 * time.Millisecond

	// MinDomainId/MaxDomainId bound the well-known SPDP port formula so
	// port arithmetic never wraps or collides with ephemeral ranges.
	MinDomainId = 0
	MaxDomainId = 232
)

// Valid fills documented defaults for zero-value fields and rejects
// out-of-range ones.
func (c *DomainConfig) Valid() error {
	if c.DomainId < MinDomainId || c.DomainId > MaxDomainId {
		return rtpserr.New(rtpserr.InvalidArgument, "domain_id must be in [%d, %d], got %d", MinDomainId, MaxDomainId, c.DomainId)
	}
	if c.ParticipantId < 0 {
		return rtpserr.New(rtpserr.InvalidArgument, "participant_id must be >= 0")
	}
	if c.VendorId == 0 {
		c.VendorId = 0x01AA // no normative default vendor id; matches wire.VendorIdRtpscore
	}
	if c.ResendPeriod <= 0 {
		c.ResendPeriod = 3 * time.Second
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = DefaultLeaseDuration
	}
	if c.HeartbeatPeriod <= 0 {
		c.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	if c.NackResponseDelay < 0 || c.NackResponseDelay > DefaultNackResponseDelayMax {
		return rtpserr.New(rtpserr.InvalidArgument, "nack_response_delay must be in [0, %s]", DefaultNackResponseDelayMax)
	}
	if c.HeartbeatResponseDelay < 0 || c.HeartbeatResponseDelay > DefaultHeartbeatResponseDelayMax {
		return rtpserr.New(rtpserr.InvalidArgument, "heartbeat_response_delay must be in [0, %s]", DefaultHeartbeatResponseDelayMax)
	}
	if err := c.DefaultEndpointQoS.Valid(); err != nil {
		return err
	}
	return c.DefaultGroupQoS.Valid()
}

// LocalGuidPrefix derives this participant's GuidPrefix from a host
// identifier and its own pid, matching guid.DerivedGuidPrefix's
// parameter shape.
func (c *DomainConfig) LocalGuidPrefix(host string, pid uint32) guid.GuidPrefix {
	return guid.DerivedGuidPrefix(host, pid, uint16(c.ParticipantId))
}
