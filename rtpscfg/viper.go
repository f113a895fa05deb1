package rtpscfg

import (
	"time"

	"github.com/spf13/viper"

	"github.com/rtpscore/rtpscore/qos"
)

// LoadDomain reads a DomainConfig out of v under the "domain" key prefix
// and validates it. Callers typically build v with viper.New(),
// SetConfigFile(path), and ReadInConfig() before calling this.
func LoadDomain(v *viper.Viper) (DomainConfig, error) {
	c := DomainConfig{
		DomainId:               v.GetInt("domain.domain_id"),
		ParticipantId:          v.GetInt("domain.participant_id"),
		VendorId:               uint16(v.GetUint32("domain.vendor_id")),
		ResendPeriod:           v.GetDuration("domain.resend_period"),
		LeaseDuration:          v.GetDuration("domain.lease_duration"),
		HeartbeatPeriod:        v.GetDuration("domain.heartbeat_period"),
		NackResponseDelay:      v.GetDuration("domain.nack_response_delay"),
		HeartbeatResponseDelay: v.GetDuration("domain.heartbeat_response_delay"),
		UserData:               []byte(v.GetString("domain.user_data")),
		DefaultEndpointQoS:     endpointQoSFromViper(v, "domain.default_qos"),
	}
	if err := c.Valid(); err != nil {
		return DomainConfig{}, err
	}
	return c, nil
}

// endpointQoSFromViper reads the QoS sub-keys a profile file may set
// under prefix (e.g. "domain.default_qos.reliability.kind"). Fields left
// unset in the file resolve to their zero value, which Endpoint.Valid()
// then defaults.
func endpointQoSFromViper(v *viper.Viper, prefix string) qos.Endpoint {
	var ep qos.Endpoint
	if v.GetString(prefix+".reliability.kind") == "RELIABLE" {
		ep.Reliability.Kind = qos.Reliable
	}
	if d := v.GetDuration(prefix + ".reliability.max_blocking_time"); d > 0 {
		ep.Reliability.MaxBlockingTime = d
	}
	switch v.GetString(prefix + ".durability.kind") {
	case "TRANSIENT_LOCAL":
		ep.Durability.Kind = qos.TransientLocal
	case "TRANSIENT":
		ep.Durability.Kind = qos.Transient
	case "PERSISTENT":
		ep.Durability.Kind = qos.Persistent
	}
	if d := v.GetDuration(prefix + ".deadline.period"); d > 0 {
		ep.Deadline.Period = d
	}
	if d := v.GetDuration(prefix + ".lifespan.duration"); d > 0 {
		ep.Lifespan.Duration = d
	}
	if v.GetString(prefix+".history.kind") == "KEEP_ALL" {
		ep.History.Kind = qos.KeepAll
	}
	if depth := v.GetInt(prefix + ".history.depth"); depth > 0 {
		ep.History.Depth = depth
	}
	ep.Partition.Names = v.GetStringSlice(prefix + ".partition.names")
	return ep
}

// ProfileReloadFunc is invoked with a freshly reloaded DomainConfig
// whenever WatchProfiles detects a change to the underlying file.
type ProfileReloadFunc func(DomainConfig, error)

// defaultDebounce coalesces the burst of fsnotify events a single save
// typically produces (write + chmod on most editors) into one reload.
const defaultDebounce = 50 * time.Millisecond
