package coordinator

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/assignor"
	"math"
)

type Config struct {
	OffsetsRetentionCheckIntervalMs int
	OffsetsRetentionMs              int64
	OffsetMetadataMaxSize           int

	ConsumerGroupSessionTimeoutMs    int
	ConsumerGroupHeartbeatIntervalMs int
	ConsumerGroupMaxSize             int
	// ConsumerGroupAssignors lists the server side assignors, the first one
	// is the default.
	ConsumerGroupAssignors []string

	ShareGroupSessionTimeoutMs    int
	ShareGroupHeartbeatIntervalMs int
	ShareGroupMaxSize             int

	StreamsGroupSessionTimeoutMs    int
	StreamsGroupHeartbeatIntervalMs int
	StreamsGroupMaxSize             int
	StreamsGroupNumStandbyReplicas  int

	GroupGaugesUpdateIntervalMs int
}

func DefaultConfig() *Config {
	return &Config{
		OffsetsRetentionCheckIntervalMs:  600000,
		OffsetsRetentionMs:               7 * 24 * 60 * 60 * 1000,
		OffsetMetadataMaxSize:            4096,
		ConsumerGroupSessionTimeoutMs:    45000,
		ConsumerGroupHeartbeatIntervalMs: 5000,
		ConsumerGroupMaxSize:             math.MaxInt32,
		ConsumerGroupAssignors:           []string{assignor.UniformAssignorName, assignor.RangeAssignorName},
		ShareGroupSessionTimeoutMs:       45000,
		ShareGroupHeartbeatIntervalMs:    5000,
		ShareGroupMaxSize:                200,
		StreamsGroupSessionTimeoutMs:     45000,
		StreamsGroupHeartbeatIntervalMs:  5000,
		StreamsGroupMaxSize:              math.MaxInt32,
		StreamsGroupNumStandbyReplicas:   0,
		GroupGaugesUpdateIntervalMs:      DefaultGroupGaugesUpdateIntervalMs,
	}
}

func (c *Config) Validate() error {
	if c.OffsetsRetentionCheckIntervalMs <= 0 {
		return errors.Errorf("offsets retention check interval must be positive, got %d", c.OffsetsRetentionCheckIntervalMs)
	}
	if c.OffsetsRetentionMs <= 0 {
		return errors.Errorf("offsets retention must be positive, got %d", c.OffsetsRetentionMs)
	}
	if c.GroupGaugesUpdateIntervalMs <= 0 {
		return errors.Errorf("group gauges update interval must be positive, got %d", c.GroupGaugesUpdateIntervalMs)
	}
	if c.ConsumerGroupSessionTimeoutMs <= 0 || c.ShareGroupSessionTimeoutMs <= 0 || c.StreamsGroupSessionTimeoutMs <= 0 {
		return errors.New("session timeouts must be positive")
	}
	if c.ConsumerGroupHeartbeatIntervalMs >= c.ConsumerGroupSessionTimeoutMs {
		return errors.Errorf("consumer group heartbeat interval %d must be lower than the session timeout %d",
			c.ConsumerGroupHeartbeatIntervalMs, c.ConsumerGroupSessionTimeoutMs)
	}
	if c.ConsumerGroupMaxSize <= 0 || c.ShareGroupMaxSize <= 0 || c.StreamsGroupMaxSize <= 0 {
		return errors.New("group max sizes must be positive")
	}
	if len(c.ConsumerGroupAssignors) == 0 {
		return errors.New("at least one consumer group assignor is required")
	}
	if _, err := assignor.Lookup(c.ConsumerGroupAssignors...); err != nil {
		return err
	}
	return nil
}
