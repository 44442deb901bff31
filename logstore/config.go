package logstore

import (
	"fmt"
	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/pulsar-admin-go/padmin"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendPulsar Backend = "pulsar"
	BackendRedis  Backend = "redis"
)

type Config struct {
	// Backend enum: memory, pulsar, redis; default memory
	Backend Backend
	Pulsar  PulsarConfig
	Redis   RedisConfig
}

// Open connects the log of one coordinator partition.
func Open(config Config, partition int32, logger log.Logger) (Log, error) {
	switch config.Backend {
	case "", BackendMemory:
		return NewMemoryLog(), nil
	case BackendPulsar:
		return openPulsarLog(config.Pulsar, partition, logger)
	case BackendRedis:
		return NewRedisLog(config.Redis, partition, logger), nil
	}
	return nil, errors.Errorf("unexpect log backend: %v", config.Backend)
}

func openPulsarLog(config PulsarConfig, partition int32, logger log.Logger) (*PulsarLog, error) {
	pulsarUrl := fmt.Sprintf("pulsar://%s:%d", config.Host, config.TcpPort)
	client, err := pulsar.NewClient(pulsar.ClientOptions{URL: pulsarUrl})
	if err != nil {
		return nil, err
	}
	admin, err := padmin.NewPulsarAdmin(padmin.Config{
		Host: config.Host,
		Port: config.HttpPort,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	pulsarLog, err := NewPulsarLog(client, admin, config, partition, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	pulsarLog.onClose = client.Close
	return pulsarLog, nil
}
