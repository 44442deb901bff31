package main

import (
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/protocol-laboratory/group-coordinator-go/logstore"
	"github.com/protocol-laboratory/group-coordinator-go/runtime"
	"github.com/spf13/cobra"
	"strconv"
	"strings"
)

type commonFlags struct {
	logLevel string

	backend         string
	pulsarHost      string
	pulsarHttpPort  int
	pulsarTcpPort   int
	pulsarTenant    string
	pulsarNamespace string
	pulsarTopic     string
	autoCreateTopic bool
	partitions      int

	redisAddr     string
	redisPassword string
	redisDB       int
	redisStream   string

	topics string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.logLevel, "log-level", "info", "logrus level")
	flags.StringVar(&f.backend, "log-backend", string(logstore.BackendMemory), "coordinator log backend: memory, pulsar or redis")
	flags.IntVar(&f.partitions, "partitions", 1, "number of coordinator partitions")
	flags.StringVar(&f.pulsarHost, "pulsar-host", "localhost", "pulsar host")
	flags.IntVar(&f.pulsarHttpPort, "pulsar-http-port", 8080, "pulsar admin port")
	flags.IntVar(&f.pulsarTcpPort, "pulsar-tcp-port", 6650, "pulsar broker port")
	flags.StringVar(&f.pulsarTenant, "pulsar-tenant", "public", "tenant of the log topic")
	flags.StringVar(&f.pulsarNamespace, "pulsar-namespace", "default", "namespace of the log topic")
	flags.StringVar(&f.pulsarTopic, "pulsar-topic", "__consumer_offsets", "log topic")
	flags.BoolVar(&f.autoCreateTopic, "pulsar-auto-create-topic", true, "create the log topic if missing")
	flags.StringVar(&f.redisAddr, "redis-addr", "localhost:6379", "redis address")
	flags.StringVar(&f.redisPassword, "redis-password", "", "redis password")
	flags.IntVar(&f.redisDB, "redis-db", 0, "redis database")
	flags.StringVar(&f.redisStream, "redis-stream", "", "redis stream prefix")
	flags.StringVar(&f.topics, "topics", "", "topics of the metadata image, e.g. foo:3,bar:6")
}

func (f *commonFlags) logConfig() logstore.Config {
	return logstore.Config{
		Backend: logstore.Backend(f.backend),
		Pulsar: logstore.PulsarConfig{
			Host:            f.pulsarHost,
			HttpPort:        f.pulsarHttpPort,
			TcpPort:         f.pulsarTcpPort,
			Tenant:          f.pulsarTenant,
			Namespace:       f.pulsarNamespace,
			Topic:           f.pulsarTopic,
			Partitions:      f.partitions,
			AutoCreateTopic: f.autoCreateTopic,
		},
		Redis: logstore.RedisConfig{
			Addr:     f.redisAddr,
			Password: f.redisPassword,
			DB:       f.redisDB,
			Stream:   f.redisStream,
		},
	}
}

func (f *commonFlags) metadataImage() (*coordinator.MetadataImage, error) {
	topics, err := parseTopics(f.topics)
	if err != nil {
		return nil, err
	}
	return coordinator.NewMetadataImage(1, topics...), nil
}

// parseTopics reads a comma separated list of name:partitions pairs.
func parseTopics(raw string) ([]coordinator.TopicImage, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var topics []coordinator.TopicImage
	for _, item := range strings.Split(raw, ",") {
		name, count, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok || name == "" {
			return nil, errors.Errorf("malformed topic %q, expect name:partitions", item)
		}
		partitions, err := strconv.ParseInt(count, 10, 32)
		if err != nil || partitions <= 0 {
			return nil, errors.Errorf("malformed partition count of topic %s: %q", name, count)
		}
		topics = append(topics, coordinator.TopicImage{Name: name, NumPartitions: int32(partitions)})
	}
	return topics, nil
}

type coordinatorFlags struct {
	sessionTimeoutMs          int
	heartbeatIntervalMs       int
	shareSessionTimeoutMs     int
	streamsSessionTimeoutMs   int
	offsetsRetentionMs        int64
	offsetsRetentionCheckMs   int
	offsetMetadataMaxSize     int
	assignors                 []string
	pollIntervalMs            int
	appendMaxRetries          int
	appendRetryMaxElapsedMs   int
	streamsNumStandbyReplicas int
}

func (f *coordinatorFlags) register(cmd *cobra.Command) {
	defaults := coordinator.DefaultConfig()
	runtimeDefaults := runtime.DefaultConfig()
	flags := cmd.Flags()
	flags.IntVar(&f.sessionTimeoutMs, "consumer-session-timeout-ms", defaults.ConsumerGroupSessionTimeoutMs, "consumer group session timeout")
	flags.IntVar(&f.heartbeatIntervalMs, "consumer-heartbeat-interval-ms", defaults.ConsumerGroupHeartbeatIntervalMs, "consumer group heartbeat interval")
	flags.IntVar(&f.shareSessionTimeoutMs, "share-session-timeout-ms", defaults.ShareGroupSessionTimeoutMs, "share group session timeout")
	flags.IntVar(&f.streamsSessionTimeoutMs, "streams-session-timeout-ms", defaults.StreamsGroupSessionTimeoutMs, "streams group session timeout")
	flags.IntVar(&f.streamsNumStandbyReplicas, "streams-num-standby-replicas", defaults.StreamsGroupNumStandbyReplicas, "standby tasks per streams task")
	flags.Int64Var(&f.offsetsRetentionMs, "offsets-retention-ms", defaults.OffsetsRetentionMs, "retention of committed offsets")
	flags.IntVar(&f.offsetsRetentionCheckMs, "offsets-retention-check-interval-ms", defaults.OffsetsRetentionCheckIntervalMs, "interval of the offset expiration scan")
	flags.IntVar(&f.offsetMetadataMaxSize, "offset-metadata-max-size", defaults.OffsetMetadataMaxSize, "max size of the offset metadata string")
	flags.StringSliceVar(&f.assignors, "assignors", defaults.ConsumerGroupAssignors, "server side assignors, the first one is the default")
	flags.IntVar(&f.pollIntervalMs, "poll-interval-ms", runtimeDefaults.PollIntervalMs, "interval of the timer poll")
	flags.IntVar(&f.appendMaxRetries, "append-max-retries", runtimeDefaults.AppendMaxRetries, "retries of a failed log append")
	flags.IntVar(&f.appendRetryMaxElapsedMs, "append-retry-max-elapsed-ms", runtimeDefaults.AppendRetryMaxElapsedMs, "max time spent retrying a log append")
}

func (f *coordinatorFlags) coordinatorConfig() *coordinator.Config {
	config := coordinator.DefaultConfig()
	config.ConsumerGroupSessionTimeoutMs = f.sessionTimeoutMs
	config.ConsumerGroupHeartbeatIntervalMs = f.heartbeatIntervalMs
	config.ShareGroupSessionTimeoutMs = f.shareSessionTimeoutMs
	config.StreamsGroupSessionTimeoutMs = f.streamsSessionTimeoutMs
	config.StreamsGroupNumStandbyReplicas = f.streamsNumStandbyReplicas
	config.OffsetsRetentionMs = f.offsetsRetentionMs
	config.OffsetsRetentionCheckIntervalMs = f.offsetsRetentionCheckMs
	config.OffsetMetadataMaxSize = f.offsetMetadataMaxSize
	config.ConsumerGroupAssignors = f.assignors
	return config
}

func (f *coordinatorFlags) runtimeConfig(partition int32) *runtime.Config {
	config := runtime.DefaultConfig()
	config.Partition = partition
	config.PollIntervalMs = f.pollIntervalMs
	config.AppendMaxRetries = f.appendMaxRetries
	config.AppendRetryMaxElapsedMs = f.appendRetryMaxElapsedMs
	return config
}
