package main

import (
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/protocol-laboratory/group-coordinator-go/logstore"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParseTopics(t *testing.T) {
	topics, err := parseTopics("foo:3, bar:6")
	require.Nil(t, err)
	assert.Equal(t, []coordinator.TopicImage{{Name: "foo", NumPartitions: 3}, {Name: "bar", NumPartitions: 6}}, topics)

	topics, err = parseTopics("")
	require.Nil(t, err)
	assert.Empty(t, topics)
}

func TestParseTopicsMalformed(t *testing.T) {
	for _, raw := range []string{"foo", ":3", "foo:x", "foo:0", "foo:3,bar"} {
		_, err := parseTopics(raw)
		assert.NotNil(t, err, raw)
	}
}

func TestFlagsMapOntoConfigs(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	common := &commonFlags{}
	common.register(cmd)
	flags := &coordinatorFlags{}
	flags.register(cmd)
	cmd.SetArgs([]string{
		"--log-backend", "redis", "--partitions", "4", "--redis-stream", "offsets",
		"--consumer-session-timeout-ms", "30000", "--assignors", "range", "--poll-interval-ms", "50",
	})
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	require.Nil(t, cmd.Execute())

	logConfig := common.logConfig()
	assert.Equal(t, logstore.BackendRedis, logConfig.Backend)
	assert.Equal(t, "offsets", logConfig.Redis.Stream)
	assert.Equal(t, 4, logConfig.Pulsar.Partitions)

	config := flags.coordinatorConfig()
	assert.Equal(t, 30000, config.ConsumerGroupSessionTimeoutMs)
	assert.Equal(t, []string{"range"}, config.ConsumerGroupAssignors)
	require.Nil(t, config.Validate())
	runtimeConfig := flags.runtimeConfig(2)
	assert.Equal(t, int32(2), runtimeConfig.Partition)
	assert.Equal(t, 50, runtimeConfig.PollIntervalMs)
	require.Nil(t, runtimeConfig.Validate())
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "dump"} {
		cmd, _, err := root.Find([]string{name})
		require.Nil(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
