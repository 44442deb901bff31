package main

import (
	"context"
	"github.com/davecgh/go-spew/spew"
	"github.com/protocol-laboratory/group-coordinator-go/coordinator"
	"github.com/protocol-laboratory/group-coordinator-go/runtime"
	"github.com/spf13/cobra"
	"io"
	"math"
)

func newDumpCommand(common *commonFlags) *cobra.Command {
	var partition int32
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Replay the log of one partition and print its groups and offsets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dump(cmd.Context(), common, partition, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int32Var(&partition, "partition", 0, "coordinator partition to dump")
	return cmd
}

type partitionDump struct {
	Partition int32
	Groups    []coordinator.DescribedGroup
	Offsets   map[string]*coordinator.OffsetFetchResponse
}

func dump(ctx context.Context, common *commonFlags, partition int32, out io.Writer) error {
	logger, err := newLogger(common.logLevel)
	if err != nil {
		return err
	}
	image, err := common.metadataImage()
	if err != nil {
		return err
	}
	runtimeConfig := runtime.DefaultConfig()
	runtimeConfig.Partition = partition
	// timeouts must not fire, dump never writes
	runtimeConfig.PollIntervalMs = math.MaxInt32
	r, err := openRuntime(common.logConfig(), runtimeConfig, coordinator.DefaultConfig(), logger)
	if err != nil {
		return err
	}
	defer r.Stop(ctx)
	if err := r.Start(ctx, image); err != nil {
		return err
	}
	result, err := collect(ctx, r)
	if err != nil {
		return err
	}
	config := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
	config.Fdump(out, result)
	return nil
}

func collect(ctx context.Context, r *runtime.Runtime) (*partitionDump, error) {
	groupIDs, err := r.GroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := r.DescribeGroups(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	result := &partitionDump{Partition: r.Partition(), Groups: groups, Offsets: make(map[string]*coordinator.OffsetFetchResponse, len(groupIDs))}
	for _, groupID := range groupIDs {
		offsets, err := r.FetchAllOffsets(ctx, &coordinator.OffsetFetchRequest{GroupID: groupID, MemberEpoch: -1})
		if err != nil {
			return nil, err
		}
		result.Offsets[groupID] = offsets
	}
	return result, nil
}
