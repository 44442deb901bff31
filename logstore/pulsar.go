package logstore

import (
	"context"
	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/constant"
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/protocol-laboratory/group-coordinator-go/utils"
	"github.com/protocol-laboratory/pulsar-admin-go/padmin"
	"strconv"
	"strings"
	"sync"
)

type PulsarConfig struct {
	Host     string
	HttpPort int
	TcpPort  int
	// Tenant and Namespace hold the log topic
	Tenant    string
	Namespace string
	// Topic is the log topic, one partition per coordinator shard
	Topic      string
	Partitions int
	// AutoCreateTopic if true, create the log topic automatically
	AutoCreateTopic bool
}

type messageProducer interface {
	Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error)
	Close()
}

type messageReader interface {
	Next(ctx context.Context) (pulsar.Message, error)
	Close()
}

// PulsarLog stores every batch as one message of a single partition topic.
type PulsarLog struct {
	topic         string
	producer      messageProducer
	openReader    func() (messageReader, error)
	lastMessageID func() (pulsar.MessageID, bool, error)
	logger        log.Logger
	// onClose releases the client when the log owns it
	onClose func()

	mutex      sync.Mutex
	nextOffset int64
}

func NewPulsarLog(client pulsar.Client, admin *padmin.PulsarAdmin, config PulsarConfig, partition int32, logger log.Logger) (*PulsarLog, error) {
	if int(partition) >= config.Partitions {
		return nil, errors.Errorf("partition %d out of the %d partitions of %s", partition, config.Partitions, config.Topic)
	}
	if config.AutoCreateTopic {
		err := admin.PersistentTopics.CreatePartitioned(config.Tenant, config.Namespace, config.Topic, config.Partitions)
		if err != nil {
			if !strings.Contains(err.Error(), constant.AlreadyExistsErr) {
				return nil, err
			}
		}
	}
	topic := utils.PartitionedTopic(utils.TopicName(config.Tenant, config.Namespace, config.Topic), int(partition))
	producer, err := getLogProducer(client, topic, logger)
	if err != nil {
		return nil, err
	}
	return &PulsarLog{
		topic:    topic,
		producer: producer,
		openReader: func() (messageReader, error) {
			return getLogReader(client, topic, logger)
		},
		lastMessageID: func() (pulsar.MessageID, bool, error) {
			return utils.LatestMessageID(topic, admin)
		},
		logger: logger.Topic(topic),
	}, nil
}

func (p *PulsarLog) Append(ctx context.Context, entries []Entry) (int64, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	base := p.nextOffset
	if len(entries) == 0 {
		return base, nil
	}
	payload, err := EncodeBatch(base, entries)
	if err != nil {
		return 0, err
	}
	message := pulsar.ProducerMessage{}
	message.Payload = payload
	message.Key = strconv.FormatInt(base, 10)
	message.Properties = map[string]string{
		constant.BatchBaseOffset: strconv.FormatInt(base, 10),
		constant.BatchEntryCount: strconv.Itoa(len(entries)),
	}
	if _, err := p.producer.Send(ctx, &message); err != nil {
		p.logger.Errorf("append batch failed. baseOffset: %d, entries: %d, err: %s", base, len(entries), err)
		return 0, errors.Wrapf(err, "append to %s", p.topic)
	}
	p.nextOffset += int64(len(entries))
	p.logger.Debugf("append batch success. baseOffset: %d, entries: %d", base, len(entries))
	return base, nil
}

// Replay reads the topic from the earliest message up to the last message
// present when the replay started.
func (p *PulsarLog) Replay(ctx context.Context, fn func(Entry) error) error {
	last, ok, err := p.lastMessageID()
	if err != nil {
		return errors.Wrapf(err, "get last message id of %s", p.topic)
	}
	if !ok {
		p.logger.Infof("log topic is empty")
		return nil
	}
	reader, err := p.openReader()
	if err != nil {
		return errors.Wrapf(err, "create reader of %s", p.topic)
	}
	defer reader.Close()
	batches, length := 0, 0
	for {
		msg, err := reader.Next(ctx)
		if err != nil {
			return errors.Wrapf(err, "read %s", p.topic)
		}
		length += utils.CalculateMsgLength(msg)
		entries, err := DecodeBatch(msg.Payload())
		if err != nil {
			p.logger.Errorf("decode batch failed. key: %s, err: %s", msg.Key(), err)
			return err
		}
		for _, entry := range entries {
			if err := fn(entry); err != nil {
				return err
			}
			p.advance(entry.Offset + 1)
		}
		batches++
		if utils.ReachedMessageID(msg.ID(), last) {
			break
		}
	}
	p.logger.Infof("replayed %d batches, %d bytes, next offset %d", batches, length, p.NextOffset())
	return nil
}

func (p *PulsarLog) advance(offset int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if offset > p.nextOffset {
		p.nextOffset = offset
	}
}

func (p *PulsarLog) NextOffset() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.nextOffset
}

func (p *PulsarLog) Close() error {
	p.producer.Close()
	if p.onClose != nil {
		p.onClose()
	}
	return nil
}

func getLogProducer(client pulsar.Client, topic string, logger log.Logger) (pulsar.Producer, error) {
	options := pulsar.ProducerOptions{}
	options.Topic = topic
	options.SendTimeout = constant.DefaultProducerSendTimeout
	options.MaxPendingMessages = constant.DefaultMaxPendingMsg
	options.DisableBlockIfQueueFull = true
	producer, err := client.CreateProducer(options)
	if err != nil {
		logger.Errorf("create producer failed. topic: %s, err: %s", topic, err)
		return nil, err
	}
	return producer, nil
}

func getLogReader(client pulsar.Client, topic string, logger log.Logger) (messageReader, error) {
	reader, err := client.CreateReader(pulsar.ReaderOptions{
		Topic:          topic,
		Name:           constant.LogReaderName + "-" + uuid.New().String(),
		StartMessageID: pulsar.EarliestMessageID(),
	})
	if err != nil {
		logger.Errorf("create reader failed. topic: %s, err: %s", topic, err)
		return nil, err
	}
	return reader, nil
}
