package logstore

import (
	"context"
	"fmt"
	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"strconv"
	"strings"
	"sync"
)

type MockMessageID struct {
	ledgerID int64
	entryID  int64
}

func (m MockMessageID) Serialize() []byte {
	return []byte(m.String())
}

func (m MockMessageID) LedgerID() int64 {
	return m.ledgerID
}

func (m MockMessageID) EntryID() int64 {
	return m.entryID
}

func (m MockMessageID) BatchIdx() int32 {
	return 0
}

func (m MockMessageID) PartitionIdx() int32 {
	return 0
}

func (m MockMessageID) BatchSize() int32 {
	return 0
}

func (m MockMessageID) String() string {
	return fmt.Sprintf("%d:%d", m.ledgerID, m.entryID)
}

// mockMessage only answers what the log reads, anything else panics.
type mockMessage struct {
	pulsar.Message
	id         MockMessageID
	key        string
	payload    []byte
	properties map[string]string
}

func (m *mockMessage) ID() pulsar.MessageID {
	return m.id
}

func (m *mockMessage) Key() string {
	return m.key
}

func (m *mockMessage) Payload() []byte {
	return m.payload
}

func (m *mockMessage) Properties() map[string]string {
	return m.properties
}

type MockProducer struct {
	sync.Mutex
	messages []pulsar.ProducerMessage
	sendErr  error
	closed   bool
}

func (mp *MockProducer) Send(ctx context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error) {
	mp.Lock()
	defer mp.Unlock()

	if msg == nil {
		return nil, errors.New("nil message")
	}
	if mp.sendErr != nil {
		return nil, mp.sendErr
	}

	mp.messages = append(mp.messages, *msg)

	return MockMessageID{ledgerID: 1, entryID: int64(len(mp.messages) - 1)}, nil
}

func (mp *MockProducer) Close() {
	mp.closed = true
}

// lastMessageID mimics the admin answer for what the producer wrote.
func (mp *MockProducer) lastMessageID() (pulsar.MessageID, bool, error) {
	mp.Lock()
	defer mp.Unlock()
	if len(mp.messages) == 0 {
		return nil, false, nil
	}
	return MockMessageID{ledgerID: 1, entryID: int64(len(mp.messages) - 1)}, true, nil
}

// MockReader serves the messages of a MockProducer in order.
type MockReader struct {
	producer *MockProducer
	next     int
	closed   bool
}

func (mr *MockReader) Next(ctx context.Context) (pulsar.Message, error) {
	mr.producer.Lock()
	defer mr.producer.Unlock()
	if mr.next >= len(mr.producer.messages) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	msg := mr.producer.messages[mr.next]
	id := MockMessageID{ledgerID: 1, entryID: int64(mr.next)}
	mr.next++
	return &mockMessage{id: id, key: msg.Key, payload: msg.Payload, properties: msg.Properties}, nil
}

func (mr *MockReader) Close() {
	mr.closed = true
}

func newMockPulsarLog(producer *MockProducer) (*PulsarLog, *[]*MockReader) {
	var readers []*MockReader
	pulsarLog := &PulsarLog{
		topic:    "persistent://public/default/__consumer_offsets-partition-0",
		producer: producer,
		openReader: func() (messageReader, error) {
			reader := &MockReader{producer: producer}
			readers = append(readers, reader)
			return reader, nil
		},
		lastMessageID: producer.lastMessageID,
		logger:        testLogger,
	}
	return pulsarLog, &readers
}

// mockStreamClient is an in memory stream with ids "<seq>-0".
type mockStreamClient struct {
	streams map[string][]redis.XMessage
	addErr  error
	closed  bool
}

func newMockStreamClient() *mockStreamClient {
	return &mockStreamClient{streams: map[string][]redis.XMessage{}}
}

func (m *mockStreamClient) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if m.addErr != nil {
		return redis.NewStringResult("", m.addErr)
	}
	values := map[string]interface{}{}
	for field, value := range a.Values.(map[string]interface{}) {
		values[field] = fmt.Sprint(value)
	}
	id := strconv.Itoa(len(m.streams[a.Stream])+1) + "-0"
	m.streams[a.Stream] = append(m.streams[a.Stream], redis.XMessage{ID: id, Values: values})
	return redis.NewStringResult(id, nil)
}

func (m *mockStreamClient) XRangeN(_ context.Context, stream, start, _ string, count int64) *redis.XMessageSliceCmd {
	from := 0
	if strings.HasPrefix(start, "(") {
		seq, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(start, "("), "-0"))
		if err != nil {
			return redis.NewXMessageSliceCmdResult(nil, err)
		}
		from = seq
	}
	messages := m.streams[stream]
	if from > len(messages) {
		from = len(messages)
	}
	to := from + int(count)
	if to > len(messages) {
		to = len(messages)
	}
	return redis.NewXMessageSliceCmdResult(messages[from:to], nil)
}

func (m *mockStreamClient) XRevRangeN(_ context.Context, stream, _, _ string, count int64) *redis.XMessageSliceCmd {
	messages := m.streams[stream]
	var result []redis.XMessage
	for i := len(messages) - 1; i >= 0 && int64(len(result)) < count; i-- {
		result = append(result, messages[i])
	}
	return redis.NewXMessageSliceCmdResult(result, nil)
}

func (m *mockStreamClient) Close() error {
	m.closed = true
	return nil
}

func redisMessage(id string, values map[string]interface{}) redis.XMessage {
	return redis.XMessage{ID: id, Values: values}
}
