package utils

import (
	"errors"
	"fmt"
	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/gogo/protobuf/proto"
	"github.com/protocol-laboratory/group-coordinator-go/constant"
	"github.com/protocol-laboratory/pulsar-admin-go/padmin"
	"github.com/protocol-laboratory/pulsar-codec-go/pb"
	"github.com/sirupsen/logrus"
	"strings"
)

func TopicName(tenant, namespace, topic string) string {
	return fmt.Sprintf(constant.TopicNameFormat, tenant, namespace, topic)
}

func PartitionedTopic(topic string, partition int) string {
	return topic + fmt.Sprintf(constant.PartitionSuffixFormat, partition)
}

// LatestMessageID returns the id of the last message of a partitioned topic,
// false when the topic holds no message yet.
func LatestMessageID(partitionedTopic string, client *padmin.PulsarAdmin) (pulsar.MessageID, bool, error) {
	tenant, namespace, topic, err := getTenantNamespaceTopicFromPartitionedTopic(partitionedTopic)
	if err != nil {
		return nil, false, err
	}
	messageId, err := client.PersistentTopics.GetLastMessageId(tenant, namespace, topic)
	if err != nil {
		logrus.Errorf("get last msgId failed. topic: %s, err: %s", partitionedTopic, err)
		return nil, false, err
	}
	if messageId.EntryId < 0 {
		return nil, false, nil
	}
	bytes, err := generateMsgBytes(messageId)
	if err != nil {
		logrus.Errorf("generate msg bytes failed. topic: %s, err: %s", partitionedTopic, err)
		return nil, false, err
	}
	msgId, err := pulsar.DeserializeMessageID(bytes)
	if err != nil {
		logrus.Errorf("deserialize messageId failed. msgBytes: %v, topic: %s, err: %s", messageId, partitionedTopic, err)
		return nil, false, err
	}
	return msgId, true, nil
}

// ReachedMessageID reports whether id is at or after target on the same partition.
func ReachedMessageID(id, target pulsar.MessageID) bool {
	if id.LedgerID() != target.LedgerID() {
		return id.LedgerID() > target.LedgerID()
	}
	return id.EntryID() >= target.EntryID()
}

func getTenantNamespaceTopicFromPartitionedTopic(partitionedTopic string) (tenant, namespace, shortPartitionedTopic string, err error) {
	if strings.Contains(partitionedTopic, "//") {
		topicArr := strings.Split(partitionedTopic, "//")
		if len(topicArr) < 2 {
			return "", "", "", errors.New("get tenant and namespace failed")
		}
		list := strings.Split(topicArr[1], "/")
		if len(list) < 3 {
			return "", "", "", errors.New("get tenant and namespace failed")
		}
		return list[0], list[1], list[2], nil
	}
	return "", "", "", errors.New("get tenant and namespace failed")
}

func CalculateMsgLength(message pulsar.Message) int {
	length := 0
	length += len([]byte(message.Key()))
	length += len(message.Payload())
	properties := message.Properties()
	for key, value := range properties {
		length += len([]byte(key))
		length += len([]byte(value))
	}
	return length
}

func generateMsgBytes(messageId *padmin.MessageId) ([]byte, error) {
	pulsarMessageData := pb.MessageIdData{
		LedgerId:   proto.Uint64(uint64(messageId.LedgerId)),
		EntryId:    proto.Uint64(uint64(messageId.EntryId)),
		BatchIndex: proto.Int32(0),
		Partition:  proto.Int32(messageId.PartitionIndex),
	}
	data, err := proto.Marshal(&pulsarMessageData)
	if err != nil {
		logrus.Errorf("marshal failed. msg: %v, err: %s", messageId, err)
		return nil, err
	}
	return data, nil
}
