package logstore

import (
	"encoding/json"
	"github.com/pkg/errors"
	"github.com/protocol-laboratory/group-coordinator-go/model"
	"strconv"
	"strings"
)

type encodedEntry struct {
	Offset        int64                   `json:"offset"`
	ProducerID    int64                   `json:"producerId"`
	ProducerEpoch int16                   `json:"producerEpoch"`
	Key           string                  `json:"key,omitempty"`
	Value         json.RawMessage         `json:"value,omitempty"`
	Marker        model.TransactionResult `json:"marker,omitempty"`
}

// EncodeKey renders a record key as "<type>:<json key>".
func EncodeKey(key model.RecordKey) (string, error) {
	data, err := json.Marshal(key)
	if err != nil {
		return "", errors.Wrapf(err, "marshal %s key", key.RecordType())
	}
	return strconv.Itoa(int(key.RecordType())) + ":" + string(data), nil
}

func DecodeKey(encoded string) (model.RecordKey, error) {
	idx := strings.IndexByte(encoded, ':')
	if idx < 0 {
		return nil, errors.Errorf("malformed record key %q", encoded)
	}
	recordType, err := strconv.ParseInt(encoded[:idx], 10, 16)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed record type in key %q", encoded)
	}
	key, err := model.NewKey(model.RecordType(recordType))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(encoded[idx+1:]), key); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s key", key.RecordType())
	}
	return key, nil
}

func encodeEntry(offset int64, entry Entry) (encodedEntry, error) {
	encoded := encodedEntry{Offset: offset, ProducerID: entry.ProducerID, ProducerEpoch: entry.ProducerEpoch}
	if entry.IsControl() {
		if entry.Marker != model.TransactionResultCommit && entry.Marker != model.TransactionResultAbort {
			return encoded, errors.Errorf("control entry at offset %d without marker", offset)
		}
		encoded.Marker = entry.Marker
		return encoded, nil
	}
	if entry.Record.Key == nil {
		return encoded, errors.Errorf("record at offset %d without key", offset)
	}
	key, err := EncodeKey(entry.Record.Key)
	if err != nil {
		return encoded, err
	}
	encoded.Key = key
	if !entry.Record.IsTombstone() {
		value, err := json.Marshal(entry.Record.Value)
		if err != nil {
			return encoded, errors.Wrapf(err, "marshal %s value", entry.Record.Key.RecordType())
		}
		encoded.Value = value
	}
	return encoded, nil
}

func decodeEntry(encoded encodedEntry) (Entry, error) {
	entry := Entry{Offset: encoded.Offset, ProducerID: encoded.ProducerID, ProducerEpoch: encoded.ProducerEpoch}
	if encoded.Key == "" {
		if encoded.Marker != model.TransactionResultCommit && encoded.Marker != model.TransactionResultAbort {
			return entry, errors.Errorf("entry at offset %d has neither key nor marker", encoded.Offset)
		}
		entry.Marker = encoded.Marker
		return entry, nil
	}
	key, err := DecodeKey(encoded.Key)
	if err != nil {
		return entry, err
	}
	record := model.NewTombstone(key)
	if len(encoded.Value) > 0 {
		value, err := model.NewValue(key.RecordType())
		if err != nil {
			return entry, err
		}
		if err := json.Unmarshal(encoded.Value, value); err != nil {
			return entry, errors.Wrapf(err, "unmarshal %s value at offset %d", key.RecordType(), encoded.Offset)
		}
		record.Value = value
	}
	entry.Record = &record
	return entry, nil
}

// EncodeBatch gives the entries contiguous offsets starting at baseOffset and
// renders them as one JSON array.
func EncodeBatch(baseOffset int64, entries []Entry) ([]byte, error) {
	batch := make([]encodedEntry, 0, len(entries))
	for i, entry := range entries {
		encoded, err := encodeEntry(baseOffset+int64(i), entry)
		if err != nil {
			return nil, err
		}
		batch = append(batch, encoded)
	}
	return json.Marshal(batch)
}

func DecodeBatch(data []byte) ([]Entry, error) {
	var batch []encodedEntry
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, errors.Wrap(err, "unmarshal batch")
	}
	entries := make([]Entry, 0, len(batch))
	for _, encoded := range batch {
		entry, err := decodeEntry(encoded)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
