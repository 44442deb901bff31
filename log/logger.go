package log

import (
	"github.com/sirupsen/logrus"
	"io"
)

const (
	FieldsPartition  = "partition"
	FieldsClientID   = "clientId"
	FieldsGroupID    = "groupId"
	FieldsMemberID   = "memberId"
	FieldsTopic      = "topic"
	FieldsProducerID = "producerId"
)

type Logger interface {
	Partition(partition int32) Logger
	ClientID(id string) Logger
	GroupID(id string) Logger
	MemberID(id string) Logger
	Topic(topic string) Logger
	ProducerID(id int64) Logger

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type logrusWrapper struct {
	l logrus.FieldLogger
}

func NewLoggerWithLogrus(logger *logrus.Logger, formatter logrus.Formatter) Logger {
	if formatter != nil {
		logger.SetFormatter(formatter)
	}
	return &logrusWrapper{l: logger}
}

// NewDiscardLogger drops everything, tests use it.
func NewDiscardLogger() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &logrusWrapper{l: logger}
}

func (l *logrusWrapper) with(key string, value interface{}) Logger {
	return &logrusWrapper{
		l: l.l.WithFields(logrus.Fields{
			key: value,
		}),
	}
}

func (l *logrusWrapper) Partition(partition int32) Logger {
	return l.with(FieldsPartition, partition)
}

func (l *logrusWrapper) ClientID(id string) Logger {
	return l.with(FieldsClientID, id)
}

func (l *logrusWrapper) GroupID(id string) Logger {
	return l.with(FieldsGroupID, id)
}

func (l *logrusWrapper) MemberID(id string) Logger {
	return l.with(FieldsMemberID, id)
}

func (l *logrusWrapper) Topic(topic string) Logger {
	return l.with(FieldsTopic, topic)
}

func (l *logrusWrapper) ProducerID(id int64) Logger {
	return l.with(FieldsProducerID, id)
}

func (l *logrusWrapper) Debug(args ...interface{}) {
	l.l.Debug(args...)
}

func (l *logrusWrapper) Info(args ...interface{}) {
	l.l.Info(args...)
}

func (l *logrusWrapper) Warn(args ...interface{}) {
	l.l.Warn(args...)
}

func (l *logrusWrapper) Error(args ...interface{}) {
	l.l.Error(args...)
}

func (l *logrusWrapper) Debugf(format string, args ...interface{}) {
	l.l.Debugf(format, args...)
}

func (l *logrusWrapper) Infof(format string, args ...interface{}) {
	l.l.Infof(format, args...)
}

func (l *logrusWrapper) Warnf(format string, args ...interface{}) {
	l.l.Warnf(format, args...)
}

func (l *logrusWrapper) Errorf(format string, args ...interface{}) {
	l.l.Errorf(format, args...)
}
