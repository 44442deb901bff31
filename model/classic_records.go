package model

type GroupMetadataKey struct {
	Group string `json:"group"`
}

func (*GroupMetadataKey) RecordType() RecordType { return GroupMetadataRecordType }

type GroupMetadataValue struct {
	ProtocolType          string                `json:"protocolType"`
	Generation            int32                 `json:"generation"`
	Protocol              string                `json:"protocol"`
	Leader                string                `json:"leader"`
	CurrentStateTimestamp int64                 `json:"currentStateTimestamp"`
	Members               []GroupMetadataMember `json:"members"`
}

func (*GroupMetadataValue) isRecordValue() {}

type GroupMetadataMember struct {
	MemberID         string `json:"memberId"`
	GroupInstanceID  string `json:"groupInstanceId"`
	ClientID         string `json:"clientId"`
	ClientHost       string `json:"clientHost"`
	RebalanceTimeout int32  `json:"rebalanceTimeout"`
	SessionTimeout   int32  `json:"sessionTimeout"`
	Subscription     []byte `json:"subscription"`
	Assignment       []byte `json:"assignment"`
}
