package coordinator

import (
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kerr"
)

// ErrIllegalState marks a record stream the coordinator cannot apply. Loading
// must stop when it shows up.
var ErrIllegalState = errors.New("illegal state")

// ErrInvalidRegularExpression is code 128, which the kerr table does not carry.
var ErrInvalidRegularExpression = &kerr.Error{
	Message:     "INVALID_REGULAR_EXPRESSION",
	Code:        128,
	Description: "The regular expression is not valid.",
}

// ErrorCode maps an error to its Kafka protocol error code.
func ErrorCode(err error) int16 {
	if err == nil {
		return 0
	}
	var kafkaErr *kerr.Error
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Code
	}
	return kerr.UnknownServerError.Code
}
