package model

// Result is what every mutating coordinator operation returns. Records must be
// appended atomically; Response is only surfaced to the client once the
// append succeeded, which is signalled through AppendFuture when present.
type Result[T any] struct {
	Records      []Record
	Response     T
	AppendFuture *AppendFuture
}

func NewResult[T any](records []Record, response T) Result[T] {
	return Result[T]{Records: records, Response: response}
}

func NewRecordsResult(records []Record) Result[any] {
	return Result[any]{Records: records}
}

func NewFutureResult[T any](records []Record, response T, future *AppendFuture) Result[T] {
	return Result[T]{Records: records, Response: response, AppendFuture: future}
}

// Erase drops the response type so results of different operations can flow
// through one append pipeline.
func (r Result[T]) Erase() Result[any] {
	return Result[any]{Records: r.Records, Response: r.Response, AppendFuture: r.AppendFuture}
}
