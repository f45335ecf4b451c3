package xmetrics

import "errors"

// NewOTelObserver 返回的错误
var (
	ErrCreateInstrument = errors.New("xmetrics: create instrument failed")
	ErrInvalidBuckets   = errors.New("xmetrics: invalid histogram buckets")
	ErrNilOption        = errors.New("xmetrics: nil option")
)
