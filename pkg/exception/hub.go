package exception

import "errors"

var (
	ErrSubscriberClosed   = errors.New("hub: subscriber closed")
	ErrSubscriberOverflow = errors.New("hub: subscriber queue overflow")
)
