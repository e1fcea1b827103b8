package exception

import "github.com/yanun0323/errors"

var (
	ErrFeedConnection    = errors.New("feed: connection lost")
	ErrFeedParse         = errors.New("feed: malformed message")
	ErrFeedUpstream      = errors.New("feed: upstream error reply")
	ErrFeedNilCodec      = errors.New("feed: nil codec")
	ErrInvalidInstrument = errors.New("feed: invalid instrument")
)
