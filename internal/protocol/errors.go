package protocol

import "errors"

var (
	ErrTruncatedFrame = errors.New("truncated frame")
	ErrFrameTooLarge  = errors.New("frame exceeds size limit")
)
