package repository

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrQueueEmpty = errors.New("queue is empty")
)
