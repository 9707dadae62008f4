package queue

import "errors"

// ErrQueueDisabled 队列未启用，任务未投递
var ErrQueueDisabled = errors.New("queue disabled")
