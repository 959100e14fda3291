package model

import (
	"fmt"
	"runtime/debug"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

// RenderState is the orchestrator lifecycle: INIT -> RUNNING -> DONE,
// with FAILED reachable from INIT and RUNNING.
type RenderState string

const (
	StateInit    RenderState = "INIT"
	StateRunning RenderState = "RUNNING"
	StateDone    RenderState = "DONE"
	StateFailed  RenderState = "FAILED"
)

type RenderStats struct {
	RunID       string      `json:"runId"`
	Output      string      `json:"output"`
	State       RenderState `json:"state"`
	Predictions int         `json:"predictions"`
	Rates       int         `json:"rates"`
	Frames      int         `json:"frames"`
	Overlaid    int         `json:"overlaid"`
	Errors      int         `json:"errors"`
	Uptime      int64       `json:"uptime"`
	FPS         int         `json:"fps"`
	AvgProcTime float64     `json:"avgProcTime"`
	Timestamp   int64       `json:"timestamp"`
}
