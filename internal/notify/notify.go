// Package notify sends the one email a watch session is allowed to send.
package notify

import "fmt"

// Request is a notification built at the moment of sending. Not persisted.
type Request struct {
	Subject string `json:"subject" yaml:"subject"`
	Body    string `json:"body" yaml:"body"`
}

const (
	finishedSubject = "进程 %d 执行结束" // process %d finished
	finishedBody    = "监控结束"       // monitoring ended
)

// FinishedRequest is the fixed "process finished" message for pid
func FinishedRequest(pid int) Request {
	return Request{
		Subject: fmt.Sprintf(finishedSubject, pid),
		Body:    finishedBody,
	}
}
