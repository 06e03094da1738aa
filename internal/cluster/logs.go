package cluster

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
)

// LogLine is one timestamped log line, grounded on the teacher's
// GetOrTailLogs LogLine type (pod.go).
type LogLine struct {
	Timestamp time.Time
	Line      string
}

// StreamLogs reads (and optionally follows) a pod's logs, sending each
// line to logsCh and closing it when the stream ends or ctx is done.
// Grounded on the teacher's GetOrTailLogs (pod.go), generalized to a
// single entrypoint Handlers call for both one-shot and tailing reads
// (spec §4.4 logs(TaskRun)).
func (c *Client) StreamLogs(ctx context.Context, podName string, follow bool, logsCh chan<- LogLine) error {
	defer close(logsCh)

	req := c.kube.CoreV1().Pods(c.namespace).GetLogs(podName, &corev1.PodLogOptions{
		Timestamps: true,
		Follow:     follow,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	reader := bufio.NewReader(stream)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339Nano, parts[0])
		select {
		case logsCh <- LogLine{Timestamp: ts, Line: parts[1]}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
