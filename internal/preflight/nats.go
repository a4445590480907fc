package preflight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// CheckNATS dials the NATS server and verifies JetStream is enabled.
func CheckNATS(ctx context.Context, url string, timeout time.Duration) Result {
	const name = "NATS"
	if strings.TrimSpace(url) == "" {
		return Result{Name: name, Required: true, Detail: "missing url"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := nats.Connect(url, nats.Name("murmur-preflight"), nats.Timeout(timeout), nats.NoReconnect())
	if err != nil {
		return Result{Name: name, Required: true, Detail: fmt.Sprintf("connect %s: %v", url, err)}
	}
	defer conn.Close()

	js, err := conn.JetStream()
	if err != nil {
		return Result{Name: name, Required: true, Detail: fmt.Sprintf("jetstream: %v", err)}
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := js.AccountInfo(nats.Context(checkCtx)); err != nil {
		return Result{Name: name, Required: true, Detail: fmt.Sprintf("jetstream unavailable: %v", err)}
	}
	return Result{Name: name, Passed: true, Required: true, Detail: conn.ConnectedUrl()}
}
