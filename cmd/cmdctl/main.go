// Command cmdctl sends one command to a cmdserver and prints the response.
//
//	cmdctl --command ping
//	cmdctl --command calculate --payload '{"operation":"divide","a":1,"b":4}'
//	echo '{"request_id":"…","command":"time"}' | cmdctl
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/code19m/errx"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"mini-cmd/client"
	"mini-cmd/loadbalance"
	"mini-cmd/logger"
	"mini-cmd/registry"
)

type options struct {
	addr     string
	etcd     []string
	service  string
	balancer string
	command  string
	payload  string
	timeout  time.Duration
}

func main() {
	var opts options
	fs := pflag.NewFlagSet("cmdctl", pflag.ContinueOnError)
	fs.StringVar(&opts.addr, "addr", "localhost:7878", "server address")
	fs.StringSliceVar(&opts.etcd, "etcd", nil, "discover servers in etcd instead of using --addr")
	fs.StringVar(&opts.service, "service", "mini-cmd", "service name to discover")
	fs.StringVar(&opts.balancer, "balancer", loadbalance.StrategyRoundRobin, "round_robin or weighted_random")
	fs.StringVar(&opts.command, "command", "", "command to send; reads a request document from args or stdin when empty")
	fs.StringVar(&opts.payload, "payload", "", "JSON payload for --command")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	failed, err := run(opts, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdctl: %v\n", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(3)
	}
}

// run sends the request and prints the response. It reports whether the response was an error.
func run(opts options, args []string) (bool, error) {
	data, err := requestDocument(opts, args)
	if err != nil {
		return false, err
	}

	c, closeFn, err := newClient(opts)
	if err != nil {
		return false, err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	resp, err := c.Send(ctx, data)
	if err != nil {
		return false, err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return false, errx.Wrap(err)
	}
	fmt.Println(string(out))
	return resp.IsError(), nil
}

// requestDocument builds the request from --command/--payload, or takes it verbatim
// from the first argument or stdin.
func requestDocument(opts options, args []string) ([]byte, error) {
	if opts.command == "" {
		if len(args) > 0 {
			return []byte(args[0]), nil
		}
		data, err := io.ReadAll(os.Stdin)
		return data, errx.Wrap(err)
	}

	doc := map[string]any{
		"request_id": uuid.NewString(),
		"command":    opts.command,
	}
	if opts.payload != "" {
		if !json.Valid([]byte(opts.payload)) {
			return nil, errx.New("--payload is not valid JSON")
		}
		doc["payload"] = json.RawMessage(opts.payload)
	}
	data, err := json.Marshal(doc)
	return data, errx.Wrap(err)
}

func newClient(opts options) (*client.Client, func(), error) {
	if len(opts.etcd) == 0 {
		return client.NewClient(client.WithAddr(opts.addr), client.WithTimeout(opts.timeout)), func() {}, nil
	}

	bal, err := loadbalance.New(opts.balancer)
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.NewEtcdRegistry(registry.Config{Endpoints: opts.etcd, DialTimeout: 5 * time.Second}, logger.NewNop())
	if err != nil {
		return nil, nil, err
	}
	c := client.NewClient(client.WithRegistry(reg, opts.service, bal), client.WithTimeout(opts.timeout))
	return c, func() { _ = reg.Close() }, nil
}
