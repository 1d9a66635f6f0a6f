// Command camctl sends commands to a running camsrv and prints each reply.
//
// With no arguments it runs the smoke sequence: GET /, GET /getprop,
// POST /takephoto, POST /opencamera. Named commands run in the given order.
package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// request is one HTTP call against the server.
type request struct {
	method string
	route  string
}

var requests = map[string]request{
	"health":     {http.MethodGet, "/"},
	"getprop":    {http.MethodGet, "/getprop"},
	"status":     {http.MethodGet, "/status"},
	"takephoto":  {http.MethodPost, "/takephoto"},
	"opencamera": {http.MethodPost, "/opencamera"},
}

var defaultSequence = []string{"health", "getprop", "takephoto", "opencamera"}

type options struct {
	host    string
	port    int
	timeout time.Duration
	names   []string
	help    bool
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet("camctl", pflag.ContinueOnError)
	flagSet.StringVar(&opts.host, "host", "127.0.0.1", "camsrv host")
	flagSet.IntVarP(&opts.port, "port", "p", 8080, "camsrv HTTP port")
	flagSet.DurationVar(&opts.timeout, "timeout", 60*time.Second, "per-request timeout")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return opts, flagSet, err
	}
	if opts.port <= 0 || opts.port > 65535 {
		return opts, flagSet, fmt.Errorf("invalid port: %d", opts.port)
	}

	opts.names = flagSet.Args()
	if len(opts.names) == 0 {
		opts.names = defaultSequence
	}
	for _, name := range opts.names {
		if _, ok := requests[name]; !ok {
			return opts, flagSet, fmt.Errorf("unknown command: %s", name)
		}
	}
	return opts, flagSet, nil
}

func run(args []string, out io.Writer) error {
	opts, flagSet, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.help {
		fmt.Fprintln(os.Stderr, "Usage: camctl [flags] [health|getprop|status|takephoto|opencamera ...]")
		flagSet.PrintDefaults()
		return nil
	}

	base := "http://" + net.JoinHostPort(opts.host, strconv.Itoa(opts.port))
	client := &http.Client{Timeout: opts.timeout}

	failed := 0
	for _, name := range opts.names {
		if err := send(client, base, requests[name], out); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(opts.names))
	}
	return nil
}

// send performs req and prints "[METHOD] /route → status: body". Only
// transport errors are returned; any HTTP status is a reply.
func send(client *http.Client, base string, req request, out io.Writer) error {
	r, err := http.NewRequest(req.method, base+req.route, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(r)
	if err != nil {
		fmt.Fprintf(out, "[%s] %s → Failed: %v\n", req.method, req.route, err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(out, "[%s] %s → Failed: read body: %v\n", req.method, req.route, err)
		return err
	}
	fmt.Fprintf(out, "[%s] %s → %d: %s\n", req.method, req.route, resp.StatusCode, strings.TrimSpace(string(body)))
	return nil
}
