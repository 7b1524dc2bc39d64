// Command h2c-fetch issues a single HTTP/2 (or HTTP/1.1-fallback)
// request and prints the response status code, as a smoke test
// for the library's Client.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	h2c "github.com/corehttp/h2c"
)

func main() {
	method := flag.String("method", "GET", "HTTP method")
	body := flag.String("body", "", "request body")
	header := flag.String("H", "", "comma-separated key:value header pairs")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: h2c-fetch [flags] <url>")
		os.Exit(2)
	}

	headers := map[string]string{}
	for _, kv := range strings.Split(*header, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, ":", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	cl := h2c.NewClient(h2c.ClientConfig{})
	defer cl.Close()

	done := make(chan struct{})
	var res interface {
		StatusCode() int
	}
	var err error

	go func() {
		res, err = cl.Request(*method, flag.Arg(0), headers, []byte(*body))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(*timeout):
		fmt.Fprintln(os.Stderr, "h2c-fetch: timed out")
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "h2c-fetch: %s\n", err)
		os.Exit(1)
	}

	fmt.Printf("status: %d\n", res.StatusCode())
}
