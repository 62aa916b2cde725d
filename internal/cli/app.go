package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/backend"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/config"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/credcache"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/cryptox"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/logging"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/netx"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/observability"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/storage"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/trust"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/upload"
	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// Exit codes besides the ones of exitCode.
const (
	exitUsage       = 2
	exitInterrupted = 130
)

var errQuit = errors.New("abandoned by user")

// sender is the orchestrator surface the command uses.
type sender interface {
	controller
	Send(req upload.Request) error
	Changed() <-chan struct{}
	Close()
}

type App struct {
	config  *config.Config
	log     logging.Logger
	sender  sender
	metrics *http.Server

	in          io.Reader
	out         io.Writer
	interactive bool
}

// NewApp wires the upload stack described by c.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log, err := logging.New(c.LogFormat, c.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	client := netx.NewClient()
	creds := credcache.New(credcache.NewHTTPFetcher(client, c.CredentialsURL, c.AppID), log, metrics)

	store, err := storage.New(ctx, c.StagingRegion, c.StagingEndpoint, creds.Provider())
	if err != nil {
		return nil, err
	}

	getters := func(ctx context.Context, region string) (trust.ObjectGetter, error) {
		s, err := storage.NewAnonymous(ctx, region, "")
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	verifier := trust.NewVerifier(
		trust.NewRPCLedger(client, c.LedgerRPCURL, c.ContractAddress, c.FunctionSelector),
		getters, c.MerkleBucket, c.MerkleRegion, log, metrics,
	)

	orch := upload.New(upload.Deps{
		Suite:       cryptox.NewSuite(),
		Credentials: creds,
		Store:       store,
		Backend:     backend.NewClient(client, c.PollURL, c.MultipartCompleteURL, log),
		Verifier:    verifier,
		Log:         log,
		Metrics:     metrics,
	}, upload.OptionsFromConfig(c))

	a := &App{
		config:      c,
		log:         log,
		sender:      orch,
		in:          os.Stdin,
		out:         os.Stdout,
		interactive: isTerminal(int(os.Stdin.Fd())) && isTerminal(int(os.Stdout.Fd())),
	}

	if c.MetricsAddr != "" {
		a.metrics = &http.Server{Addr: c.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(context.Background(), "metrics server stopped", "addr", c.MetricsAddr, "error", err)
			}
		}()
	}
	return a, nil
}

// Run sends what args describe and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	req, closers, err := ParseRequest(args)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	defer a.Close()
	if err != nil {
		fmt.Fprintln(a.out, err)
		return exitUsage
	}

	if err := a.sender.Send(req); err != nil {
		fmt.Fprintln(a.out, "cannot send:", err)
		return 1
	}

	var total int64
	for _, f := range req.Files {
		total += f.Size
	}
	a.log.Info(ctx, "sending", "recipient", recipientString(req.Recipient), "files", len(req.Files), "size", units.HumanSize(float64(total)))

	quit := make(chan struct{})
	if a.interactive {
		go func() {
			if runREPL(ctx, a.sender, bufio.NewScanner(a.in)) {
				close(quit)
			}
		}()
	}

	st, err := a.watch(ctx, quit)
	switch {
	case errors.Is(err, errQuit):
		fmt.Fprintln(a.out, "send abandoned")
		return exitInterrupted
	case err != nil:
		a.sender.Restart()
		fmt.Fprintln(a.out, "send interrupted")
		return exitInterrupted
	}
	return exitCode(st)
}

// watch renders status changes until the send reaches a terminal phase.
func (a *App) watch(ctx context.Context, quit <-chan struct{}) (upload.Status, error) {
	var last string
	for {
		ch := a.sender.Changed()
		st := a.sender.Status()

		line := renderStatus(st)
		key := line
		if !a.interactive {
			key = st.Phase.String()
		}
		if key != last {
			a.print(line, st.Phase.Terminal())
			last = key
		}
		if st.Phase.Terminal() {
			return st, nil
		}

		select {
		case <-ch:
		case <-quit:
			return st, errQuit
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// print rewrites the status line on a terminal and appends lines otherwise.
func (a *App) print(line string, final bool) {
	if !a.interactive {
		fmt.Fprintln(a.out, line)
		return
	}
	fmt.Fprintf(a.out, "\r%s\x1b[K", line)
	if final {
		fmt.Fprintln(a.out)
	}
}

// Close stops the send and the metrics listener.
func (a *App) Close() {
	a.sender.Close()
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
}
