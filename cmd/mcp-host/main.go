// Command mcp-host runs the MCP host: it loads extension modules from a
// directory, serves the JSON-RPC 2.0 method set over one of three
// transports, and exits when its context is cancelled. Grounded on the
// teacher's cmd/llm/main.go (kong CLI, isTerminal logger selection, OTel
// wiring) and cmd/mcp/mcp.go (the minimal MCP server bring-up).
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	kong "github.com/alecthomas/kong"
	goserver "github.com/mutablelogic/go-server"
	logger "github.com/mutablelogic/go-server/pkg/logger"
	terminal "golang.org/x/term"
	yaml "gopkg.in/yaml.v3"

	mcperr "github.com/vxmcp/mcp-host/pkg/mcp/mcperr"
	registry "github.com/vxmcp/mcp-host/pkg/mcp/registry"
	server "github.com/vxmcp/mcp-host/pkg/mcp/server"
	telemetry "github.com/vxmcp/mcp-host/pkg/mcp/telemetry"
	mcptransport "github.com/vxmcp/mcp-host/pkg/mcp/transport"
	version "github.com/vxmcp/mcp-host/pkg/version"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// CLI is the full set of command-line arguments, following the teacher's
// flat-globals-struct convention (cmd/llm/main.go's Globals).
type CLI struct {
	Name      string           `name:"name" help:"Server name advertised to clients" default:"mcp-host"`
	Plugins   string           `name:"plugins" help:"Directory to scan for extension shared objects" default:"./plugins"`
	Logs      string           `name:"logs" help:"Directory to write log files to, in addition to stderr" type:"path" optional:""`
	Transport string           `name:"transport" help:"Transport to serve: stdio, sse, or http-stream" enum:"stdio,sse,http-stream" default:"stdio"`
	Addr      string           `name:"addr" help:"Listen address for sse/http-stream transports" default:"localhost:8083"`
	Debug     bool             `name:"debug" help:"Enable debug logging"`
	Verbose   bool             `name:"verbose" help:"Enable verbose logging"`
	Config    string           `name:"config" help:"Optional YAML file providing defaults for the flags above" type:"existingfile" optional:""`
	Version   kong.VersionFlag `name:"version" help:"Print version and exit"`

	OTel struct {
		Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" help:"OpenTelemetry endpoint" default:""`
		Header   string `env:"OTEL_EXPORTER_OTLP_HEADERS" help:"OpenTelemetry collector headers"`
		Name     string `env:"OTEL_SERVICE_NAME" help:"OpenTelemetry service name" default:"${EXECUTABLE_NAME}"`
	} `embed:"" prefix:"otel."`
}

////////////////////////////////////////////////////////////////////////////
// ENTRYPOINT

func main() {
	execName := "mcp-host"
	if exe, err := os.Executable(); err == nil {
		execName = filepath.Base(exe)
	}

	opts := []kong.Option{
		kong.Name(execName),
		kong.Description(execName+" is a Model Context Protocol host"),
		kong.Vars{
			"version":         string(version.JSON(execName)),
			"EXECUTABLE_NAME": execName,
		},
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	}
	if path := configFlagValue(os.Args[1:]); path != "" {
		resolver, err := newYAMLResolver(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(-1)
		}
		opts = append(opts, kong.Resolver(resolver))
	}

	cli := new(CLI)
	kong.Parse(cli, opts...)

	os.Exit(run(cli, execName))
}

// configFlagValue scans raw args for --config/--config=... ahead of the
// real kong.Parse call: the config file's own path has to be known before
// kong can be told to resolve defaults from it.
func configFlagValue(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

// yamlResolver implements kong.Resolver by looking up each flag's value
// in a YAML file decoded to a nested map, following the teacher pack's
// convention of YAML-file CLI defaults layered under flag precedence
// (flags explicitly set on the command line still win).
type yamlResolver struct {
	path string
	data map[string]any
}

func newYAMLResolver(path string) (*yamlResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data map[string]any
	if err := yaml.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &yamlResolver{path: path, data: data}, nil
}

func (y *yamlResolver) Validate(app *kong.Application) error { return nil }

// Resolve implements kong.Resolver. Flag names are matched flat
// ("plugins", "addr") and, for embedded groups, by their dotted path
// ("otel.endpoint"), mirroring how kong itself names grouped flags.
func (y *yamlResolver) Resolve(context *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
	if v, ok := y.data[flag.Name]; ok {
		return v, nil
	}
	for _, part := range strings.Split(flag.Name, ".") {
		if sub, ok := y.data[part].(map[string]any); ok {
			if v, ok := sub[flag.Name]; ok {
				return v, nil
			}
		}
	}
	return nil, nil
}

func run(cli *CLI, execName string) int {
	logWriter, closeLogFile, err := logSink(cli.Logs, execName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return -2
	}
	defer closeLogFile()

	var log goserver.Logger
	if isTerminal(os.Stderr) {
		log = logger.New(logWriter, logger.Term, cli.Debug || cli.Verbose)
	} else {
		log = logger.New(logWriter, logger.JSON, cli.Debug || cli.Verbose)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	telemetryProvider, err := telemetry.New(ctx, cli.OTel.Endpoint, cli.OTel.Header, cli.OTel.Name)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return -2
	}
	defer telemetryProvider.Shutdown(context.Background())

	srv, err := server.New(cli.Name, version.Version(),
		server.WithLogger(log),
		server.WithParseErrorHook(telemetryProvider.IncParseError),
		server.WithToolCallHook(telemetryProvider.IncToolCall),
		server.WithTracer(telemetryProvider.Tracer()),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return -2
	}

	// The registry needs the dispatcher as its Notifier before any
	// extension is loaded, so it is built after (and attached to) srv.
	reg := registry.New(srv)
	reg.SetTracer(telemetryProvider.Tracer())
	reg.SetLogger(log)
	if loadErrs, err := reg.Load(cli.Plugins); err != nil {
		log.Printf(ctx, "extension discovery failed: %v", err)
	} else {
		for _, lerr := range loadErrs {
			log.Printf(ctx, "extension not loaded: %v", lerr)
		}
	}
	defer reg.Shutdown()
	srv.AttachRegistry(reg)

	t, err := newTransport(cli.Transport, cli.Addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return -2
	}

	if listener, ok := t.(interface{ ListenAndServe() error }); ok {
		go func() {
			if err := listener.ListenAndServe(); err != nil {
				log.Printf(ctx, "transport listener stopped: %v", err)
			}
		}()
	}

	log.Printf(ctx, "%s@%s serving %s on %s", execName, version.Version(), cli.Transport, cli.Addr)
	if err := srv.Run(ctx, t); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return -1
	}
	t.Stop()
	log.Printf(ctx, "%s stopped", execName)

	return 0
}

// newTransport constructs the requested transport binding (spec.md 4.C/D/E).
func newTransport(name, addr string) (mcptransport.Transport, error) {
	switch name {
	case "stdio":
		return mcptransport.NewStdio(os.Stdin, os.Stdout), nil
	case "sse":
		return mcptransport.NewSSE(addr, addrPort(addr)), nil
	case "http-stream":
		return mcptransport.NewHTTPStream(addr, addrPort(addr)), nil
	default:
		return nil, mcperr.ErrBadParameter.Withf("unknown transport %q", name)
	}
}

// addrPort extracts the numeric port to report from an addr, defaulting
// to 0 when one cannot be parsed (the listener itself still binds addr
// verbatim; this is cosmetic, surfaced only via Transport.Port).
func addrPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// logSink builds the writer the host's logger writes to. With no --logs
// directory it is just os.Stderr; given one, log lines are also appended
// to <execName>.log under that directory (created if necessary), so an
// operator running mcp-host unattended still has a log file to inspect
// after stderr has scrolled away. The returned close func is a no-op
// when no file was opened.
func logSink(dir, execName string) (io.Writer, func(), error) {
	if dir == "" {
		return os.Stderr, func() {}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, execName+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return io.MultiWriter(os.Stderr, f), func() { f.Close() }, nil
}

func isTerminal(w io.Writer) bool {
	if fd, ok := w.(*os.File); ok {
		return terminal.IsTerminal(int(fd.Fd()))
	}
	return false
}
