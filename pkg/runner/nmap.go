package runner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"agentscan/pkg/workflow"

	nmap "github.com/Ullaakut/nmap/v3"
	log "github.com/sirupsen/logrus"
)

// ScanFunc runs an nmap scan. Swapped out in tests.
type ScanFunc func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error)

// NmapExecutor runs a service-detection baseline over the configured ports
// before handing the strategy's own commands to the shell executor. The
// assessor then always has a port table to judge the commands against.
type NmapExecutor struct {
	Shell *ShellExecutor
	scan  ScanFunc
}

func NewNmapExecutor(shell *ShellExecutor) *NmapExecutor {
	if shell == nil {
		shell = NewShellExecutor()
	}
	return &NmapExecutor{Shell: shell, scan: runNmap}
}

// WithScanFunc replaces the nmap invocation.
func (e *NmapExecutor) WithScanFunc(fn ScanFunc) *NmapExecutor {
	e.scan = fn
	return e
}

func (e *NmapExecutor) Execute(ctx context.Context, req workflow.ExecutionRequest) (string, error) {
	baseline, err := e.baseline(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.WithError(err).WithField("target", req.TargetIP).Warn("Nmap baseline failed")
		baseline = fmt.Sprintf("[nmap baseline failed: %v]\n", err)
	}

	rest, err := e.Shell.Execute(ctx, req)
	return baseline + "\n" + rest, err
}

func (e *NmapExecutor) baseline(ctx context.Context, req workflow.ExecutionRequest) (string, error) {
	ports := make([]string, len(req.Parameters.Ports))
	for i, p := range req.Parameters.Ports {
		ports[i] = strconv.Itoa(p)
	}

	opts := []nmap.Option{
		nmap.WithTargets(req.TargetIP),
		nmap.WithDisabledDNSResolution(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithServiceInfo(),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
	}
	if len(ports) > 0 {
		opts = append(opts, nmap.WithPorts(strings.Join(ports, ",")))
	}

	// the whole port list gets one timeout budget per port batch of ten
	if req.Parameters.Timeout > 0 {
		budget := time.Duration(req.Parameters.Timeout) * time.Second * time.Duration(len(ports)/10+1)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	log.WithFields(log.Fields{
		"target": req.TargetIP,
		"ports":  len(ports),
	}).Info("Starting nmap baseline")

	result, err := e.scan(ctx, opts...)
	if err != nil {
		return "", err
	}
	return FormatNmapRun(result), nil
}

func runNmap(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("run nmap: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		log.WithField("warnings", *warnings).Warn("Nmap scan produced warnings")
	}
	return result, nil
}

// FormatNmapRun renders open ports per host in a stable order.
func FormatNmapRun(run *nmap.Run) string {
	var b strings.Builder
	b.WriteString("$ nmap baseline\n")
	if run == nil || len(run.Hosts) == 0 {
		b.WriteString("no hosts up\n")
		return b.String()
	}

	for _, h := range run.Hosts {
		addr := pickHostAddress(h)
		if addr == "" {
			continue
		}
		fmt.Fprintf(&b, "host %s\n", addr)

		ports := append([]nmap.Port(nil), h.Ports...)
		sort.Slice(ports, func(i, j int) bool { return ports[i].ID < ports[j].ID })

		open := 0
		for _, p := range ports {
			if !strings.HasPrefix(strings.ToLower(p.State.State), "open") {
				continue
			}
			open++
			service := strings.TrimSpace(strings.Join([]string{p.Service.Name, p.Service.Product, p.Service.Version}, " "))
			fmt.Fprintf(&b, "  %d/%s %s %s\n", p.ID, p.Protocol, p.State.State, service)
		}
		if open == 0 {
			b.WriteString("  no open ports\n")
		}
	}
	return b.String()
}

func pickHostAddress(h nmap.Host) string {
	for _, a := range h.Addresses {
		if a.AddrType == "ipv4" {
			return a.Addr
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}
