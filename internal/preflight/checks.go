package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"quire/internal/config"
	"quire/internal/deps"
)

const backendProbeTimeout = 3 * time.Second

// BackendCheckName names the listener reachability result.
const BackendCheckName = "Backend listener"

// Dialer opens a connection to the backend listener.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// CheckBackend verifies that the conversion listener accepts TCP connections.
// A nil dial uses a net.Dialer with a short timeout.
func CheckBackend(ctx context.Context, host string, port int, dial Dialer) Result {
	const name = BackendCheckName

	address := net.JoinHostPort(host, strconv.Itoa(port))
	if host == "" || port <= 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not configured)", address)}
	}
	if dial == nil {
		d := &net.Dialer{Timeout: backendProbeTimeout}
		dial = d.DialContext
	}

	checkCtx, cancel := context.WithTimeout(ctx, backendProbeTimeout)
	defer cancel()

	conn, err := dial(checkCtx, "tcp", address)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", address, summarizeDialError(err))}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (accepting connections)", address)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external commands the daemon shells out to.
// The daemon logs these at startup and the status RPC reports them.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	requirements := []deps.Requirement{
		{
			Name:        "unoconvert",
			Command:     cfg.Backend.UnoconvertBinary,
			Description: "Required for document conversion",
		},
	}
	if cfg.Backend.RestartCommand != "" {
		requirements = append(requirements,
			deps.Requirement{
				Name:        "sh",
				Command:     "sh",
				Description: "Runs the backend restart command",
			},
			deps.Requirement{
				Name:        "Restart command",
				Command:     deps.RestartBinary(cfg.Backend.RestartCommand),
				Description: "Restarts a hung backend after a timeout",
				Optional:    true,
			},
		)
	}
	return deps.CheckBinaries(requirements)
}

func summarizeDialError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "connect timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connect timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return err.Error()
}
