package deployment

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"clickherd/chconfig"
	"clickherd/topology"
)

// Lifecycle starts and stops node processes. The orchestration code only
// depends on this interface so its ordering rules can be tested without
// touching real processes.
type Lifecycle interface {
	StartKeeper(id topology.NodeID) error
	StopKeeper(id topology.NodeID) error
	StartServer(id topology.NodeID) error
	StopServer(id topology.NodeID) error
}

// ProcessLifecycle runs nodes as local OS processes via the clickhouse
// multi-call binary. Starts are fire-and-forget: the child is spawned with
// its stdio detached and no liveness check is made. Stops SIGKILL the pid
// recorded in the node's pidfile.
type ProcessLifecycle struct {
	// Binary is the clickhouse executable to invoke, usually "clickhouse".
	Binary string

	// Projector supplies the per-node directories.
	Projector *chconfig.Projector

	Logger *zap.Logger
}

var _ Lifecycle = (*ProcessLifecycle)(nil)

func (l *ProcessLifecycle) spawn(arg ...string) error {
	cmd := exec.Command(l.Binary, arg...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s %s", l.Binary, strings.Join(arg, " "))
	}

	// The child outlives this invocation; detach so we don't hold on to it.
	return cmd.Process.Release()
}

func (l *ProcessLifecycle) kill(pidfile string) error {
	data, err := os.ReadFile(pidfile)
	if err != nil {
		return errors.Wrapf(err, "failed to read pidfile %s", pidfile)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return errors.Wrapf(err, "malformed pidfile %s", pidfile)
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return errors.Wrapf(err, "failed to kill pid %d", pid)
	}

	if err := os.Remove(pidfile); err != nil {
		return errors.Wrapf(err, "failed to remove pidfile %s", pidfile)
	}

	return nil
}

func (l *ProcessLifecycle) StartKeeper(id topology.NodeID) error {
	dir := l.Projector.KeeperDir(id)
	l.Logger.Info("starting keeper",
		zap.Uint64("id", uint64(id)),
		zap.String("dir", dir))

	return l.spawn("keeper",
		"-C", filepath.Join(dir, "keeper-config.xml"),
		"--pidfile", filepath.Join(dir, "keeper.pid"))
}

func (l *ProcessLifecycle) StopKeeper(id topology.NodeID) error {
	dir := l.Projector.KeeperDir(id)
	l.Logger.Info("stopping keeper",
		zap.Uint64("id", uint64(id)),
		zap.String("dir", dir))

	return l.kill(filepath.Join(dir, "keeper.pid"))
}

func (l *ProcessLifecycle) StartServer(id topology.NodeID) error {
	dir := l.Projector.ServerDir(id)
	l.Logger.Info("starting clickhouse server",
		zap.Uint64("id", uint64(id)),
		zap.String("dir", dir))

	return l.spawn("server",
		"-C", filepath.Join(dir, "clickhouse-config.xml"),
		"--pidfile", filepath.Join(dir, "clickhouse.pid"))
}

func (l *ProcessLifecycle) StopServer(id topology.NodeID) error {
	dir := l.Projector.ServerDir(id)
	l.Logger.Info("stopping clickhouse server",
		zap.Uint64("id", uint64(id)),
		zap.String("dir", dir))

	return l.kill(filepath.Join(dir, "clickhouse.pid"))
}
