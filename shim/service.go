package shim

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	taskAPI "github.com/containerd/containerd/api/runtime/task/v2"
	tasktypes "github.com/containerd/containerd/api/types/task"
	"github.com/containerd/containerd/protobuf"
	ptypes "github.com/containerd/containerd/v2/pkg/protobuf/types"
	"github.com/containerd/containerd/v2/pkg/shim"
	"github.com/containerd/containerd/v2/pkg/shutdown"
	"github.com/containerd/containerd/v2/plugins"
	"github.com/containerd/errdefs"
	"github.com/containerd/fifo"
	"github.com/containerd/log"
	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"
	"github.com/containerd/ttrpc"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/rkhudov/btf/program"
)

func init() {
	registry.Register(&plugin.Registration{
		Type: plugins.TTRPCPlugin,
		ID:   "task",
		Requires: []plugin.Type{
			plugins.InternalPlugin,
		},
		InitFn: func(ic *plugin.InitContext) (interface{}, error) {
			ss, err := ic.GetByID(plugins.InternalPlugin, "shutdown")
			if err != nil {
				return nil, err
			}
			return newTaskService(ic.Context, ss.(shutdown.Service))
		},
	})
}

// proc is the interpreter init process of one task.
type proc struct {
	pid int

	done       context.Context
	exitTime   time.Time
	exitStatus int

	stdout string
	stdin  string
	stderr string
}

func (p *proc) String() string {
	if p.done.Err() != nil {
		return fmt.Sprintf("pid:%d, exitTime:%s, exitStatus:%d", p.pid, p.exitTime.Format(time.RFC3339), p.exitStatus)
	}
	return fmt.Sprintf("pid:%d running", p.pid)
}

type btfTaskService struct {
	mu       sync.RWMutex
	procs    map[string]*proc
	shutdown shutdown.Service
}

func newTaskService(ctx context.Context, sd shutdown.Service) (taskAPI.TaskService, error) {
	return &btfTaskService{
		procs:    make(map[string]*proc, 1),
		shutdown: sd,
	}, nil
}

// RegisterTTRPC allows TTRPC services to be registered with the underlying server
func (s *btfTaskService) RegisterTTRPC(server *ttrpc.Server) error {
	taskAPI.RegisterTaskService(server, s)
	return nil
}

var (
	_ = shim.TTRPCService(&btfTaskService{})
)

func (s *btfTaskService) doneContext(id string) (context.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	proc, ok := s.procs[id]
	if !ok {
		return nil, fmt.Errorf("task not created: %w", errdefs.ErrNotFound)
	}
	return proc.done, nil
}

// The init process is started suspended so that Create can return its pid
// before the program runs; Start resumes it with SIGCONT.
const startStoppedScript = `
#!/bin/sh
kill -STOP $$
exec $@
`

const commandWaitDelay = 100 * time.Millisecond

// openFifo verifies that path is a fifo and opens it with the given flag.
func openFifo(ctx context.Context, path string, flag int) (io.ReadWriteCloser, error) {
	ok, err := fifo.IsFifo(path)
	if err != nil {
		return nil, fmt.Errorf("checking whether file %s is a fifo: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("file %s is not a fifo", path)
	}
	f, err := fifo.OpenFifo(ctx, path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening fifo %s: %w", path, err)
	}
	return f, nil
}

// copyStream pumps bytes between a process pipe and a containerd fifo
// until either side closes.
func copyStream(ctx context.Context, dst io.Writer, src io.Reader, name string) {
	go func() {
		if _, err := io.Copy(dst, src); err != nil {
			log.G(ctx).WithError(err).Errorf("failed to copy stream %s", name)
		}
	}()
}

// Create a new container
func (s *btfTaskService) Create(ctx context.Context, r *taskAPI.CreateTaskRequest) (_ *taskAPI.CreateTaskResponse, retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.procs[r.ID]; ok {
		return nil, errdefs.ErrAlreadyExists
	}

	config, err := ReadConfig(r.Bundle)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Parse and validate the program before anything starts, so a missing
	// file or unbalanced brackets fail the Create instead of the container.
	prog, err := program.Load(config.FullPath())
	if err != nil {
		return nil, fmt.Errorf("loading program %s: %w", config.Entrypoint, err)
	}
	if err := prog.ValidateBrackets(); err != nil {
		return nil, fmt.Errorf("validating program %s: %w", config.Entrypoint, err)
	}
	log.G(ctx).Debugf("program %s: %d instructions", config.Entrypoint, len(prog.Instructions()))

	scriptPath := filepath.Join(r.Bundle, "start-stopped.sh")
	if err := os.WriteFile(scriptPath, []byte(startStoppedScript), 0755); err != nil {
		return nil, fmt.Errorf("writing start-stopped.sh: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("getting executable of current process: %w", err)
	}

	args := append([]string{scriptPath, self}, config.InterpreterArgs()...)
	cmd := exec.CommandContext(ctx, "/bin/sh", args...)

	// STDOUT
	fw, err := openFifo(ctx, r.Stdout, syscall.O_WRONLY)
	if err != nil {
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdout pipe: %w", err)
	}
	copyStream(ctx, fw, stdoutPipe, r.Stdout)

	// STDIN
	fr, err := openFifo(ctx, r.Stdin, syscall.O_RDONLY)
	if err != nil {
		return nil, err
	}
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdin pipe: %w", err)
	}
	copyStream(ctx, stdinPipe, fr, r.Stdin)

	// STDERR; falls back to the stdout fifo when unset
	stderr := r.Stderr
	if stderr == "" {
		stderr = r.Stdout
	}
	fe, err := openFifo(ctx, stderr, syscall.O_WRONLY)
	if err != nil {
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stderr pipe: %w", err)
	}
	copyStream(ctx, fe, stderrPipe, stderr)

	cmd.WaitDelay = commandWaitDelay

	// Start the process (in a suspended state)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("running init command: %w", err)
	}

	pid := cmd.Process.Pid

	doneCtx, markDone := context.WithCancel(context.Background())

	fin := &finalizer{
		done: markDone,
		cmd:  cmd,
		pid:  pid,
		s:    s,
		id:   r.ID,
	}
	fin.schedule(ctx)

	if err := writePidFile(r.ID, pid); err != nil {
		log.G(ctx).WithError(err).Warn("failed to write init pid file")
	}

	s.procs[r.ID] = &proc{
		pid:    pid,
		done:   doneCtx,
		stdout: r.Stdout,
		stdin:  r.Stdin,
		stderr: r.Stderr,
	}

	return &taskAPI.CreateTaskResponse{
		Pid: uint32(pid),
	}, nil
}

type finalizer struct {
	done func()
	cmd  *exec.Cmd
	pid  int
	s    *btfTaskService
	id   string
}

func (f *finalizer) schedule(ctx context.Context) {
	readyCh := make(chan struct{})
	go f.run(ctx, readyCh)
	<-readyCh
}

func (f *finalizer) run(ctx context.Context, readyCh chan struct{}) {
	readyCh <- struct{}{}

	log.G(ctx).Debug("finalizer (service)")
	if err := f.cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			log.G(ctx).WithError(err).Errorf("failed to wait for init process %d", f.pid)
		}
	}
	log.G(ctx).Debugf("init process %d exited", f.pid)

	exitStatus := 255
	if f.cmd.ProcessState != nil {
		switch unixWaitStatus := f.cmd.ProcessState.Sys().(syscall.WaitStatus); {
		case f.cmd.ProcessState.Exited():
			exitStatus = f.cmd.ProcessState.ExitCode()
		case unixWaitStatus.Signaled():
			exitStatus = exitCodeSignal + int(unixWaitStatus.Signal())
		}
	} else {
		log.G(ctx).Warn("init process wait returned without setting process state")
	}

	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()

	proc, ok := s.procs[f.id]
	if !ok {
		log.G(ctx).Errorf("failed to write final status of done init process: task was removed")
		return
	}

	proc.exitStatus = exitStatus
	proc.exitTime = time.Now()
	f.done()

	// Check if all the procs have exited
	allExited := true
	for _, p := range s.procs {
		if p.done.Err() == nil {
			allExited = false
			break
		}
	}

	if allExited {
		log.G(ctx).Debug("all procs exited. shutting down the shim")
		s.shutdown.Shutdown()
	}
}

// Start the primary user process inside the container
func (s *btfTaskService) Start(ctx context.Context, r *taskAPI.StartRequest) (*taskAPI.StartResponse, error) {
	log.G(ctx).Debug("start (service)")

	s.mu.RLock()
	defer s.mu.RUnlock()
	proc, ok := s.procs[r.ID]
	if !ok {
		return nil, fmt.Errorf("task not created: %w", errdefs.ErrNotFound)
	}

	cmd := exec.CommandContext(ctx, "kill", "-CONT", strconv.Itoa(proc.pid))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting init command: %w", err)
	}

	return &taskAPI.StartResponse{
		Pid: uint32(proc.pid),
	}, nil
}

// Delete a process or container
func (s *btfTaskService) Delete(ctx context.Context, r *taskAPI.DeleteRequest) (*taskAPI.DeleteResponse, error) {
	log.G(ctx).Debug("delete (service)")

	s.mu.Lock()
	defer s.mu.Unlock()

	proc, ok := s.procs[r.ID]
	if !ok {
		return nil, fmt.Errorf("task not created: %w", errdefs.ErrNotFound)
	}

	if proc.done.Err() == nil {
		return nil, errdefs.ErrFailedPrecondition.WithMessage(fmt.Sprintf("init process %d is not done yet", proc.pid))
	}
	delete(s.procs, r.ID)

	return &taskAPI.DeleteResponse{
		Pid:        uint32(proc.pid),
		ExitStatus: uint32(proc.exitStatus),
		ExitedAt:   protobuf.ToTimestamp(proc.exitTime),
	}, nil
}

// Exec an additional process inside the container
func (s *btfTaskService) Exec(ctx context.Context, r *taskAPI.ExecProcessRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("exec (service)")
	return nil, errdefs.ErrNotImplemented.WithMessage("Exec (task)")
}

// ResizePty of a process
func (s *btfTaskService) ResizePty(ctx context.Context, r *taskAPI.ResizePtyRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("resizepty (service)")
	return &ptypes.Empty{}, nil
}

// State returns runtime state of a process
func (s *btfTaskService) State(ctx context.Context, r *taskAPI.StateRequest) (*taskAPI.StateResponse, error) {
	log.G(ctx).Debug("state (service)")

	s.mu.RLock()
	defer s.mu.RUnlock()
	proc, ok := s.procs[r.ID]
	if !ok {
		return nil, fmt.Errorf("task not created: %w", errdefs.ErrNotFound)
	}

	status := tasktypes.Status_RUNNING
	if proc.done.Err() != nil {
		status = tasktypes.Status_STOPPED
	}

	return &taskAPI.StateResponse{
		ID:         r.ID,
		Pid:        uint32(proc.pid),
		Status:     status,
		Stdout:     proc.stdout,
		Stdin:      proc.stdin,
		Stderr:     proc.stderr,
		ExitStatus: uint32(proc.exitStatus),
		ExitedAt:   protobuf.ToTimestamp(proc.exitTime),
	}, nil
}

// Pause the container
func (s *btfTaskService) Pause(ctx context.Context, r *taskAPI.PauseRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("pause (service)")
	return nil, errdefs.ErrNotImplemented.WithMessage("Pause (task)")
}

// Resume the container
func (s *btfTaskService) Resume(ctx context.Context, r *taskAPI.ResumeRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("resume (service)")
	return nil, errdefs.ErrNotImplemented.WithMessage("Resume (task)")
}

// Kill a process
func (s *btfTaskService) Kill(ctx context.Context, r *taskAPI.KillRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("kill (service)")

	alreadyExited, err := func() (bool, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		proc, ok := s.procs[r.ID]
		if !ok {
			return false, fmt.Errorf("task not created: %w", errdefs.ErrNotFound)
		}

		// Check if the process is already done
		if proc.done.Err() != nil {
			return true, nil
		}

		if proc.pid > 0 {
			p, err := os.FindProcess(proc.pid)
			log.G(ctx).Debugf("kill id:%s execid:%s pid:%d sig:%d err:%v", r.ID, r.ExecID, proc.pid, r.Signal, err)
			// The POSIX standard specifies that a null-signal can be sent to check
			// whether a PID is valid.
			if err := p.Signal(syscall.Signal(0)); err == nil {
				sig := syscall.Signal(r.Signal)
				if sig == 0 {
					sig = syscall.SIGKILL
				}
				if err := p.Signal(sig); err != nil {
					return false, fmt.Errorf("sending %s to init process: %w", sig, err)
				}
			}
		}
		return false, nil
	}()

	if err != nil {
		log.G(ctx).WithError(err).Errorf("failed to send kill syscall to init process %s", r.ID)
		return nil, err
	}

	if alreadyExited {
		log.G(ctx).Warnf("task already exited: %s", r.ID)
	} else {
		done, err := s.doneContext(r.ID)
		if err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done.Done():
		}
	}

	return &ptypes.Empty{}, nil
}

// Pids returns all pids inside the container
func (s *btfTaskService) Pids(ctx context.Context, r *taskAPI.PidsRequest) (*taskAPI.PidsResponse, error) {
	log.G(ctx).Debug("pids (service)")
	return nil, errdefs.ErrNotImplemented.WithMessage("Pids (task)")
}

// CloseIO of a process
func (s *btfTaskService) CloseIO(ctx context.Context, r *taskAPI.CloseIORequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("closeio (service)")
	return nil, errdefs.ErrNotImplemented.WithMessage("CloseIO (task)")
}

// Checkpoint the container
func (s *btfTaskService) Checkpoint(ctx context.Context, r *taskAPI.CheckpointTaskRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("checkpoint (service)")
	return nil, errdefs.ErrNotImplemented.WithMessage("Checkpoint (task)")
}

// Connect returns shim information of the underlying service
func (s *btfTaskService) Connect(ctx context.Context, r *taskAPI.ConnectRequest) (*taskAPI.ConnectResponse, error) {
	log.G(ctx).Debug("connect (service)")
	s.mu.RLock()
	defer s.mu.RUnlock()

	proc, ok := s.procs[r.ID]
	if !ok {
		return nil, fmt.Errorf("task not created: %w", errdefs.ErrNotFound)
	}

	return &taskAPI.ConnectResponse{
		ShimPid: uint32(os.Getpid()),
		TaskPid: uint32(proc.pid),
	}, nil
}

// Shutdown is called after the underlying resources of the shim are cleaned up and the service can be stopped
func (s *btfTaskService) Shutdown(ctx context.Context, r *taskAPI.ShutdownRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("shutdown (service)")

	s.shutdown.Shutdown()
	return &ptypes.Empty{}, nil
}

// Stats returns container level system stats for a container and its processes
func (s *btfTaskService) Stats(ctx context.Context, r *taskAPI.StatsRequest) (*taskAPI.StatsResponse, error) {
	log.G(ctx).Debug("stats (service)")
	// the interpreter has no cgroup; return empty stats
	return &taskAPI.StatsResponse{
		Stats: &anypb.Any{},
	}, nil
}

// Update the live container
func (s *btfTaskService) Update(ctx context.Context, r *taskAPI.UpdateTaskRequest) (*ptypes.Empty, error) {
	log.G(ctx).Debug("update (service)")
	return nil, errdefs.ErrAborted.WithMessage("Update (task)")
}

// Wait for a process to exit
func (s *btfTaskService) Wait(ctx context.Context, r *taskAPI.WaitRequest) (*taskAPI.WaitResponse, error) {
	log.G(ctx).Debug("wait (service)")

	done, err := s.doneContext(r.ID)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done.Done():
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	proc, ok := s.procs[r.ID]
	if !ok {
		return nil, fmt.Errorf("task was removed: %w", errdefs.ErrNotFound)
	}

	return &taskAPI.WaitResponse{
		ExitStatus: uint32(proc.exitStatus),
		ExitedAt:   protobuf.ToTimestamp(proc.exitTime),
	}, nil
}
