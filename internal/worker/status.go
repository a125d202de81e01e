package worker

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Values of the shared status word.
const (
	stateIdle int32 = iota
	stateProcessing
	stateDraining
)

// statusSize is the mapped length of the status file.
const statusSize = 8

var errStatusClosed = errors.New("status file closed")

// sharedStatus is the processing flag shared by parent and child: a word in a
// MAP_SHARED file mapping, guarded by flock on that file. Parent and child
// open the file separately so their locks exclude each other; mu serializes
// goroutines within one process.
type sharedStatus struct {
	mu   sync.Mutex
	file *os.File
	mem  []byte
}

// createStatus creates a zeroed status file in dir (the system temp
// directory when empty) and maps it.
func createStatus(dir string) (*sharedStatus, error) {
	f, err := os.CreateTemp(dir, "polyglot-worker-*.status")
	if err != nil {
		return nil, fmt.Errorf("create status file: %w", err)
	}
	if err := f.Truncate(statusSize); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("size status file: %w", err)
	}
	s, err := mapStatus(f)
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	return s, nil
}

// openStatus maps an existing status file created by the parent.
func openStatus(path string) (*sharedStatus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open status file: %w", err)
	}
	return mapStatus(f)
}

func mapStatus(f *os.File) (*sharedStatus, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, statusSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map status file: %w", err)
	}
	return &sharedStatus{file: f, mem: mem}, nil
}

func (s *sharedStatus) path() string {
	return s.file.Name()
}

// lock takes the in-process mutex and then the cross-process file lock.
func (s *sharedStatus) lock() error {
	s.mu.Lock()
	if s.mem == nil {
		s.mu.Unlock()
		return errStatusClosed
	}
	for {
		err := unix.Flock(int(s.file.Fd()), unix.LOCK_EX)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EINTR) {
			s.mu.Unlock()
			return fmt.Errorf("lock status file: %w", err)
		}
	}
}

func (s *sharedStatus) unlock() {
	_ = unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
	s.mu.Unlock()
}

func (s *sharedStatus) word() *int32 {
	return (*int32)(unsafe.Pointer(&s.mem[0]))
}

// state and set must be called with the lock held.
func (s *sharedStatus) state() int32 {
	return atomic.LoadInt32(s.word())
}

func (s *sharedStatus) set(v int32) {
	atomic.StoreInt32(s.word(), v)
}

// processing reports whether the child is inside command execution.
func (s *sharedStatus) processing() bool {
	if err := s.lock(); err != nil {
		return false
	}
	defer s.unlock()
	return s.state() == stateProcessing
}

// drainIfIdle moves an idle status to draining and reports whether it did.
// A processing status is left untouched.
func (s *sharedStatus) drainIfIdle() (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.unlock()
	if s.state() == stateProcessing {
		return false, nil
	}
	s.set(stateDraining)
	return true, nil
}

// close unmaps the status word. remove also deletes the file.
func (s *sharedStatus) close(remove bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if remove {
		if rerr := os.Remove(s.file.Name()); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
			err = rerr
		}
	}
	return err
}
