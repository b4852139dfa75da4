package libcontainer

import "sync"

// waitPIDLocker serializes every blocking wait4 call this process makes on
// a child it forked: Go's os.Process.Wait and a direct syscall.Wait4 from
// two goroutines can race on the same pid, each reaping a different
// child's exit status. Every parentProcess implementation that calls wait
// takes this lock first.
var waitPIDLocker sync.Mutex

func lockWaitPID() func() {
	waitPIDLocker.Lock()
	return waitPIDLocker.Unlock
}
