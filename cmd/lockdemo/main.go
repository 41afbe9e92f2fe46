package main

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"lockmgr/pkg/concurrency/lock"
	"lockmgr/pkg/logging"
)

// rowType is the only resource type this demo registers: rows in an
// imaginary "accounts" table, addressed by row id.
type rowType struct{}

func (rowType) TypeID() int    { return 0 }
func (rowType) String() string { return "row" }

var rows rowType

func main() {
	fmt.Println("=== Lock Manager Demo ===")

	logging.InitDefault()

	mgr := lock.NewManager(lock.Config{
		TypeCount:          1,
		AcquisitionTimeout: 2 * time.Second,
		Resolution:         lock.AbortYounger{},
		Tracer:             lock.NewLoggingTracer(),
		// The in-place upgrade below sits out the 50-try grace period; the
		// default exponential backoff would take longer than the timeout.
		WaitStrategies: []lock.WaitStrategy{lock.ConstantBackoff{Interval: time.Millisecond}},
	})

	fmt.Println("\n1. Re-entrant shared acquire...")
	reader := mgr.NewClient()
	if err := reader.AcquireShared(rows, 42); err != nil {
		log.Fatalf("AcquireShared failed: %v", err)
	}
	if err := reader.AcquireShared(rows, 42); err != nil {
		log.Fatalf("re-entrant AcquireShared failed: %v", err)
	}
	fmt.Printf("   client %d holds %d active locks\n", reader.LockSessionID(), len(reader.ActiveLocks()))
	mgr.Release(reader)

	fmt.Println("\n2. Shared -> exclusive in-place upgrade...")
	writer := mgr.NewClient()
	if err := writer.AcquireShared(rows, 7); err != nil {
		log.Fatalf("AcquireShared failed: %v", err)
	}
	if err := writer.AcquireExclusive(rows, 7); err != nil {
		log.Fatalf("promotion failed: %v", err)
	}
	fmt.Printf("   client %d promoted row 7 to exclusive\n", writer.LockSessionID())
	mgr.Release(writer)

	fmt.Println("\n3. Concurrent contention across goroutines...")
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		i := i
		g.Go(func() error {
			c := mgr.NewClient()
			defer mgr.Release(c)

			if err := c.AcquireShared(rows, 1); err != nil {
				return fmt.Errorf("goroutine %d: %w", i, err)
			}
			time.Sleep(10 * time.Millisecond)
			fmt.Printf("   goroutine %d (client %d) holds row 1 shared\n", i, c.LockSessionID())
			return c.ReleaseShared(rows, 1)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("concurrent phase failed: %v", err)
	}

	fmt.Println("\n4. Non-blocking try variants...")
	probe := mgr.NewClient()
	holder := mgr.NewClient()
	if err := holder.AcquireExclusive(rows, 99); err != nil {
		log.Fatalf("AcquireExclusive failed: %v", err)
	}
	if probe.TryShared(rows, 99) {
		log.Fatalf("expected TryShared to fail against an exclusively held resource")
	}
	fmt.Println("   TryShared correctly refused to block on a held resource")
	if err := holder.ReleaseExclusive(rows, 99); err != nil {
		log.Fatalf("ReleaseExclusive failed: %v", err)
	}
	if !probe.TryExclusive(rows, 99) {
		log.Fatalf("expected TryExclusive to succeed once the resource is free")
	}
	fmt.Println("   TryExclusive acquired the now-free resource without waiting")
	mgr.Release(probe)
	mgr.Release(holder)

	fmt.Printf("\nactive clients remaining: %d\n", mgr.ActiveClientCount())
	fmt.Println("=== Demo complete ===")
}
