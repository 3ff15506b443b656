// Command pollsched-demo exercises a PollBackend scheduler: a periodic
// timer ticks once a second and a pipe write wakes a DEVICE callback,
// both printed to stdout until Ctrl+C.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tjamet/go-pollsched"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (optional)")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	cfg := pollsched.DefaultConfig()
	if *configPath != "" {
		loaded, err := pollsched.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("pollsched-demo: loading config: %v", err)
		}
		cfg = loaded
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	if err := pollsched.InitDefault(cfg); err != nil {
		log.Fatalf("pollsched-demo: init: %v", err)
	}
	defer func() {
		if err := pollsched.Exit(); err != nil {
			log.Printf("pollsched-demo: exit: %v", err)
		}
	}()

	ticks := int64(0)
	_, err := pollsched.RegisterTimer(func(any) {
		n := atomic.AddInt64(&ticks, 1)
		fmt.Printf("tick %d\n", n)
	}, nil, 1_000_000, true, nil)
	if err != nil {
		log.Fatalf("pollsched-demo: registering timer: %v", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		log.Fatalf("pollsched-demo: creating pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	_, err = pollsched.RegisterDevice(func(any) {
		buf := make([]byte, 64)
		n, _ := r.Read(buf)
		fmt.Printf("device: read %d bytes: %q\n", n, buf[:n])
	}, nil, int64(r.Fd()), true)
	if err != nil {
		log.Fatalf("pollsched-demo: registering device: %v", err)
	}

	go func() {
		for {
			time.Sleep(3 * time.Second)
			if _, err := w.Write([]byte("ping")); err != nil {
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	exiting := int32(0)
	exitFlag := func() bool { return atomic.LoadInt32(&exiting) != 0 }

	go func() {
		<-sigCh
		atomic.StoreInt32(&exiting, 1)
	}()

	if err := pollsched.LoopDefault(true, exitFlag, pollsched.ClassUniversal); err != nil {
		log.Fatalf("pollsched-demo: loop: %v", err)
	}
	snap := pollsched.DefaultMetrics()
	fmt.Printf("pollsched-demo: exiting (main-loop=%d timer=%d device=%d waits=%d avg-wait=%dns)\n",
		snap.MainLoopFires, snap.TimerFires, snap.DeviceFires, snap.ReadinessWaits, snap.AvgWaitLatencyNs)
}
