// Command heap-console is an interactive diagnostic console over the
// managed heap core: alloc/incref/decref/collect/stats commands, a
// config-file watcher, and a singleflight-routed stats query path. All heap
// calls happen on the goroutine that runs the stdin command loop — the core
// stays single-threaded cooperative (spec.md §5); the other goroutines
// below only watch the config file and wait for signals.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/blobodin/heapcore/internal/cli"
	"github.com/blobodin/heapcore/internal/heap"
	"github.com/blobodin/heapcore/internal/heapconfig"
	"github.com/blobodin/heapcore/internal/pool"
	"github.com/blobodin/heapcore/internal/roots"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		jsonOutput  = flag.Bool("json", false, "output version in JSON format")
		configPath  = flag.String("config", "", "heap config file to load (and watch for changes)")
		noPrompt    = flag.Bool("no-prompt", false, "disable interactive prompt")
		verbose     = flag.Bool("verbose", false, "log info-level messages (config reloads)")
		debug       = flag.Bool("debug", false, "log debug-level messages in addition to info")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Interactive console for the managed heap core.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCOMMANDS:\n")
		fmt.Fprintf(os.Stderr, "  :alloc <name> <int>        allocate an INT and bind it to a root name\n")
		fmt.Fprintf(os.Stderr, "  :incref <name>             increment the root's target ref count\n")
		fmt.Fprintf(os.Stderr, "  :decref <name>             decrement and unbind the root\n")
		fmt.Fprintf(os.Stderr, "  :collect                   run a stop-and-copy collection\n")
		fmt.Fprintf(os.Stderr, "  :stats                     show refs_used / mem_used\n")
		fmt.Fprintf(os.Stderr, "  :quit, :q                  exit\n")
	}

	flag.Parse()

	if *showVersion {
		cli.PrintVersion("heap-console", *jsonOutput)
		os.Exit(0)
	}

	cfg := heapconfig.Default()
	if *configPath != "" {
		loaded, err := heapconfig.Load(*configPath)
		if err != nil {
			cli.ExitWithError("%v", err)
		}

		cfg = loaded
	}

	logger := cli.NewLogger(*verbose, *debug)

	opts := []heap.Option{heap.WithInitialRefTableSize(cfg.InitialRefTableSize)}
	if cfg.Interactive {
		opts = append(opts, heap.WithInteractive(os.Stderr))
	}

	region := make([]byte, cfg.ArenaSize)
	rootTable := roots.New()
	h := heap.New(region, pool.New(), rootTable, opts...)

	console := &console{heap: h, roots: rootTable, log: logger}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)

	if *configPath != "" {
		watcher, err := heapconfig.Watch(*configPath)
		if err != nil {
			cli.ExitWithError("could not watch %s: %v", *configPath, err)
		}

		defer watcher.Close()

		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case newCfg := <-watcher.Updates:
					console.applyConfig(newCfg)
				case err := <-watcher.Errors:
					console.log.Error("config watch error: %v", err)
				}
			}
		})
	}

	g.Go(func() error {
		select {
		case <-sigCh:
			cancel()
		case <-gctx.Done():
		}

		return nil
	})

	if !*noPrompt {
		fmt.Printf("heap-console v%s — type :help for commands\n", cli.Version)
	}

	console.run(gctx, *noPrompt)
	cancel()
	_ = g.Wait()
}

// console owns the single Heap and is the only thing that calls into it;
// every command below runs on the goroutine that calls run.
type console struct {
	heap  *heap.Heap
	roots *roots.Table
	log   *cli.Logger

	statsGroup singleflight.Group
}

func (c *console) applyConfig(cfg *heapconfig.Config) {
	// The reload is only logged: arena size, initial table size and the
	// diagnostics setting are fixed when the heap is constructed, so none of
	// the new values reach the running heap.
	c.log.Info("config reloaded (interactive=%v)", cfg.Interactive)
}

func (c *console) run(ctx context.Context, noPrompt bool) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !noPrompt {
			fmt.Print("heap> ")
		}

		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == ":quit" || line == ":q" {
			return
		}

		c.dispatch(line)
	}
}

func (c *console) dispatch(line string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case ":help":
		flag.Usage()
	case ":alloc":
		if len(parts) != 3 {
			fmt.Println("usage: :alloc <name> <int>")
			return
		}

		v, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			fmt.Printf("bad integer: %v\n", err)
			return
		}

		ref := c.heap.NewInt(v)
		if ref == heap.NullRef {
			c.log.Debug("allocator exhausted on :alloc %s, collecting and retrying", parts[1])
			c.heap.CollectGarbage()

			ref = c.heap.NewInt(v)
			if ref == heap.NullRef {
				fmt.Println("out of memory")
				return
			}
		}

		c.roots.Set(parts[1], ref)
		fmt.Printf("%s = handle %d\n", parts[1], ref)
	case ":incref":
		if len(parts) != 2 {
			fmt.Println("usage: :incref <name>")
			return
		}

		c.heap.IncRef(c.roots.Get(parts[1]))
	case ":decref":
		if len(parts) != 2 {
			fmt.Println("usage: :decref <name>")
			return
		}

		c.heap.DecRef(c.roots.Get(parts[1]))
		c.roots.Delete(parts[1])
	case ":collect":
		c.log.Debug("collect requested by :collect")
		c.heap.CollectGarbage()
	case ":stats":
		c.printStats()
	default:
		c.log.Warn("unknown command: %s", parts[0])
	}
}

// printStats routes :stats through singleflight. It is only called from the
// command loop, so calls never overlap and each one reads its own
// RefsUsed/MemUsed pair.
func (c *console) printStats() {
	v, _, _ := c.statsGroup.Do("stats", func() (interface{}, error) {
		return fmt.Sprintf("refs_used=%d mem_used=%d", c.heap.RefsUsed(), c.heap.MemUsed()), nil
	})

	fmt.Println(v.(string))
}
