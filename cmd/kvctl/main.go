// Command kvctl drives the kv engine from the shell: a demo subcommand that
// walks all three backends through puts/gets/scans/deletes, and a bench
// subcommand that loads one backend with a synthetic put/get workload and
// reports latency percentiles. Grounded on the teacher's
// cmd/demo/main.go (println-narrated walkthrough style) and
// cmd/benchmark/main.go (flag-driven workload selection), ported from
// flag to pflag and from []byte keys to int64.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	kv "github.com/intellect4all/kvengine"
	"github.com/intellect4all/kvengine/common/benchmark"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "demo":
		runDemo(os.Args[2:])
	case "bench":
		runBench(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "kvctl: unknown subcommand %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: kvctl <demo|bench> [flags]")
	fmt.Println()
	fmt.Println("  demo   walk all three backends through put/get/scan/delete")
	fmt.Println("  bench  load one backend and report latency percentiles")
}

func newLogger() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}

func storageTypeFromName(name string) (kv.StorageType, error) {
	switch name {
	case "append_only_log":
		return kv.AppendOnlyLog, nil
	case "b_tree":
		return kv.BTree, nil
	case "lsm_tree":
		return kv.LSMTree, nil
	default:
		return 0, fmt.Errorf("unknown storage_type %q (want append_only_log, b_tree, or lsm_tree)", name)
	}
}

func runDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	dir := fs.String("dir", "", "database directory (defaults to a temp dir, removed on exit)")
	memtableSize := fs.Uint32("memtable-size", 8, "records buffered before a flush")
	_ = fs.Parse(args)

	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("kvctl demo: append-only log, static B-tree, LSM tree")
	fmt.Println(strings.Repeat("=", 72))

	for _, name := range []string{"append_only_log", "b_tree", "lsm_tree"} {
		fmt.Printf("\n--- %s ---\n", name)
		demoBackend(name, *dir, *memtableSize)
	}
}

func demoBackend(name, baseDir string, memtableSize uint32) {
	st, err := storageTypeFromName(name)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	root := baseDir
	cleanup := false
	if root == "" {
		root, err = os.MkdirTemp("", "kvctl-demo-"+name+"-*")
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		cleanup = true
	}

	cfg := kv.DefaultConfig()
	cfg.StorageType = st
	cfg.MemtableSize = memtableSize
	cfg.Cleanup = cleanup

	store, err := kv.Open(root, cfg, newLogger())
	if err != nil {
		fmt.Println("open failed:", err)
		return
	}
	defer store.Close()

	fmt.Println("put 0..19 (i, i*2), forcing at least one flush")
	for i := int64(0); i < 20; i++ {
		if err := store.Put(i, i*2); err != nil {
			fmt.Println("put failed:", err)
			return
		}
	}

	v, ok, err := store.Get(7)
	fmt.Printf("get(7)  -> value=%d ok=%v err=%v\n", v, ok, err)

	fmt.Println("delete(7)")
	if err := store.Delete(7); err != nil {
		fmt.Println("delete failed:", err)
		return
	}
	v, ok, err = store.Get(7)
	fmt.Printf("get(7)  -> value=%d ok=%v err=%v (expect ok=false)\n", v, ok, err)

	records, err := store.Scan(3, 12)
	if err != nil {
		fmt.Println("scan failed:", err)
		return
	}
	fmt.Printf("scan(3,12) -> %d records (key 7 omitted by the delete above)\n", len(records))
	for _, r := range records {
		fmt.Printf("  %d -> %d\n", r.Key, r.Value)
	}
}

func runBench(args []string) {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	storageType := fs.String("storage-type", "append_only_log", "append_only_log | b_tree | lsm_tree")
	dir := fs.String("dir", "", "database directory (defaults to a temp dir, removed on exit)")
	numKeys := fs.Int("keys", 50_000, "number of distinct keys to put")
	memtableSize := fs.Uint32("memtable-size", 4096, "records buffered before a flush")
	bufferPoolSize := fs.Int("bufferpool-size", 1024, "page cache capacity in entries")
	readRatio := fs.Float64("read-ratio", 0.5, "fraction of operations after the initial load that are gets vs puts")
	ops := fs.Int("ops", 20_000, "number of mixed read/write operations to run after the initial load")
	seed := fs.Int64("seed", 1, "PRNG seed for key selection, reproducible across runs")
	_ = fs.Parse(args)

	st, err := storageTypeFromName(*storageType)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvctl bench:", err)
		os.Exit(1)
	}

	root := *dir
	cleanup := false
	if root == "" {
		root, err = os.MkdirTemp("", "kvctl-bench-*")
		if err != nil {
			fmt.Fprintln(os.Stderr, "kvctl bench:", err)
			os.Exit(1)
		}
		cleanup = true
	}

	cfg := kv.DefaultConfig()
	cfg.StorageType = st
	cfg.MemtableSize = *memtableSize
	cfg.BufferPoolSize = *bufferPoolSize
	cfg.Cleanup = cleanup

	store, err := kv.Open(root, cfg, newLogger())
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvctl bench: open:", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Printf("storage=%s keys=%s ops=%s memtable_size=%d bufferpool_size=%d\n",
		*storageType, humanize.Comma(int64(*numKeys)), humanize.Comma(int64(*ops)), *memtableSize, *bufferPoolSize)

	writeHist := benchmark.NewLatencyHistogram()
	loadStart := time.Now()
	for i := 0; i < *numKeys; i++ {
		key := int64(i)
		t0 := time.Now()
		if err := store.Put(key, key+5); err != nil {
			fmt.Fprintln(os.Stderr, "kvctl bench: put:", err)
			os.Exit(1)
		}
		writeHist.Record(time.Since(t0))
	}
	loadElapsed := time.Since(loadStart)

	fmt.Printf("load:  %s puts in %s (%s/s)\n",
		humanize.Comma(int64(*numKeys)), loadElapsed.Round(time.Millisecond),
		humanize.Comma(int64(float64(*numKeys)/loadElapsed.Seconds())))
	printStats("put", writeHist.Stats())

	rng := rand.New(rand.NewSource(*seed))
	readHist := benchmark.NewLatencyHistogram()
	mixedWriteHist := benchmark.NewLatencyHistogram()
	var hits, misses int

	mixStart := time.Now()
	for i := 0; i < *ops; i++ {
		key := int64(rng.Intn(*numKeys))
		if rng.Float64() < *readRatio {
			t0 := time.Now()
			_, ok, err := store.Get(key)
			readHist.Record(time.Since(t0))
			if err != nil {
				fmt.Fprintln(os.Stderr, "kvctl bench: get:", err)
				os.Exit(1)
			}
			if ok {
				hits++
			} else {
				misses++
			}
		} else {
			t0 := time.Now()
			if err := store.Put(key, key+5); err != nil {
				fmt.Fprintln(os.Stderr, "kvctl bench: put:", err)
				os.Exit(1)
			}
			mixedWriteHist.Record(time.Since(t0))
		}
	}
	mixElapsed := time.Since(mixStart)

	fmt.Printf("mixed: %s ops in %s (%s ops/s), %d hits / %d misses\n",
		humanize.Comma(int64(*ops)), mixElapsed.Round(time.Millisecond),
		humanize.Comma(int64(float64(*ops)/mixElapsed.Seconds())), hits, misses)
	printStats("get", readHist.Stats())
	printStats("put (mixed phase)", mixedWriteHist.Stats())
}

func printStats(label string, s benchmark.LatencyStats) {
	fmt.Printf("  %-20s min=%-10s p50=%-10s p95=%-10s p99=%-10s max=%-10s\n",
		label, s.Min, s.P50, s.P95, s.P99, s.Max)
}
