// Command cqlbench is a load-generation tool for exercising a cluster with
// concurrent inserts and/or selects, used to sanity-check pool sizing,
// retry behavior and paging under load.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/profile"

	scylla "github.com/scylladb/gocql-native"
)

const insertStmt = "INSERT INTO benchks.benchtab (pk, v1, v2) VALUES (?, ?, ?)"
const selectStmt = "SELECT v1, v2 FROM benchks.benchtab WHERE pk = ?"
const samples = 20_000

type workload int

const (
	Inserts workload = iota
	Selects
	Mixed
)

func parseWorkload(s string) (workload, error) {
	switch strings.ToLower(s) {
	case "inserts":
		return Inserts, nil
	case "selects":
		return Selects, nil
	case "mixed":
		return Mixed, nil
	default:
		return 0, fmt.Errorf("unknown workload %q, want inserts/selects/mixed", s)
	}
}

type config struct {
	hosts       []string
	concurrency int64
	tasks       int64
	batchSize   int64
	workload    workload
	dontPrepare bool
	profileCPU  bool
	profileMem  bool
}

func readConfig() config {
	hosts := flag.String("hosts", "127.0.0.1:9042", "comma-separated contact points")
	concurrency := flag.Int64("concurrency", 64, "number of concurrent workers")
	tasks := flag.Int64("tasks", 1_000_000, "total number of partition keys to touch")
	batchSize := flag.Int64("batch-size", 1000, "partition keys claimed per worker iteration")
	wl := flag.String("workload", "mixed", "inserts, selects or mixed")
	dontPrepare := flag.Bool("dont-prepare", false, "skip keyspace/table setup (and pre-fill for selects)")
	profileCPU := flag.Bool("profile-cpu", false, "enable CPU profiling")
	profileMem := flag.Bool("profile-mem", false, "enable memory profiling")
	flag.Parse()

	wlValue, err := parseWorkload(*wl)
	if err != nil {
		log.Fatal(err)
	}

	return config{
		hosts:       strings.Split(*hosts, ","),
		concurrency: *concurrency,
		tasks:       *tasks,
		batchSize:   *batchSize,
		workload:    wlValue,
		dontPrepare: *dontPrepare,
		profileCPU:  *profileCPU,
		profileMem:  *profileMem,
	}
}

func main() {
	cfg := readConfig()
	log.Printf("benchmark configuration: %#v\n", cfg)

	if cfg.profileCPU && cfg.profileMem {
		log.Fatal("select one profile type")
	}
	if cfg.profileCPU {
		log.Println("running with CPU profiling")
		defer profile.Start(profile.CPUProfile).Stop()
	}
	if cfg.profileMem {
		log.Println("running with memory profiling")
		defer profile.Start(profile.MemProfile).Stop()
	}

	ctx := context.Background()
	sessCfg := scylla.DefaultSessionConfig("benchks", cfg.hosts...)
	session, err := scylla.NewSession(ctx, sessCfg)
	if err != nil {
		log.Fatalf("connecting: %v", err)
	}
	defer session.Close()

	if !cfg.dontPrepare {
		prepareKeyspaceAndTable(ctx, session)
		if cfg.workload == Selects {
			prepareSelectsBenchmark(ctx, session, cfg)
		}
	}

	var wg sync.WaitGroup
	var nextBatchStart int64

	log.Println("starting the benchmark")
	start := time.Now()

	selectCh := make(chan time.Duration, 2*samples)
	insertCh := make(chan time.Duration, 2*samples)

	for i := int64(0); i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			insertQ, err := session.Prepare(ctx, insertStmt)
			if err != nil {
				log.Fatalf("preparing insert: %v", err)
			}
			selectQ, err := session.Prepare(ctx, selectStmt)
			if err != nil {
				log.Fatalf("preparing select: %v", err)
			}

			for {
				batchStart := atomic.AddInt64(&nextBatchStart, cfg.batchSize) - cfg.batchSize
				if batchStart >= cfg.tasks {
					return
				}
				batchEnd := min64(batchStart+cfg.batchSize, cfg.tasks)

				for pk := batchStart; pk < batchEnd; pk++ {
					sampled := rand.Int63n(cfg.tasks) < samples

					if cfg.workload == Inserts || cfg.workload == Mixed {
						runInsert(ctx, insertQ, pk, sampled, insertCh)
					}
					if cfg.workload == Selects || cfg.workload == Mixed {
						runSelect(ctx, selectQ, pk, sampled, selectCh)
					}
				}
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("time %d\n", elapsed.Milliseconds())
	printLatencies("select", selectCh)
	printLatencies("insert", insertCh)
	log.Printf("finished, benchmark time: %d ms\n", elapsed.Milliseconds())
}

func runInsert(ctx context.Context, insertQ scylla.Query, pk int64, sampled bool, insertCh chan<- time.Duration) {
	q := insertQ
	q.BindInt64(0, pk)
	q.BindInt64(1, 2*pk)
	q.BindInt64(2, 3*pk)

	var start time.Time
	if sampled {
		start = time.Now()
	}
	if _, err := q.Exec(ctx); err != nil {
		log.Fatalf("insert pk=%d: %v", pk, err)
	}
	if sampled {
		insertCh <- time.Since(start)
	}
}

func runSelect(ctx context.Context, selectQ scylla.Query, pk int64, sampled bool, selectCh chan<- time.Duration) {
	q := selectQ
	q.BindInt64(0, pk)

	var start time.Time
	if sampled {
		start = time.Now()
	}
	res, err := q.Exec(ctx)
	if err != nil {
		log.Fatalf("select pk=%d: %v", pk, err)
	}
	if sampled {
		selectCh <- time.Since(start)
	}
	if len(res.Rows) == 0 {
		log.Fatalf("select pk=%d returned no rows", pk)
	}
}

func printLatencies(name string, ch chan time.Duration) {
	n := len(ch)
	for i := 0; i < n; i++ {
		fmt.Printf("%s %d\n", name, (<-ch).Nanoseconds())
	}
}

func prepareKeyspaceAndTable(ctx context.Context, session *scylla.Session) {
	mustExec(ctx, session, "DROP KEYSPACE IF EXISTS benchks")
	awaitSchemaAgreement()
	mustExec(ctx, session, "CREATE KEYSPACE IF NOT EXISTS benchks WITH REPLICATION = "+
		"{'class' : 'SimpleStrategy', 'replication_factor' : 1}")
	awaitSchemaAgreement()
	mustExec(ctx, session, "CREATE TABLE IF NOT EXISTS benchks.benchtab "+
		"(pk bigint PRIMARY KEY, v1 bigint, v2 bigint)")
	awaitSchemaAgreement()
}

func prepareSelectsBenchmark(ctx context.Context, session *scylla.Session, cfg config) {
	log.Println("preparing a selects benchmark (inserting values)...")

	var wg sync.WaitGroup
	var nextBatchStart int64
	workers := cfg.concurrency
	if workers < 1024 {
		workers = 1024
	}

	for i := int64(0); i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			insertQ, err := session.Prepare(ctx, insertStmt)
			if err != nil {
				log.Fatalf("preparing insert: %v", err)
			}

			for {
				batchStart := atomic.AddInt64(&nextBatchStart, cfg.batchSize) - cfg.batchSize
				if batchStart >= cfg.tasks {
					return
				}
				batchEnd := min64(batchStart+cfg.batchSize, cfg.tasks)

				for pk := batchStart; pk < batchEnd; pk++ {
					q := insertQ
					q.BindInt64(0, pk)
					q.BindInt64(1, 2*pk)
					q.BindInt64(2, 3*pk)
					if _, err := q.Exec(ctx); err != nil {
						log.Fatalf("insert pk=%d: %v", pk, err)
					}
				}
			}
		}()
	}

	wg.Wait()
}

// awaitSchemaAgreement waits a fixed one-second grace period; it does not
// poll schema versions the way Session.AwaitSchemaAgreement does.
func awaitSchemaAgreement() {
	time.Sleep(time.Second)
}

func mustExec(ctx context.Context, session *scylla.Session, stmt string) {
	q := session.Query(stmt)
	if _, err := q.Exec(ctx); err != nil {
		log.Fatalf("%s: %v", stmt, err)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
