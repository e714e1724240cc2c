package server

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/clusterkit/raftkv/internal/clusterkv"
	"github.com/clusterkit/raftkv/internal/httpapi"
	"github.com/clusterkit/raftkv/internal/kvsm"
	"github.com/clusterkit/raftkv/internal/raft"
	"github.com/clusterkit/raftkv/internal/raft/membership"
	"github.com/clusterkit/raftkv/internal/raft/storage"
	"github.com/clusterkit/raftkv/internal/raft/transporthttp"
	"github.com/clusterkit/raftkv/internal/types"
)

// Run wires together the node components and starts listening.
func Run() error {
	nodeID := flag.Uint64("id", 1, "Numeric node identity, unique within the cluster")
	listen := flag.String("listen", "127.0.0.1:8080", "Local listen address (host:port)")
	peersFlag := flag.String("peers", "", "Comma-separated peer addresses (host:port); own address is filtered out")
	joinAddr := flag.String("join", "", "Existing member to announce this node to at startup")
	electionMin := flag.Duration("election-min", 150*time.Millisecond, "Election timeout lower bound")
	electionMax := flag.Duration("election-max", 300*time.Millisecond, "Election timeout upper bound")
	heartbeat := flag.Duration("heartbeat", 50*time.Millisecond, "Leader heartbeat interval")
	voteRule := flag.String("vote-rule", "self-affirm", "Vote granting rule: self-affirm or canonical")
	flag.Parse()

	log.Printf("starting node %d on %s", *nodeID, *listen)

	// Keep every node but this one in the membership.
	var peers []string
	for _, p := range strings.Split(*peersFlag, ",") {
		p = strings.TrimSpace(p)
		if p == "" || p == *listen {
			continue
		}
		peers = append(peers, p)
	}
	members := membership.New(peers)

	rule := raft.VoteRuleSelfAffirm
	switch *voteRule {
	case "self-affirm":
	case "canonical":
		rule = raft.VoteRuleCanonical
	default:
		return fmt.Errorf("unknown vote rule %q", *voteRule)
	}

	sm := kvsm.New()
	stable := storage.NewMemStableStore()
	logStore := storage.NewMemLogStore()
	tp := transporthttp.NewHTTPTransport()

	cfg := raft.Config{
		ID:       types.NodeID(*nodeID),
		Addr:     *listen,
		VoteRule: rule,
		Timing: raft.TimingConfig{
			ElectionTimeoutMin: *electionMin,
			ElectionTimeoutMax: *electionMax,
			HeartbeatInterval:  *heartbeat,
		},
	}

	node, err := raft.NewNode(cfg, stable, logStore, members, tp, sm)
	if err != nil {
		return err
	}

	ckv := clusterkv.New(node, sm)
	apiServer := httpapi.New(ckv)

	// Combine API + Raft HTTP handlers
	mux := http.NewServeMux()
	mux.Handle("/raft/", node.RaftHTTPHandler().Handler())
	mux.Handle("/", apiServer.Handler())

	srv := &http.Server{
		Addr:    *listen,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return err
	}

	// Announce this node to an existing member so its campaigns and
	// heartbeats include us.
	if *joinAddr != "" {
		joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := tp.Join(joinCtx, *joinAddr, []byte(*listen)); err != nil {
			log.Printf("join announcement to %s failed: %v", *joinAddr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		// A bind failure here is fatal for the process.
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("shutting down...")
		node.Stop(context.Background())
		return srv.Shutdown(context.Background())
	}
}
