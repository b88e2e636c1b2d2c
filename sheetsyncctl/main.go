package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/sheetsync/sheetsync"
)

const SheetSyncCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Sheet sync control.

Serves an in-memory document store over websocket, and reads, writes
and watches documents on a running server.

Usage:
    sheetsyncctl serve [--port=<port>]
    sheetsyncctl get <path> [--url=<url>]
    sheetsyncctl set <path> <json> [--url=<url>] [--replace]
    sheetsyncctl watch <path> [--url=<url>]

Options:
    -h --help        Show this screen.
    --version        Show version.
    --port=<port>    Listen port [default: 4123].
    --url=<url>      Sync server url [default: ws://127.0.0.1:4123/ws].
    --replace        Replace the whole document instead of merging.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], SheetSyncCtlVersion)
	if err != nil {
		panic(err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(cancelCtx, opts)
	} else if get_, _ := opts.Bool("get"); get_ {
		get(cancelCtx, opts)
	} else if set_, _ := opts.Bool("set"); set_ {
		set(cancelCtx, opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(cancelCtx, opts)
	}
}

func serve(ctx context.Context, opts docopt.Opts) {
	port, _ := opts.Int("--port")

	store := sheetsync.NewMemoryStore()
	server := sheetsync.NewSyncServerWithDefaults(ctx, store)
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", server)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	Out.Printf("serving ws://%s/ws\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		Err.Fatal(err)
	}
}

func get(ctx context.Context, opts docopt.Opts) {
	path, _ := opts.String("<path>")

	store := dial(ctx, opts)
	defer store.Close()

	snapshot, err := store.Get(ctx, path)
	if err != nil {
		Err.Fatal(err)
	}
	printJson(snapshot)
}

func set(ctx context.Context, opts docopt.Opts) {
	path, _ := opts.String("<path>")
	docJson, _ := opts.String("<json>")
	replace, _ := opts.Bool("--replace")

	doc := &sheetsync.Document{}
	if err := json.Unmarshal([]byte(docJson), doc); err != nil {
		Err.Fatal(err)
	}

	store := dial(ctx, opts)
	defer store.Close()

	if err := store.Set(ctx, path, doc, !replace); err != nil {
		Err.Fatal(err)
	}
	Out.Printf("ok\n")
}

func watch(ctx context.Context, opts docopt.Opts) {
	path, _ := opts.String("<path>")

	store := dial(ctx, opts)
	defer store.Close()

	unsubscribe := store.Subscribe(
		path,
		func(snapshot *sheetsync.Snapshot) {
			printJson(snapshot)
		},
		func(err error) {
			Err.Fatal(err)
		},
	)
	defer unsubscribe()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
}

func dial(ctx context.Context, opts docopt.Opts) *sheetsync.RemoteStore {
	url, _ := opts.String("--url")
	store, err := sheetsync.DialRemoteStoreWithDefaults(ctx, url)
	if err != nil {
		Err.Fatal(err)
	}
	return store
}

func printJson(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		Err.Fatal(err)
	}
	Out.Printf("%s\n", b)
}
