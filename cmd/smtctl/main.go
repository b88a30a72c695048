// Command smtctl is the CLI/embedding surface for the tree: it opens one of
// the pluggable store backends, applies a single set/get/del operation, and
// persists the resulting root so the next invocation can resume from it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"

	"github.com/smtree/smt"
	"github.com/smtree/smt/s3store"
	"github.com/smtree/smt/sqlstore"
)

var storeFlag = flag.String("store", "memory", "backend to use: memory, sqlite, or s3")
var configFlag = flag.String("config", "", "path to a YAML config file")
var rootFlag = flag.String("root", "", "hex-encoded root to start from, overriding the backend's saved root")

type config struct {
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	S3 struct {
		Region string `yaml:"region"`
		Bucket string `yaml:"bucket"`
		Table  string `yaml:"table"`
	} `yaml:"s3"`
}

func loadConfig(path string) (config, error) {
	var c config
	c.SQLite.Path = "smtctl.db"
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("parsing config: %w", err)
	}
	return c, nil
}

// rootKey is the reserved value-store key the s3 backend below uses to
// persist the tree root alongside ordinary key/value entries, since DynamoDB has no notion
// of a side channel outside the table's items.
var rootKey = smt.DigestOf([]byte("smtctl\x00root"))

func openTree(ctx context.Context, cfg config) (tree *smt.Tree, persistRoot func(smt.Digest) error, err error) {
	switch *storeFlag {
	case "memory":
		store := smt.NewMemoryStore()
		return smt.New(store, store, nil), func(smt.Digest) error {
			slog.Warn("memory store does not persist the root or any nodes across runs; each run starts from an empty store")
			return nil
		}, nil

	case "sqlite":
		store, err := sqlstore.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		root, found, err := store.GetRoot(ctx)
		if err != nil {
			return nil, nil, err
		}
		var rootPtr *smt.Digest
		if found {
			rootPtr = &root
		}
		return smt.New(store, store, rootPtr), func(r smt.Digest) error {
			return store.SetRoot(ctx, r)
		}, nil

	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		nodes := s3store.NewNodeStore(s3.NewFromConfig(awsCfg), cfg.S3.Bucket)
		values := s3store.NewValueStore(dynamodb.NewFromConfig(awsCfg), cfg.S3.Table)

		var rootPtr *smt.Digest
		rootBytes, err := values.GetValue(ctx, rootKey)
		switch {
		case err == nil && len(rootBytes) == smt.DigestSize:
			var root smt.Digest
			copy(root[:], rootBytes)
			rootPtr = &root
		case err != nil && err != smt.ErrValueNotFound:
			return nil, nil, err
		}
		return smt.New(nodes, values, rootPtr), func(r smt.Digest) error {
			return values.PutValue(ctx, rootKey, r[:])
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown -store %q", *storeFlag)
	}
}

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	args := flag.Args()
	if len(args) < 2 {
		fatal("usage: smtctl [flags] set <key> <value> | get <key> | del <key>")
	}
	cmd, key := args[0], args[1]

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fatal("loading config", "err", err)
	}

	ctx := context.Background()
	tree, persistRoot, err := openTree(ctx, cfg)
	if err != nil {
		fatal("opening store", "err", err)
	}

	if *rootFlag != "" {
		root, err := smt.ParseDigest(*rootFlag)
		if err != nil {
			fatal("parsing -root", "err", err)
		}
		tree.SetRoot(root)
	}

	switch cmd {
	case "get":
		value, err := tree.Get(ctx, []byte(key))
		if err != nil {
			fatal("get", "err", err)
		}
		if value == nil {
			fmt.Println("(absent)")
		} else {
			fmt.Println(string(value))
		}

	case "set":
		if len(args) < 3 {
			fatal("usage: smtctl [flags] set <key> <value>")
		}
		if err := tree.Update(ctx, []byte(key), []byte(args[2])); err != nil {
			fatal("set", "err", err)
		}

	case "del":
		if err := tree.Delete(ctx, []byte(key)); err != nil && err != smt.ErrKeyAbsent {
			fatal("del", "err", err)
		}

	default:
		fatal("unknown command", "cmd", cmd)
	}

	if err := persistRoot(tree.Root()); err != nil {
		fatal("persisting root", "err", err)
	}
	slog.Info("root", "value", tree.Root().String())
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
