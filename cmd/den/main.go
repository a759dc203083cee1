package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hari2309s/meerkat-sub001/internal/blobcipher"
	"github.com/hari2309s/meerkat-sub001/internal/blobstore"
	"github.com/hari2309s/meerkat-sub001/internal/bundle"
	"github.com/hari2309s/meerkat-sub001/internal/capability"
	"github.com/hari2309s/meerkat-sub001/internal/config"
	"github.com/hari2309s/meerkat-sub001/internal/content"
	"github.com/hari2309s/meerkat-sub001/internal/denstore"
	"github.com/hari2309s/meerkat-sub001/internal/devicekey"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
	"github.com/hari2309s/meerkat-sub001/internal/primitives"
	"github.com/hari2309s/meerkat-sub001/internal/search"
	"github.com/hari2309s/meerkat-sub001/internal/util"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := newLogger(cfg.Debug)
	defer logger.Sync()
	ctx := context.Background()

	switch os.Args[1] {
	case "note":
		runNote(ctx, newService(ctx, cfg, logger), os.Args[2:])
	case "memo":
		runMemo(ctx, newService(ctx, cfg, logger), os.Args[2:])
	case "mood":
		runMood(ctx, newService(ctx, cfg, logger), os.Args[2:])
	case "drop":
		runDrop(ctx, newService(ctx, cfg, logger), os.Args[2:])
	case "invite":
		runInvite(cfg, os.Args[2:])
	case "visitor":
		runVisitor()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: den <command> [flags]

commands:
  note    add, list, search, or share notes
  memo    add or list voice memos
  mood    list the mood journal
  drop    list or clear the visitor dropbox
  invite  seal a capability invite for a visitor
  visitor generate an ephemeral visitor identity and key pair`)
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	return logger
}

func newService(ctx context.Context, cfg config.Config, logger *zap.Logger) *content.Service {
	dk, err := loadDeviceKey(cfg)
	if err != nil {
		log.Fatalf("device key setup failed: %v", err)
	}
	dens := denstore.New(cfg.DataDir, cfg.DeviceName, dk.Key, denstore.WithLogger(logger))

	var blobs blobstore.BlobStore
	switch cfg.BlobStoreKind {
	case "fs":
		blobs, err = blobstore.NewFSStore(cfg.BlobDir)
	case "s3":
		blobs, err = blobstore.NewS3Store(ctx, blobstore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		log.Fatalf("unknown blob store kind %q", cfg.BlobStoreKind)
	}
	if err != nil {
		log.Fatalf("blob store init failed: %v", err)
	}

	keys, err := loadKeys(cfg, dk)
	if err != nil {
		log.Fatalf("namespace key setup failed: %v", err)
	}
	return content.NewService(dens, blobs, keys, content.WithLogger(logger))
}

// loadDeviceKey derives the device key from the configured secret, generating
// and persisting the salt on first run. The same key encrypts the den op
// journals and the namespace key set at rest.
func loadDeviceKey(cfg config.Config) (devicekey.DeviceKey, error) {
	if cfg.DeviceSecret == "" {
		return devicekey.DeviceKey{}, fmt.Errorf("MEERKAT_DEVICE_SECRET is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return devicekey.DeviceKey{}, err
	}

	saltPath := filepath.Join(cfg.DataDir, "device.salt")
	salt, err := os.ReadFile(saltPath)
	if err != nil && !os.IsNotExist(err) {
		return devicekey.DeviceKey{}, err
	}
	dk, err := devicekey.Derive(cfg.DeviceSecret, salt)
	if err != nil {
		return devicekey.DeviceKey{}, err
	}
	if salt == nil {
		if err := os.WriteFile(saltPath, dk.Salt, 0o600); err != nil {
			return devicekey.DeviceKey{}, err
		}
	}
	return dk, nil
}

// loadKeys decrypts the namespace key set at rest under the device key. First
// run generates a fresh key set.
func loadKeys(cfg config.Config, dk devicekey.DeviceKey) (nskeys.KeySet, error) {
	keysPath := filepath.Join(cfg.DataDir, "keyset.enc")
	raw, err := os.ReadFile(keysPath)
	if os.IsNotExist(err) {
		keys, err := nskeys.GenerateKeySet(nskeys.Namespaces)
		if err != nil {
			return nil, err
		}
		plain, err := keys.Marshal()
		if err != nil {
			return nil, err
		}
		blob, err := blobcipher.Encrypt(dk.Key, plain)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(blob)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(keysPath, encoded, 0o600); err != nil {
			return nil, err
		}
		return keys, nil
	}
	if err != nil {
		return nil, err
	}

	var blob blobcipher.EncryptedBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("decode key set file: %w", err)
	}
	plain, err := blobcipher.Decrypt(dk.Key, blob)
	if err != nil {
		return nil, err
	}
	return nskeys.Unmarshal(plain)
}

func runNote(ctx context.Context, svc *content.Service, args []string) {
	if len(args) < 1 {
		log.Fatal("usage: den note <add|list|search|share> [flags]")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("note add", flag.ExitOnError)
		den := fs.String("den", "default", "den id")
		text := fs.String("content", "", "note content")
		tags := fs.String("tags", "", "comma-separated tags")
		fs.Parse(args[1:])
		note, err := svc.CreateNote(ctx, *den, *text, splitTags(*tags))
		if err != nil {
			log.Fatalf("create note failed: %v", err)
		}
		printJSON(note)
	case "list":
		fs := flag.NewFlagSet("note list", flag.ExitOnError)
		den := fs.String("den", "default", "den id")
		fs.Parse(args[1:])
		notes, err := svc.ListNotes(ctx, *den)
		if err != nil {
			log.Fatalf("list notes failed: %v", err)
		}
		printJSON(notes)
	case "search":
		fs := flag.NewFlagSet("note search", flag.ExitOnError)
		den := fs.String("den", "default", "den id")
		q := fs.String("q", "", "substring query")
		tag := fs.String("tag", "", "tag filter")
		shared := fs.Bool("shared", false, "shared notes only")
		fs.Parse(args[1:])
		notes, err := svc.SearchNotes(ctx, *den, search.Query{Text: *q, Tag: *tag, SharedOnly: *shared})
		if err != nil {
			log.Fatalf("search failed: %v", err)
		}
		printJSON(notes)
	case "share":
		fs := flag.NewFlagSet("note share", flag.ExitOnError)
		den := fs.String("den", "default", "den id")
		id := fs.String("id", "", "note id")
		off := fs.Bool("off", false, "unshare instead")
		fs.Parse(args[1:])
		note, err := svc.SetNoteShared(ctx, *den, *id, !*off)
		if err != nil {
			log.Fatalf("share note failed: %v", err)
		}
		printJSON(note)
	default:
		log.Fatalf("unknown note command %q", args[0])
	}
}

func runMemo(ctx context.Context, svc *content.Service, args []string) {
	if len(args) < 1 {
		log.Fatal("usage: den memo <add|list> [flags]")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("memo add", flag.ExitOnError)
		den := fs.String("den", "default", "den id")
		file := fs.String("file", "", "path to encrypted audio")
		duration := fs.Float64("duration", 0, "duration in seconds")
		fs.Parse(args[1:])
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read audio failed: %v", err)
		}
		ref, err := svc.StoreVoiceBlob(ctx, *den, data)
		if err != nil {
			log.Fatalf("store audio failed: %v", err)
		}
		memo, err := svc.AddVoiceMemo(ctx, *den, ref, *duration, nil)
		if err != nil {
			log.Fatalf("add memo failed: %v", err)
		}
		printJSON(memo)
	case "list":
		fs := flag.NewFlagSet("memo list", flag.ExitOnError)
		den := fs.String("den", "default", "den id")
		fs.Parse(args[1:])
		memos, err := svc.ListVoiceMemos(ctx, *den)
		if err != nil {
			log.Fatalf("list memos failed: %v", err)
		}
		printJSON(memos)
	default:
		log.Fatalf("unknown memo command %q", args[0])
	}
}

func runMood(ctx context.Context, svc *content.Service, args []string) {
	fs := flag.NewFlagSet("mood", flag.ExitOnError)
	den := fs.String("den", "default", "den id")
	fs.Parse(args)
	entries, err := svc.ListMoodJournal(ctx, *den)
	if err != nil {
		log.Fatalf("list mood journal failed: %v", err)
	}
	printJSON(entries)
}

func runDrop(ctx context.Context, svc *content.Service, args []string) {
	if len(args) < 1 {
		log.Fatal("usage: den drop <list|clear> [flags]")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("drop list", flag.ExitOnError)
		den := fs.String("den", "default", "den id")
		fs.Parse(args[1:])
		items, err := svc.ListDropboxItems(ctx, *den)
		if err != nil {
			log.Fatalf("list dropbox failed: %v", err)
		}
		printJSON(items)
	case "clear":
		fs := flag.NewFlagSet("drop clear", flag.ExitOnError)
		den := fs.String("den", "default", "den id")
		fs.Parse(args[1:])
		if err := svc.ClearDropbox(ctx, *den); err != nil {
			log.Fatalf("clear dropbox failed: %v", err)
		}
	default:
		log.Fatalf("unknown drop command %q", args[0])
	}
}

func runInvite(cfg config.Config, args []string) {
	fs := flag.NewFlagSet("invite", flag.ExitOnError)
	den := fs.String("den", "default", "den id")
	visitorPub := fs.String("visitor", "", "visitor public key, base64url")
	namespaces := fs.String("ns", nskeys.NamespaceDropbox, "comma-separated namespaces to grant")
	write := fs.Bool("write", false, "grant write access")
	fs.Parse(args)

	dk, err := loadDeviceKey(cfg)
	if err != nil {
		log.Fatalf("device key setup failed: %v", err)
	}
	keys, err := loadKeys(cfg, dk)
	if err != nil {
		log.Fatalf("namespace key setup failed: %v", err)
	}
	pub, err := bundle.PublicKeyFromBase64(*visitorPub)
	if err != nil {
		log.Fatalf("visitor key invalid: %v", err)
	}
	grant := capability.NewGrant(*write, splitTags(*namespaces)...)
	sealed, err := capability.SealInvite(*den, grant, keys, pub, nil)
	if err != nil {
		log.Fatalf("seal invite failed: %v", err)
	}
	printJSON(sealed)
}

// runVisitor produces the identity a guest presents to a den owner: a fresh
// visitor id and key pair. The secret key never leaves the guest's machine.
func runVisitor() {
	kp, err := bundle.GenerateKeyPair()
	if err != nil {
		log.Fatalf("key generation failed: %v", err)
	}
	printJSON(map[string]string{
		"visitorId": util.NewVisitorID(),
		"publicKey": primitives.ToBase64(kp.PublicKey[:]),
		"secretKey": primitives.ToBase64(kp.SecretKey[:]),
	})
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode output failed: %v", err)
	}
}
