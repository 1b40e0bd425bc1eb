package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"ImageVault/internal/client/api"
	"ImageVault/internal/client/decrypt"
	"ImageVault/internal/client/store"
	"ImageVault/internal/config"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// Load unified config (env + flags)
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if cfg.Version {
		printVersion()
		return
	}

	os.Exit(run(cfg, flag.Args()))
}

func printVersion() {
	fmt.Printf("ImageVault CLI\nVersion: %s\nBuild date: %s\n", version, buildDate)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  client register <login> <password>
  client upload   <login> <password> <file>
  client fetch    <login> <password> <objectID> <accessToken> <outFile>
  client list     <login>`)
}

func run(cfg *config.Config, args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	cli := api.New(cfg.ServerURL)

	switch args[0] {
	case "register":
		if len(args) != 3 {
			usage()
			return 2
		}
		if err := cli.Register(args[1], args[2]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("registered:", args[1])
		return 0

	case "upload":
		if len(args) != 4 {
			usage()
			return 2
		}
		return cmdUpload(cli, args[1], args[2], args[3])

	case "fetch":
		if len(args) != 6 {
			usage()
			return 2
		}
		return cmdFetch(cli, args[1], args[2], args[3], args[4], args[5])

	case "list":
		if len(args) != 2 {
			usage()
			return 2
		}
		return cmdList(args[1])

	default:
		usage()
		return 2
	}
}

func cmdUpload(cli *api.Client, login, password, path string) int {
	if err := cli.Login(login, password); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	res, err := cli.Upload(filepath.Base(path), http.DetectContentType(data), data)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	rememberObject(login, store.Object{
		ObjectID:      res.ObjectID,
		Name:          res.Meta.Name,
		ContentType:   res.Meta.ContentType,
		ContentHash:   res.Meta.ContentHash,
		PlaintextSize: res.Meta.PlaintextSize,
	})

	fmt.Println("object_id:   ", res.ObjectID)
	fmt.Println("access_token:", res.AccessToken)
	return 0
}

func cmdFetch(cli *api.Client, login, password, objectID, accessToken, outPath string) int {
	if err := cli.Login(login, password); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ciphertext, contentHash, err := cli.Download(objectID, accessToken)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	issue, err := cli.IssueKey(objectID, accessToken)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	redeem, err := cli.RedeemKey(objectID, issue.KeyToken, issue.SessionID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	engine, err := decrypt.Initialize(decrypt.Options{PreferAccelerated: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	plaintext, err := engine.DecryptImage(ciphertext, redeem.Key, redeem.IV, decrypt.DecryptOptions{
		Timeout:        time.Minute,
		ExpectedSHA256: contentHash,
		Progress: func(p float64) {
			fmt.Fprintf(os.Stderr, "\rdecrypting: %3.0f%%", p)
		},
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if v := decrypt.VerifyDecryptedImage(plaintext, decrypt.DefaultVerifyOptions()); !v.IsValid {
		fmt.Fprintln(os.Stderr, "warning: decrypted data does not look like an image:", v.Reason)
	} else {
		fmt.Fprintln(os.Stderr, "detected:", v.FileType)
	}

	if err := os.WriteFile(outPath, plaintext, 0o600); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	rememberObject(login, store.Object{
		ObjectID:      objectID,
		Name:          filepath.Base(outPath),
		ContentType:   http.DetectContentType(plaintext),
		ContentHash:   contentHash,
		PlaintextSize: int64(len(plaintext)),
	})

	fmt.Println("saved:", outPath)
	return 0
}

func cmdList(login string) int {
	s, _, err := store.OpenForUser(login)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	objects, err := s.ListObjects()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(objects) == 0 {
		fmt.Println("no cached objects")
		return 0
	}
	for _, o := range objects {
		fmt.Printf("%s  %-20s %-12s %8d bytes\n", o.ObjectID, o.Name, o.ContentType, o.PlaintextSize)
	}
	return 0
}

// rememberObject пишет метаданные в локальный кеш. Ошибки кеша не
// мешают основной операции.
func rememberObject(login string, o store.Object) {
	s, _, err := store.OpenForUser(login)
	if err != nil {
		return
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		return
	}
	_ = s.SaveObject(o)
}
