package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"kdash/internal/cluster"
	"kdash/internal/cost"
	"kdash/internal/prefs"
	"kdash/internal/server"
)

func main() {
	addr := flag.String("listen", "127.0.0.1:10443", "listen address")
	open := flag.Bool("open", true, "open browser")
	opencostURL := flag.String("opencost-url", "", "base URL of an OpenCost-compatible allocation API (empty disables cost screens)")
	dataDir := flag.String("data-dir", defaultDataDir(), "directory for the preferences database")
	flag.Parse()

	mgr, err := cluster.NewManager()
	if err != nil {
		log.Fatalf("init cluster manager: %v", err)
	}

	if err := os.MkdirAll(*dataDir, 0o700); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	store, err := prefs.Open(filepath.Join(*dataDir, "prefs.db"))
	if err != nil {
		log.Fatalf("open preferences store: %v", err)
	}
	defer store.Close()

	var costClient *cost.Client
	if *opencostURL != "" {
		costClient = cost.NewClient(*opencostURL)
	}

	token := randomToken(24)
	srv := server.New(mgr, store, costClient, token)

	url := fmt.Sprintf("http://%s/?token=%s", *addr, token)
	log.Printf("kdash listening on http://%s", *addr)
	log.Printf("open: %s", url)

	if *open {
		_ = openBrowser(url)
	}

	if err := http.ListenAndServe(*addr, srv.Router()); err != nil {
		log.Fatalf("listen: %v", err)
	}
}

func defaultDataDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "kdash")
	}
	return ".kdash"
}

func randomToken(nbytes int) string {
	b := make([]byte, nbytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return nil
	}
	return cmd.Start()
}
