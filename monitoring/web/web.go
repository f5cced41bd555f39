// Package web holds the page served by the monitor.
package web

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
)

// AssetsEnv names the environment variable that points the monitor at a
// directory of page assets to serve instead of the embedded ones.
const AssetsEnv = "VMSIM_MONITOR_ASSETS"

//go:embed dist/*
var staticAssets embed.FS

// GetAssets returns the page assets. When AssetsEnv names a directory, the
// files are read from there on every request so they can be edited while the
// monitor runs.
func GetAssets() http.FileSystem {
	if dir, ok := assetDir(); ok {
		log.Printf("monitor: serving assets from %s", dir)
		return http.Dir(dir)
	}

	subFS, err := fs.Sub(staticAssets, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(subFS)
}

func assetDir() (string, bool) {
	dir := os.Getenv(AssetsEnv)
	if dir == "" {
		return "", false
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Printf("monitor: ignoring %s=%q, not a directory", AssetsEnv, dir)
		return "", false
	}

	return dir, true
}
