// Package env loads adbpair's .env file into the process environment before
// settings are read.
package env

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PathOverride names the variable pointing at an explicit .env file. When set,
// no discovery happens.
const PathOverride = "ADBPAIR_DOTENV"

// projectMarkers end the upward search: a .env above the current project or
// checkout is never picked up.
var projectMarkers = []string{".git", "go.mod", ".adbpair"}

var (
	ensureOnce sync.Once
	ensureErr  error

	mu     sync.Mutex
	loaded []string
)

// Ensure loads the .env file once per process: the ADBPAIR_DOTENV file when
// set, otherwise the nearest .env between the working directory and the
// project root (or home directory). Variables already set are not overridden.
//
// Under `go test` nothing is loaded unless GOTEST_LOAD_DOTENV=1.
func Ensure() error {
	if runningUnderGoTest() && os.Getenv("GOTEST_LOAD_DOTENV") != "1" {
		return nil
	}
	ensureOnce.Do(func() {
		path, err := Resolve()
		if err != nil {
			ensureErr = err
			log.Warn().Err(err).Msg("adbpair: locate .env failed")
			return
		}
		if path == "" {
			return
		}
		ensureErr = Load(path)
	})
	return ensureErr
}

// Load reads one .env file into the environment without overriding variables
// that are already set.
func Load(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("dotenv path is empty")
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Err(err).Str("dotenv", path).Msg("adbpair: load .env failed")
		return errors.Wrapf(err, "load dotenv %s", path)
	}
	mu.Lock()
	loaded = append(loaded, path)
	mu.Unlock()
	log.Debug().Str("dotenv", path).Msg("adbpair: loaded .env")
	return nil
}

// LoadedPath returns the first .env file loaded, or "".
func LoadedPath() string {
	mu.Lock()
	defer mu.Unlock()
	if len(loaded) == 0 {
		return ""
	}
	return loaded[0]
}

// Resolve returns the .env file Ensure would load, "" when there is none.
func Resolve() (string, error) {
	if override := strings.TrimSpace(os.Getenv(PathOverride)); override != "" {
		info, err := os.Stat(override)
		if err != nil {
			return "", errors.Wrapf(err, "%s=%s", PathOverride, override)
		}
		if info.IsDir() {
			return "", errors.Errorf("%s=%s is a directory", PathOverride, override)
		}
		return override, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "get working directory")
	}
	home, _ := os.UserHomeDir()
	return findDotEnv(wd, home)
}

// findDotEnv walks from start towards the root and stops after the first
// directory that holds a project marker or equals stop.
func findDotEnv(start, stop string) (string, error) {
	dir := filepath.Clean(start)
	if stop != "" {
		stop = filepath.Clean(stop)
	}
	for {
		candidate := filepath.Join(dir, ".env")
		info, err := os.Stat(candidate)
		switch {
		case err == nil && !info.IsDir():
			return candidate, nil
		case err != nil && !os.IsNotExist(err):
			return "", errors.Wrapf(err, "stat %s", candidate)
		}
		if dir == stop || hasProjectMarker(dir) {
			return "", nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func hasProjectMarker(dir string) bool {
	for _, marker := range projectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}
