package sqlite

import (
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// recoverStaleWAL removes the -shm/-wal companions of the database behind
// dsn when openErr looks like they were left by an unclean shutdown and no
// process holds them. It reports whether anything was removed, in which case
// the open is worth retrying.
func recoverStaleWAL(dsn string, openErr error) bool {
	if openErr == nil {
		return false
	}
	if msg := openErr.Error(); !strings.Contains(msg, "disk I/O error") && !strings.Contains(msg, "database is locked") {
		return false
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" {
		return false
	}

	companions := walCompanions(dbPath)
	if len(companions) == 0 || walHeld(dbPath, companions) {
		return false
	}

	removed := false
	for _, path := range companions {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
			continue
		}
		removed = true
	}
	return removed
}

// dbPathFromDSN extracts the filesystem path from a bare path or a file: URI.
// In-memory and unparseable DSNs yield "".
func dbPathFromDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}
	if !strings.HasPrefix(dsn, "file:") {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == ":memory:" {
		return ""
	}
	return path
}

// walCompanions lists the existing -shm and -wal files of dbPath.
func walCompanions(dbPath string) []string {
	var found []string
	for _, suffix := range []string{"-shm", "-wal"} {
		if _, err := os.Stat(dbPath + suffix); err == nil {
			found = append(found, dbPath+suffix)
		}
	}
	return found
}

// walHeld asks lsof whether any process has the database files open. Without
// lsof the files are assumed held.
func walHeld(dbPath string, companions []string) bool {
	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return true
	}

	out, err := exec.Command(lsof, append([]string{"-t", dbPath}, companions...)...).Output()
	if err != nil {
		// lsof exits 1 when nothing has the files open.
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}
