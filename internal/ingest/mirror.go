package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/wxarchive/internal/log"
	"github.com/lox/wxarchive/internal/metrics"
)

// MirrorConfig points at an FTP share the weather console uploads exports to.
type MirrorConfig struct {
	Host     string // host:port
	User     string
	Password string
	Dir      string
	Timeout  time.Duration
}

// RunRecorder audits each sync. The store implements it.
type RunRecorder interface {
	StartIngestRun(source, target string) (int64, error)
	CompleteIngestRun(id int64, listed, stored int, runErr error) error
}

type remote interface {
	List(dir string) ([]*ftp.Entry, error)
	Fetch(path string) (io.ReadCloser, error)
	Close() error
}

// Mirror copies new or changed exports from FTP into a local Dir.
type Mirror struct {
	cfg  MirrorConfig
	dir  *Dir
	runs RunRecorder
	dial func(ctx context.Context) (remote, error)

	maxElapsed time.Duration
}

// SyncResult summarises one Sync call.
type SyncResult struct {
	Listed     int
	Downloaded []string
	Skipped    int
	Failed     []string
}

func NewMirror(cfg MirrorConfig, dir *Dir, runs RunRecorder) *Mirror {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.User == "" {
		cfg.User = "anonymous"
		cfg.Password = "anonymous"
	}
	m := &Mirror{cfg: cfg, dir: dir, runs: runs, maxElapsed: 2 * time.Minute}
	m.dial = m.dialFTP
	return m
}

func (m *Mirror) dialFTP(ctx context.Context) (remote, error) {
	conn, err := ftp.Dial(m.cfg.Host, ftp.DialWithTimeout(m.cfg.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	if err := conn.Login(m.cfg.User, m.cfg.Password); err != nil {
		conn.Quit()
		return nil, backoff.Permanent(fmt.Errorf("ftp login: %w", err))
	}
	return ftpRemote{conn}, nil
}

type ftpRemote struct{ conn *ftp.ServerConn }

func (r ftpRemote) List(dir string) ([]*ftp.Entry, error) { return r.conn.List(dir) }
func (r ftpRemote) Close() error                          { return r.conn.Quit() }

func (r ftpRemote) Fetch(p string) (io.ReadCloser, error) {
	resp, err := r.conn.Retr(p)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *Mirror) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = m.maxElapsed
	return backoff.WithContext(bo, ctx)
}

// Sync downloads every remote export that is missing locally or whose size or
// modification time differs. A failed file does not stop the others.
func (m *Mirror) Sync(ctx context.Context) (*SyncResult, error) {
	var runID int64
	if m.runs != nil {
		id, err := m.runs.StartIngestRun("ftp", m.cfg.Host+m.cfg.Dir)
		if err != nil {
			log.Warnf("mirror: start ingest run: %v", err)
		}
		runID = id
	}

	result, err := m.sync(ctx)

	if m.runs != nil && runID != 0 {
		stored := 0
		listed := 0
		if result != nil {
			stored = len(result.Downloaded)
			listed = result.Listed
		}
		if cerr := m.runs.CompleteIngestRun(runID, listed, stored, err); cerr != nil {
			log.Warnf("mirror: complete ingest run: %v", cerr)
		}
	}
	return result, err
}

func (m *Mirror) sync(ctx context.Context) (*SyncResult, error) {
	var conn remote
	err := backoff.Retry(func() error {
		c, err := m.dial(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, m.backOff(ctx))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	entries, err := conn.List(m.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", m.cfg.Dir, err)
	}

	if err := os.MkdirAll(m.dir.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	result := &SyncResult{}
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if _, _, ok := m.dir.Classify(e.Name); !ok {
			continue
		}
		result.Listed++

		local := filepath.Join(m.dir.Root, e.Name)
		if upToDate(local, e) {
			result.Skipped++
			continue
		}

		err := backoff.Retry(func() error {
			return m.download(conn, path.Join(m.cfg.Dir, e.Name), local, e.Time)
		}, m.backOff(ctx))
		if err != nil {
			log.Warnf("mirror: download %s: %v", e.Name, err)
			metrics.FilesSynced.WithLabelValues("failed").Inc()
			result.Failed = append(result.Failed, e.Name)
			continue
		}
		metrics.FilesSynced.WithLabelValues("downloaded").Inc()
		result.Downloaded = append(result.Downloaded, e.Name)
	}

	log.Infof("mirror: %d exports listed, %d downloaded, %d up to date, %d failed",
		result.Listed, len(result.Downloaded), result.Skipped, len(result.Failed))
	return result, nil
}

func upToDate(local string, e *ftp.Entry) bool {
	fi, err := os.Stat(local)
	if err != nil {
		return false
	}
	if uint64(fi.Size()) != e.Size {
		return false
	}
	return e.Time.IsZero() || !fi.ModTime().Before(e.Time)
}

// download writes to a temp file and renames it into place so readers never
// see a partial export.
func (m *Mirror) download(conn remote, remotePath, local string, modTime time.Time) error {
	body, err := conn.Fetch(remotePath)
	if err != nil {
		return fmt.Errorf("ftp retr: %w", err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(local), ".sync-*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("read body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return backoff.Permanent(err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return backoff.Permanent(err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(local, modTime, modTime); err != nil {
			log.Warnf("mirror: set mtime on %s: %v", local, err)
		}
	}
	return nil
}
