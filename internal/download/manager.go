// Package download queues the Playlists.txt bootstrap URLs
// (internal/playlist) for concurrent, retrying, resumable-by-rerun fetch
// into the library directory. Adapted from the teacher's general-purpose
// internal/download manager, trimmed to the single bootstrap path this
// repo actually exercises.
package download

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lanwave/radio/internal/config"
)

// Manager runs bootstrap downloads bounded by a semaphore, retrying
// transient failures.
type Manager struct {
	config     *Config
	httpClient *http.Client
	semaphore  chan struct{}
	tasks      sync.Map
	debug      bool
}

func NewManager(cfg *config.Config) *Manager {
	downloadConfig := &Config{
		MaxConcurrent: cfg.Download.MaxConcurrent,
		ChunkSize:     cfg.Download.ChunkSize,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		Timeout:       time.Minute * 10,
		UserAgent:     cfg.Download.UserAgent,
		TempDir:       cfg.Download.TempDir,
		CacheDir:      cfg.Storage.CacheDir,
	}

	manager := &Manager{
		config:    downloadConfig,
		semaphore: make(chan struct{}, downloadConfig.MaxConcurrent),
		httpClient: &http.Client{
			Timeout: downloadConfig.Timeout,
		},
		debug: cfg.Debug,
	}

	if err := os.MkdirAll(downloadConfig.TempDir, 0755); err != nil {
		log.Printf("[DOWNLOAD] Failed to create temp directory: %v", err)
	}
	if err := os.MkdirAll(downloadConfig.CacheDir, 0755); err != nil {
		log.Printf("[DOWNLOAD] Failed to create cache directory: %v", err)
	}

	manager.debugLog("Download manager initialized - max concurrent: %d", downloadConfig.MaxConcurrent)
	return manager
}

// DownloadBootstrapURLs queues every URL loaded from Playlists.txt
// (internal/playlist.LoadBootstrapURLs) for download into destDir,
// skipping anything already present, and blocks until the whole batch has
// settled, cleaning up any that failed.
func (m *Manager) DownloadBootstrapURLs(ctx context.Context, urls []string, destDir string) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		m.debugLog("create destination directory: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, u := range urls {
		filename := m.generateSafeFilename(filepath.Base(u))
		destination := filepath.Join(destDir, filename)

		if stat, err := os.Stat(destination); err == nil && stat.Size() > 0 {
			m.debugLog("Bootstrap URL already in cache: %s", destination)
			continue
		}

		task, err := m.newTask(u, destination, filename)
		if err != nil {
			m.debugLog("queue bootstrap download %s: %v", u, err)
			continue
		}

		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			m.executeDownload(ctx, t)
		}(task)
	}
	wg.Wait()

	m.CleanupFailedDownloads()
}

func (m *Manager) newTask(url, destination, title string) (*Task, error) {
	taskID := m.generateTaskID(url, destination)

	if existingTask, exists := m.tasks.Load(taskID); exists {
		task := existingTask.(*Task)
		task.mutex.RLock()
		state := task.State
		task.mutex.RUnlock()

		if state == StateDownloading || state == StatePending {
			return nil, fmt.Errorf("download already in progress")
		}
	}

	task := &Task{
		ID:          taskID,
		URL:         url,
		Destination: destination,
		Title:       title,
		State:       StatePending,
		Progress:    &Progress{},
		StartTime:   time.Now(),
		MaxRetries:  m.config.RetryAttempts,
	}

	m.tasks.Store(taskID, task)
	m.debugLog("Created download task: %s -> %s", url, destination)
	return task, nil
}

func (m *Manager) executeDownload(ctx context.Context, task *Task) {
	select {
	case m.semaphore <- struct{}{}:
		defer func() { <-m.semaphore }()
	case <-ctx.Done():
		m.updateTaskState(task, StateCancelled, ctx.Err())
		return
	}

	m.updateTaskState(task, StateDownloading, nil)
	m.debugLog("Starting download: %s", task.URL)

	var lastErr error
	for attempt := 0; attempt <= task.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * m.config.RetryDelay
			m.debugLog("Retrying download (attempt %d/%d) after %v: %s",
				attempt+1, task.MaxRetries+1, delay, task.URL)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				m.updateTaskState(task, StateCancelled, ctx.Err())
				return
			}
		}

		err := m.performDownload(ctx, task)
		if err == nil {
			m.handleDownloadSuccess(task)
			return
		}

		lastErr = err
		task.mutex.Lock()
		task.Retries = attempt
		task.mutex.Unlock()

		if !m.shouldRetry(err) {
			break
		}
	}

	m.updateTaskState(task, StateFailed, lastErr)
	m.debugLog("Download failed after %d attempts: %s - %v", task.Retries+1, task.URL, lastErr)
}

func (m *Manager) generateTaskID(url, destination string) string {
	hash := sha256.Sum256([]byte(url + destination))
	return fmt.Sprintf("%x", hash)[:16]
}

// generateSafeFilename strips characters that are illegal in a path
// component from name, leaving its extension intact.
func (m *Manager) generateSafeFilename(name string) string {
	safe := strings.ReplaceAll(name, "/", "-")
	safe = strings.ReplaceAll(safe, "\\", "-")
	safe = strings.ReplaceAll(safe, ":", "-")
	safe = strings.ReplaceAll(safe, "*", "-")
	safe = strings.ReplaceAll(safe, "?", "-")
	safe = strings.ReplaceAll(safe, "\"", "-")
	safe = strings.ReplaceAll(safe, "<", "-")
	safe = strings.ReplaceAll(safe, ">", "-")
	safe = strings.ReplaceAll(safe, "|", "-")

	if len(safe) > 100 {
		safe = safe[:100]
	}

	return safe
}

func (m *Manager) debugLog(format string, args ...interface{}) {
	if m.debug {
		log.Printf("[DOWNLOAD] "+format, args...)
	}
}
