package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func (m *Manager) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, task *Task) error {
	buffer := make([]byte, m.config.ChunkSize)
	startTime := time.Now()
	lastProgressUpdate := startTime

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := src.Read(buffer)
		if n > 0 {
			if _, writeErr := dst.Write(buffer[:n]); writeErr != nil {
				return fmt.Errorf("write chunk: %w", writeErr)
			}

			task.Progress.mutex.Lock()
			task.Progress.Downloaded += int64(n)
			downloaded := task.Progress.Downloaded
			total := task.Progress.Total
			task.Progress.mutex.Unlock()

			now := time.Now()
			if now.Sub(lastProgressUpdate) >= 5*time.Second {
				m.updateProgressMetrics(task, downloaded, total, now, startTime)
				m.debugLog("Bootstrap download progress: %s %.1f%%", filepath.Base(task.Destination), task.Progress.Percentage)
				lastProgressUpdate = now
			}
		}

		if err != nil {
			if err == io.EOF {
				task.Progress.mutex.Lock()
				downloaded := task.Progress.Downloaded
				total := task.Progress.Total
				task.Progress.mutex.Unlock()

				m.updateProgressMetrics(task, downloaded, total, time.Now(), startTime)
				break
			}
			return fmt.Errorf("read chunk: %w", err)
		}
	}

	return nil
}

func (m *Manager) updateProgressMetrics(task *Task, downloaded, total int64, now, startTime time.Time) {
	task.Progress.mutex.Lock()
	defer task.Progress.mutex.Unlock()

	if total > 0 {
		task.Progress.Percentage = float64(downloaded) / float64(total) * 100
	}

	elapsed := now.Sub(startTime).Seconds()
	if elapsed > 0 {
		task.Progress.Speed = float64(downloaded) / elapsed
	}

	if task.Progress.Speed > 0 && total > 0 {
		remaining := total - downloaded
		etaSeconds := float64(remaining) / task.Progress.Speed
		task.Progress.ETA = time.Duration(etaSeconds) * time.Second
	}

	task.Progress.LastUpdate = now
}

func (m *Manager) handleDownloadSuccess(task *Task) {
	if err := m.validateDownload(task); err != nil {
		m.updateTaskState(task, StateFailed, err)
		return
	}

	task.Progress.mutex.Lock()
	task.Progress.Percentage = 100.0
	task.Progress.LastUpdate = time.Now()
	task.Progress.mutex.Unlock()

	m.updateTaskState(task, StateCompleted, nil)
	m.debugLog("Download completed successfully: %s", task.Destination)
}

func (m *Manager) validateDownload(task *Task) error {
	stat, err := os.Stat(task.Destination)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}

	if stat.Size() == 0 {
		return fmt.Errorf("downloaded file is empty")
	}

	if strings.HasSuffix(strings.ToLower(task.Destination), ".mp3") {
		if stat.Size() < 1024 {
			return fmt.Errorf("audio file too small: %d bytes", stat.Size())
		}

		if err := m.validateMP3File(task.Destination); err != nil {
			return fmt.Errorf("invalid MP3 file: %w", err)
		}
	}

	m.debugLog("Download validation passed: %s (%d bytes)", task.Destination, stat.Size())
	return nil
}

func (m *Manager) validateMP3File(filepath string) error {
	file, err := os.Open(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	header := make([]byte, 10)
	n, err := file.Read(header)
	if err != nil || n < 3 {
		return fmt.Errorf("cannot read file header")
	}

	if (header[0] == 0xFF && (header[1]&0xE0) == 0xE0) ||
		(n >= 3 && header[0] == 'I' && header[1] == 'D' && header[2] == '3') {
		return nil
	}

	return fmt.Errorf("not a valid MP3 file")
}

func (m *Manager) shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "context canceled") ||
		strings.Contains(errStr, "context deadline") {
		return false
	}

	permanentErrors := []string{
		"400", "401", "403", "404", "405", "406", "410", "451",
	}
	for _, code := range permanentErrors {
		if strings.Contains(errStr, code) {
			return false
		}
	}

	if strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "file exists") {
		return false
	}

	retryableErrors := []string{
		"connection refused", "connection reset", "connection timeout",
		"timeout", "temporary failure", "network unreachable", "host unreachable",
		"500", "502", "503", "504", "dns", "resolve", "lookup",
	}

	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}

	return true
}

// CleanupFailedDownloads removes the partial files and task records left
// behind by any bootstrap download that didn't complete, called once the
// batch in DownloadBootstrapURLs has settled.
func (m *Manager) CleanupFailedDownloads() {
	var toDelete []string

	m.tasks.Range(func(key, value interface{}) bool {
		task := value.(*Task)
		task.mutex.RLock()
		state := task.State
		destination := task.Destination
		task.mutex.RUnlock()

		if state == StateFailed {
			if _, err := os.Stat(destination); err == nil {
				if removeErr := os.Remove(destination); removeErr != nil {
					m.debugLog("Failed to remove failed download: %v", removeErr)
				} else {
					m.debugLog("Removed failed download: %s", destination)
				}
			}
			toDelete = append(toDelete, key.(string))
		}

		return true
	})

	for _, key := range toDelete {
		m.tasks.Delete(key)
	}

	if len(toDelete) > 0 {
		m.debugLog("Cleaned up %d failed downloads", len(toDelete))
	}
}

func (m *Manager) updateTaskState(task *Task, state State, err error) {
	task.mutex.Lock()
	task.State = state
	task.Error = err
	if state == StateCompleted || state == StateFailed || state == StateCancelled {
		now := time.Now()
		task.CompletedAt = &now
	}
	task.mutex.Unlock()

	m.debugLog("Task state changed: %s -> %s", task.URL, state.String())
}
