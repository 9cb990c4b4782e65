package qorzendb

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryManager runs scheduled snapshots of a saved query against a
// data connection, storing each run's rows into a history connection
// (C9). Each enabled schedule owns one goroutine, started when the
// schedule is created or loaded at initialization and stopped by Stop.
type HistoryManager struct {
	mgr      *Manager
	cfg      HistoryConfig
	connID   string
	mu       sync.RWMutex
	schedule map[string]*HistorySchedule
	cancel   map[string]context.CancelFunc
	wg       sync.WaitGroup
	degraded bool
}

// frequencyPattern grounds ParseFrequency's grammar: an integer count
// followed by a single unit letter (s=second, m=minute, h=hour,
// d=day, w=week).
var frequencyPattern = regexp.MustCompile(`^(\d+)([smhdw])$`)

var frequencyUnitSeconds = map[string]int64{"s": 1, "m": 60, "h": 3600, "d": 86400, "w": 604800}

// ParseFrequency parses a schedule frequency string ("30m", "1d") into
// a time.Duration. An unrecognized format returns a ConfigurationError.
func ParseFrequency(freq string) (time.Duration, error) {
	m := frequencyPattern.FindStringSubmatch(freq)
	if m == nil {
		return 0, NewConfigurationError("invalid frequency format, expected e.g. \"30m\" or \"1d\"", "frequency", freq)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, NewConfigurationError("invalid frequency count", "frequency", freq)
	}
	return time.Duration(n*frequencyUnitSeconds[m[2]]) * time.Second, nil
}

func newHistoryManager(mgr *Manager, cfg HistoryConfig) *HistoryManager {
	connID := cfg.ConnectionName
	if connID == "" || !mgr.HasConnection(connID) {
		connID = "default"
	}
	hm := &HistoryManager{
		mgr: mgr, cfg: cfg, connID: connID,
		schedule: make(map[string]*HistorySchedule),
		cancel:   make(map[string]context.CancelFunc),
	}
	if !cfg.Enabled {
		hm.degraded = true
		return hm
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hm.ensureTables(ctx); err != nil {
		mgr.logger.Warn("history manager initialization failed; feature degraded", "error", err)
		hm.degraded = true
		return hm
	}
	if err := hm.loadSchedules(ctx); err != nil {
		mgr.logger.Warn("failed to load existing history schedules", "error", err)
	}
	return hm
}

func (hm *HistoryManager) ensureTables(ctx context.Context) error {
	stmts := managementTableDDL[2:5] // db_history_schedules, db_history_entries, db_history_data
	err := <-hm.mgr.AsyncSession(ctx, hm.connID, func(s *Session) error {
		for _, stmt := range stmts {
			if _, err := s.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	for _, stmt := range stmts {
		if rawErr := hm.mgr.Execute(ctx, hm.connID, stmt); rawErr != nil {
			return rawErr
		}
	}
	return nil
}

// loadSchedules reads every persisted schedule and starts a goroutine
// for each enabled one, resuming the scheduler after a restart.
func (hm *HistoryManager) loadSchedules(ctx context.Context) error {
	var rows []map[string]any
	err := hm.mgr.Session(ctx, hm.connID, func(s *Session) error {
		r, err := s.QueryAll(ctx, `SELECT id, name, data_connection, history_connection, saved_query_id, frequency, retention_days, enabled FROM db_history_schedules`)
		rows = r
		return err
	})
	if err != nil {
		return err
	}
	for _, row := range rows {
		retention, _ := row["retention_days"].(int64)
		enabled, _ := row["enabled"].(bool)
		sched := &HistorySchedule{
			ID: fmt.Sprint(row["id"]), Name: fmt.Sprint(row["name"]),
			DataConnection: fmt.Sprint(row["data_connection"]), HistoryConn: fmt.Sprint(row["history_connection"]),
			SavedQueryID: fmt.Sprint(row["saved_query_id"]), Frequency: fmt.Sprint(row["frequency"]),
			RetentionDays: int(retention), Enabled: enabled,
		}
		hm.mu.Lock()
		hm.schedule[sched.ID] = sched
		hm.mu.Unlock()
		if enabled {
			hm.startLoop(sched)
		}
	}
	return nil
}

// CreateSchedule validates the frequency grammar, persists a new
// HistorySchedule, and starts its goroutine if enabled.
func (hm *HistoryManager) CreateSchedule(ctx context.Context, name, dataConn, historyConn, savedQueryID, frequency string, retentionDays int, enabled bool) (*HistorySchedule, error) {
	if hm.degraded {
		return nil, NewConfigurationError("history manager is degraded")
	}
	if _, err := ParseFrequency(frequency); err != nil {
		return nil, err
	}

	sched := &HistorySchedule{
		ID: uuid.NewString(), Name: name, DataConnection: dataConn, HistoryConn: historyConn,
		SavedQueryID: savedQueryID, Frequency: frequency, RetentionDays: retentionDays,
		Enabled: enabled, CreatedAt: time.Now(),
	}

	err := hm.mgr.Session(ctx, hm.connID, func(s *Session) error {
		_, err := s.Exec(ctx, `INSERT INTO db_history_schedules
			(id, name, data_connection, history_connection, saved_query_id, frequency, retention_days, enabled, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sched.ID, sched.Name, sched.DataConnection, sched.HistoryConn, sched.SavedQueryID,
			sched.Frequency, sched.RetentionDays, sched.Enabled, sched.CreatedAt)
		return err
	})
	if err != nil {
		return nil, NewDatabaseError("failed to create history schedule", err, "name", name)
	}

	hm.mu.Lock()
	hm.schedule[sched.ID] = sched
	hm.mu.Unlock()
	if enabled {
		hm.startLoop(sched)
	}
	return sched, nil
}

// DeleteSchedule stops the schedule's goroutine (if running) and
// removes it and its history rows.
func (hm *HistoryManager) DeleteSchedule(ctx context.Context, id string) error {
	hm.stopLoop(id)
	err := hm.mgr.Session(ctx, hm.connID, func(s *Session) error {
		if _, err := s.Exec(ctx, `DELETE FROM db_history_data WHERE snapshot_id IN (
			SELECT snapshot_id FROM db_history_entries WHERE schedule_id = ?)`, id); err != nil {
			return err
		}
		if _, err := s.Exec(ctx, `DELETE FROM db_history_entries WHERE schedule_id = ?`, id); err != nil {
			return err
		}
		_, err := s.Exec(ctx, `DELETE FROM db_history_schedules WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return NewDatabaseError("failed to delete history schedule", err, "id", id)
	}
	hm.mu.Lock()
	delete(hm.schedule, id)
	hm.mu.Unlock()
	return nil
}

// GetSchedule returns a schedule by id.
func (hm *HistoryManager) GetSchedule(id string) (*HistorySchedule, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	s, ok := hm.schedule[id]
	return s, ok
}

// GetAllSchedules returns every known schedule.
func (hm *HistoryManager) GetAllSchedules() []*HistorySchedule {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	out := make([]*HistorySchedule, 0, len(hm.schedule))
	for _, s := range hm.schedule {
		out = append(out, s)
	}
	return out
}

func (hm *HistoryManager) startLoop(sched *HistorySchedule) {
	interval, err := ParseFrequency(sched.Frequency)
	if err != nil {
		hm.mgr.logger.Error("refusing to start history schedule with invalid frequency", "schedule", sched.ID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	hm.mu.Lock()
	hm.cancel[sched.ID] = cancel
	hm.mu.Unlock()

	hm.wg.Add(1)
	go func() {
		defer hm.wg.Done()
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if err := hm.ExecuteScheduleNow(ctx, sched.ID); err != nil {
					hm.mgr.logger.Error("history schedule run failed", "schedule", sched.ID, "error", err)
				}
				timer.Reset(interval)
			}
		}
	}()
}

func (hm *HistoryManager) stopLoop(id string) {
	hm.mu.Lock()
	cancel, ok := hm.cancel[id]
	delete(hm.cancel, id)
	hm.mu.Unlock()
	if ok {
		cancel()
	}
}

// Stop cancels every running schedule goroutine and waits for them to
// exit, called from Manager.Shutdown.
func (hm *HistoryManager) Stop() {
	hm.mu.Lock()
	ids := make([]string, 0, len(hm.cancel))
	for id := range hm.cancel {
		ids = append(ids, id)
	}
	hm.mu.Unlock()
	for _, id := range ids {
		hm.stopLoop(id)
	}
	hm.wg.Wait()
}

// ExecuteScheduleNow runs scheduleID's saved query against its data
// connection immediately (independent of its timer), records a
// HistoryEntry and the captured rows, then purges entries older than
// its retention window.
func (hm *HistoryManager) ExecuteScheduleNow(ctx context.Context, scheduleID string) error {
	sched, ok := hm.GetSchedule(scheduleID)
	if !ok {
		return NewConfigurationError("unknown history schedule", "id", scheduleID)
	}

	sq, err := hm.mgr.fetchSavedQuery(ctx, sched.HistoryConn, sched.SavedQueryID)
	if err != nil {
		return hm.recordFailure(ctx, sched, err)
	}

	result, err := hm.mgr.ExecuteQuery(ctx, sched.DataConnection, sq.QueryText, 0, false)
	if err != nil {
		return hm.recordFailure(ctx, sched, err)
	}

	snapshotID := uuid.NewString()
	runAt := time.Now()
	recordsJSON, err := json.Marshal(result.Rows)
	if err != nil {
		return hm.recordFailure(ctx, sched, err)
	}
	schemaJSON, err := json.Marshal(result.Columns)
	if err != nil {
		return hm.recordFailure(ctx, sched, err)
	}

	err = hm.mgr.Session(ctx, sched.HistoryConn, func(s *Session) error {
		if _, err := s.Exec(ctx, `INSERT INTO db_history_entries (id, schedule_id, snapshot_id, run_at, row_count, error) VALUES (?, ?, ?, ?, ?, NULL)`,
			uuid.NewString(), sched.ID, snapshotID, runAt, result.RowCount); err != nil {
			return err
		}
		_, err := s.Exec(ctx, `INSERT INTO db_history_data (id, snapshot_id, records, schema, collected_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), snapshotID, string(recordsJSON), string(schemaJSON), runAt)
		return err
	})
	if err != nil {
		return NewDatabaseError("failed to record history snapshot", err, "schedule", sched.ID)
	}

	sched.LastRun = &runAt
	if err := hm.cleanupOldData(ctx, sched); err != nil {
		hm.mgr.logger.Warn("history retention cleanup failed", "schedule", sched.ID, "error", err)
	}
	return nil
}

func (hm *HistoryManager) recordFailure(ctx context.Context, sched *HistorySchedule, cause error) error {
	_ = hm.mgr.Session(ctx, sched.HistoryConn, func(s *Session) error {
		_, err := s.Exec(ctx, `INSERT INTO db_history_entries (id, schedule_id, snapshot_id, run_at, row_count, error) VALUES (?, ?, ?, ?, 0, ?)`,
			uuid.NewString(), sched.ID, uuid.NewString(), time.Now(), cause.Error())
		return err
	})
	return NewDatabaseError("history schedule run failed", cause, "schedule", sched.ID)
}

// cleanupOldData purges history_entries/history_data rows whose
// run_at predates the schedule's retention window. RetentionDays of 0
// means retain nothing: every row for this schedule is purged
// immediately rather than being compared against a cutoff time.
func (hm *HistoryManager) cleanupOldData(ctx context.Context, sched *HistorySchedule) error {
	if sched.RetentionDays == 0 {
		return hm.mgr.Session(ctx, sched.HistoryConn, func(s *Session) error {
			if _, err := s.Exec(ctx, `DELETE FROM db_history_data WHERE snapshot_id IN (
				SELECT snapshot_id FROM db_history_entries WHERE schedule_id = ?)`, sched.ID); err != nil {
				return err
			}
			_, err := s.Exec(ctx, `DELETE FROM db_history_entries WHERE schedule_id = ?`, sched.ID)
			return err
		})
	}
	cutoff := time.Now().AddDate(0, 0, -sched.RetentionDays)
	return hm.mgr.Session(ctx, sched.HistoryConn, func(s *Session) error {
		if _, err := s.Exec(ctx, `DELETE FROM db_history_data WHERE snapshot_id IN (
			SELECT snapshot_id FROM db_history_entries WHERE schedule_id = ? AND run_at < ?)`, sched.ID, cutoff); err != nil {
			return err
		}
		_, err := s.Exec(ctx, `DELETE FROM db_history_entries WHERE schedule_id = ? AND run_at < ?`, sched.ID, cutoff)
		return err
	})
}

// GetHistoryEntries returns every recorded run of scheduleID.
func (hm *HistoryManager) GetHistoryEntries(ctx context.Context, historyConn, scheduleID string) ([]HistoryEntry, error) {
	var rows []map[string]any
	err := hm.mgr.Session(ctx, historyConn, func(s *Session) error {
		r, err := s.QueryAll(ctx, `SELECT id, schedule_id, snapshot_id, run_at, row_count, error FROM db_history_entries WHERE schedule_id = ? ORDER BY run_at DESC`, scheduleID)
		rows = r
		return err
	})
	if err != nil {
		return nil, NewDatabaseError("failed to load history entries", err, "schedule", scheduleID)
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		runAt, _ := row["run_at"].(time.Time)
		rowCount, _ := row["row_count"].(int64)
		errMsg, _ := row["error"].(string)
		out = append(out, HistoryEntry{
			ID: fmt.Sprint(row["id"]), ScheduleID: fmt.Sprint(row["schedule_id"]),
			SnapshotID: fmt.Sprint(row["snapshot_id"]), RunAt: runAt, RowCount: int(rowCount), Error: errMsg,
		})
	}
	return out, nil
}

// GetHistoryData loads the captured rows for one snapshot.
func (hm *HistoryManager) GetHistoryData(ctx context.Context, historyConn, snapshotID string) ([]map[string]any, error) {
	var row map[string]any
	err := hm.mgr.Session(ctx, historyConn, func(s *Session) error {
		r, err := s.QueryRowMap(ctx, `SELECT records FROM db_history_data WHERE snapshot_id = ?`, snapshotID)
		row = r
		return err
	})
	if err != nil {
		return nil, NewDatabaseError("failed to load history data", err, "snapshot", snapshotID)
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(fmt.Sprint(row["records"])), &records); err != nil {
		return nil, NewDatabaseError("failed to decode history snapshot", err, "snapshot", snapshotID)
	}
	return records, nil
}

// DeleteHistoryData removes a single snapshot's captured rows.
func (hm *HistoryManager) DeleteHistoryData(ctx context.Context, historyConn, snapshotID string) error {
	return hm.mgr.Session(ctx, historyConn, func(s *Session) error {
		_, err := s.Exec(ctx, `DELETE FROM db_history_data WHERE snapshot_id = ?`, snapshotID)
		return err
	})
}
