// Package store keeps accounts, settings and the operator log in one JSON
// file, replaced atomically on every account or setting change.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BotKhongNgu/fourcake-buy-sell/internal/account"
	"github.com/BotKhongNgu/fourcake-buy-sell/internal/events"
)

const defaultMaxLogs = 5000

// Setting keys shared with the operator surfaces.
const (
	SettingTokenAddress = "tokenAddress"
	SettingWaitFrom     = "waitFrom"
	SettingWaitTo       = "waitTo"
)

type LogEntry struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type snapshot struct {
	NextAccountID int64             `json:"next_account_id"`
	NextLogID     int64             `json:"next_log_id"`
	Accounts      []account.Account `json:"accounts"`
	Settings      map[string]string `json:"settings,omitempty"`
	Logs          []LogEntry        `json:"logs,omitempty"`
}

// Store is safe for concurrent use. A Store with an empty path lives only in
// memory.
type Store struct {
	mu       sync.Mutex
	path     string
	data     snapshot
	maxLogs  int
	logDirty bool
	now      func() time.Time
}

var _ account.Store = (*Store)(nil)

func NewMemory() *Store {
	return &Store{maxLogs: defaultMaxLogs, now: time.Now, data: snapshot{Settings: map[string]string{}}}
}

// Open loads path if it exists. A missing file starts an empty store that is
// created on the first write.
func Open(path string) (*Store, error) {
	s := NewMemory()
	s.path = strings.TrimSpace(path)
	if s.path == "" {
		return s, nil
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", s.path, err)
	}
	if s.data.Settings == nil {
		s.data.Settings = map[string]string{}
	}
	for _, a := range s.data.Accounts {
		if a.ID >= s.data.NextAccountID {
			s.data.NextAccountID = a.ID
		}
	}
	return s, nil
}

// Close writes pending log entries.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.logDirty {
		return nil
	}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.logDirty = false
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	// Keys are stored sealed, still keep the file private.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) indexLocked(id int64) int {
	for i := range s.data.Accounts {
		if s.data.Accounts[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) Accounts(ctx context.Context) ([]account.Account, error) {
	s.mu.Lock()
	out := append([]account.Account(nil), s.data.Accounts...)
	s.mu.Unlock()
	account.SortForSchedule(out)
	return out, nil
}

func (s *Store) Eligible(ctx context.Context) ([]account.Account, error) {
	s.mu.Lock()
	out := make([]account.Account, 0, len(s.data.Accounts))
	for _, a := range s.data.Accounts {
		if a.Eligible() {
			out = append(out, a)
		}
	}
	s.mu.Unlock()
	account.SortForSchedule(out)
	return out, nil
}

func (s *Store) Account(ctx context.Context, id int64) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return account.Account{}, fmt.Errorf("%w: id %d", account.ErrNotFound, id)
	}
	return s.data.Accounts[i], nil
}

func (s *Store) Create(ctx context.Context, a account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := strings.ToLower(a.Address)
	for _, existing := range s.data.Accounts {
		if addr != "" && strings.ToLower(existing.Address) == addr {
			return account.Account{}, fmt.Errorf("account %s already exists (id %d)", a.Address, existing.ID)
		}
	}

	s.data.NextAccountID++
	a.ID = s.data.NextAccountID
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Status == "" {
		a.Status = account.Pending
	}
	if a.Unit == "" {
		a.Unit = account.UnitValue
	}
	if a.Type == "" {
		a.Type = account.Buy
	}
	s.data.Accounts = append(s.data.Accounts, a)
	if err := s.saveLocked(); err != nil {
		return account.Account{}, err
	}
	return a, nil
}

func (s *Store) Update(ctx context.Context, id int64, p account.Patch) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return account.Account{}, fmt.Errorf("%w: id %d", account.ErrNotFound, id)
	}
	p.Apply(&s.data.Accounts[i])
	s.data.Accounts[i].UpdatedAt = s.now()
	if err := s.saveLocked(); err != nil {
		return account.Account{}, err
	}
	return s.data.Accounts[i], nil
}

// UpdateMany applies every patch and writes the file once. Unknown ids fail
// the whole batch before anything changes.
func (s *Store) UpdateMany(ctx context.Context, patches map[int64]account.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(patches))
	for id := range patches {
		if s.indexLocked(id) < 0 {
			return fmt.Errorf("%w: id %d", account.ErrNotFound, id)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := s.now()
	for _, id := range ids {
		i := s.indexLocked(id)
		patches[id].Apply(&s.data.Accounts[i])
		s.data.Accounts[i].UpdatedAt = now
	}
	return s.saveLocked()
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: id %d", account.ErrNotFound, id)
	}
	s.data.Accounts = append(s.data.Accounts[:i], s.data.Accounts[i+1:]...)
	return s.saveLocked()
}

// AppendLog records an operator log line. Log lines reach disk with the next
// account/setting write or on Close.
func (s *Store) AppendLog(ctx context.Context, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.NextLogID++
	s.data.Logs = append(s.data.Logs, LogEntry{ID: s.data.NextLogID, Message: msg, CreatedAt: s.now()})
	if over := len(s.data.Logs) - s.maxLogs; over > 0 {
		s.data.Logs = append([]LogEntry(nil), s.data.Logs[over:]...)
	}
	s.logDirty = true
}

// Logs returns up to limit most recent entries, oldest first. limit <= 0
// returns everything.
func (s *Store) Logs(ctx context.Context, limit int) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.data.Logs
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return append([]LogEntry(nil), logs...)
}

func (s *Store) ClearLogs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Logs = nil
	return s.saveLocked()
}

func (s *Store) Setting(ctx context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data.Settings[key]
	return v, ok
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Settings[key] = value
	return s.saveLocked()
}

// LogSink writes rendered events to the operator log. Countdown ticks are
// skipped.
func (s *Store) LogSink() events.Sink {
	return events.SinkFunc(func(ev events.Event) {
		if ev.Kind == events.Countdown {
			return
		}
		s.AppendLog(context.Background(), events.Line(ev))
	})
}
