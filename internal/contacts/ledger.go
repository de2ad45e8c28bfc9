package contacts

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type LedgerEntry struct {
	Username  string
	Hash      string
	Timestamp string
}

// Ledger is an append-only CSV of recipients already messaged with a given
// template. The same recipient with a different template is not a match.
type Ledger struct {
	filePath string
	log      *zap.Logger

	mu      sync.Mutex
	entries map[string]LedgerEntry // key: hash
}

func OpenLedger(filePath string, log *zap.Logger) (*Ledger, error) {
	l := &Ledger{
		filePath: filePath,
		log:      log.Named("ledger"),
		entries:  make(map[string]LedgerEntry),
	}
	if err := l.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load contacted recipients: %w", err)
	}
	return l, nil
}

func hashOf(r Recipient, templateContent string) string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(r.Username)
	b.WriteString("|")
	b.WriteString(templateContent)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s:%s", k, r.Fields[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (l *Ledger) load() error {
	file, err := os.Open(l.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read ledger CSV: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	userIdx, hashIdx, tsIdx := -1, -1, -1
	for i, col := range records[0] {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case "username":
			userIdx = i
		case "hash":
			hashIdx = i
		case "timestamp":
			tsIdx = i
		}
	}
	if userIdx == -1 || hashIdx == -1 {
		return fmt.Errorf("ledger CSV must contain 'username' and 'hash' columns")
	}

	for _, row := range records[1:] {
		if len(row) <= hashIdx || strings.TrimSpace(row[hashIdx]) == "" {
			continue
		}
		e := LedgerEntry{Hash: strings.TrimSpace(row[hashIdx])}
		if len(row) > userIdx {
			e.Username = strings.TrimSpace(row[userIdx])
		}
		if tsIdx != -1 && len(row) > tsIdx {
			e.Timestamp = strings.TrimSpace(row[tsIdx])
		}
		l.entries[e.Hash] = e
	}

	l.log.Info("Loaded contacted recipients", zap.Int("count", len(l.entries)), zap.String("path", l.filePath))
	return nil
}

func (l *Ledger) Contacted(r Recipient, t *Template) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[hashOf(r, t.Content)]
	return ok
}

func (l *Ledger) MarkContacted(r Recipient, t *Template) error {
	e := LedgerEntry{
		Username:  r.Username,
		Hash:      hashOf(r, t.Content),
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.Hash] = e
	return l.appendToFile(e)
}

func (l *Ledger) appendToFile(e LedgerEntry) error {
	writeHeader := false
	if info, err := os.Stat(l.filePath); os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		writeHeader = true
	}

	file, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger CSV: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write([]string{"username", "hash", "timestamp"}); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	if err := writer.Write([]string{e.Username, e.Hash, e.Timestamp}); err != nil {
		return fmt.Errorf("failed to write CSV record: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
