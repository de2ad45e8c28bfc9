// Package contacts loads recipients, renders per-recipient messages and
// remembers who has already been contacted.
package contacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

type Recipient struct {
	Username string
	Fields   map[string]string // extra CSV columns, keyed by capitalized header
}

// FromUsernames builds recipients from a plain list, dropping blank entries.
func FromUsernames(usernames []string) []Recipient {
	out := make([]Recipient, 0, len(usernames))
	for _, u := range usernames {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, Recipient{Username: u})
	}
	return out
}

func ParseCSV(filePath string) ([]Recipient, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV reads a header row with a "username" (or "user") column followed by
// one recipient per row.
func ReadCSV(r io.Reader) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	header := records[0]
	userIdx := -1
	names := make([]string, len(header))
	for i, col := range header {
		names[i] = strings.TrimSpace(col)
		switch strings.ToLower(names[i]) {
		case "username", "user":
			userIdx = i
		}
	}
	if userIdx == -1 {
		return nil, fmt.Errorf("CSV must contain a 'username' column")
	}

	recipients := make([]Recipient, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		row := records[i]
		if len(row) <= userIdx || strings.TrimSpace(row[userIdx]) == "" {
			continue
		}

		rcpt := Recipient{
			Username: strings.TrimSpace(row[userIdx]),
			Fields:   make(map[string]string),
		}
		for j, value := range row {
			if j == userIdx || j >= len(names) || names[j] == "" {
				continue
			}
			// "company" -> "Company" so templates read {{.Company}}
			field := strings.ToUpper(names[j][:1]) + names[j][1:]
			rcpt.Fields[field] = strings.TrimSpace(value)
		}
		recipients = append(recipients, rcpt)
	}
	return recipients, nil
}
