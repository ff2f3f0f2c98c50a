// Package mailbox is the optional coordination channel for long-lived
// workers (§3 MailboxMessage): one NDJSON spool per addressee under the
// runtime section, plus a broadcast spool addressed to "all". In the
// default dispatch model workers are short-lived subprocesses and the
// mailbox stays empty.
package mailbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Broadcast is the addressee that reaches every worker.
const Broadcast = "all"

// MessageType discriminates mailbox traffic (§3).
type MessageType string

const (
	TypeTaskAssignment MessageType = "task-assignment"
	TypeHeartbeat      MessageType = "heartbeat"
	TypeBroadcast      MessageType = "broadcast"
	TypeCompletion     MessageType = "completion"
	TypeError          MessageType = "error"
)

// Message is one mailbox entry.
type Message struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Addressee string          `json:"addressee"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Read      bool            `json:"read"`
}

// Mailbox stores messages as one append-only NDJSON spool per
// addressee. Appends are serialised per spool; reads are plain scans.
type Mailbox struct {
	Dir string

	mu sync.Mutex
}

// New returns a Mailbox rooted at dir, creating it if absent.
func New(dir string) (*Mailbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mailbox: create %s: %w", dir, err)
	}
	return &Mailbox{Dir: dir}, nil
}

// Post appends a message to its addressee's spool, stamping the id and
// timestamp if unset.
func (m *Mailbox) Post(msg Message) (Message, error) {
	if msg.Addressee == "" {
		return Message{}, fmt.Errorf("mailbox: message has no addressee")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("mailbox: encode message: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	file, err := os.OpenFile(m.spool(msg.Addressee), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Message{}, fmt.Errorf("mailbox: open spool for %s: %w", msg.Addressee, err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return Message{}, fmt.Errorf("mailbox: append for %s: %w", msg.Addressee, err)
	}
	return msg, nil
}

// Inbox returns every unread message for worker, broadcasts included,
// in append order.
func (m *Mailbox) Inbox(worker string) ([]Message, error) {
	var inbox []Message
	for _, addressee := range []string{worker, Broadcast} {
		msgs, err := m.readSpool(addressee)
		if err != nil {
			return nil, err
		}
		for _, msg := range msgs {
			if !msg.Read {
				inbox = append(inbox, msg)
			}
		}
	}
	return inbox, nil
}

// MarkRead flags one message in worker's spool (or the broadcast spool)
// as read by rewriting the spool in place.
func (m *Mailbox) MarkRead(worker, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, addressee := range []string{worker, Broadcast} {
		msgs, err := m.readSpool(addressee)
		if err != nil {
			return err
		}
		found := false
		for i := range msgs {
			if msgs[i].ID == messageID {
				msgs[i].Read = true
				found = true
			}
		}
		if !found {
			continue
		}
		return m.rewriteSpool(addressee, msgs)
	}
	return fmt.Errorf("mailbox: message %s not found for %s", messageID, worker)
}

func (m *Mailbox) spool(addressee string) string {
	return filepath.Join(m.Dir, addressee+".ndjson")
}

func (m *Mailbox) readSpool(addressee string) ([]Message, error) {
	file, err := os.Open(m.spool(addressee))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mailbox: open spool for %s: %w", addressee, err)
	}
	defer file.Close()

	var msgs []Message
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("mailbox: parse spool for %s: %w", addressee, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, scanner.Err()
}

func (m *Mailbox) rewriteSpool(addressee string, msgs []Message) error {
	tmp, err := os.CreateTemp(m.Dir, ".tmp-spool-*")
	if err != nil {
		return fmt.Errorf("mailbox: temp spool: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	for _, msg := range msgs {
		line, err := json.Marshal(msg)
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := tmp.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, m.spool(addressee))
}
