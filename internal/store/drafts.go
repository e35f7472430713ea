package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Simplici0/printbill/internal/estimate"
)

var draftsBucket = []byte("drafts")

// Draft is the autosaved state of an open billing session.
type Draft struct {
	SessionID     string        `json:"sessionId"`
	EditID        string        `json:"editId,omitempty"`
	UserEmail     string        `json:"userEmail"`
	Tree          estimate.Tree `json:"tree"`
	MarkupType    string        `json:"markupType"`
	MarkupPercent float64       `json:"markupPercent"`
	MiscCharge    *float64      `json:"miscCharge,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Drafts keeps session drafts in a bbolt file so sessions survive restarts.
type Drafts struct {
	db *bolt.DB
}

func OpenDrafts(path string) (*Drafts, error) {
	if path == "" {
		return nil, errors.New("drafts path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir drafts dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(draftsBucket)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Drafts{db: db}, nil
}

func (d *Drafts) Close() error {
	return d.db.Close()
}

func (d *Drafts) Put(draft Draft) error {
	if draft.SessionID == "" {
		return errors.New("draft session id is empty")
	}
	draft.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).Put([]byte(draft.SessionID), b)
	})
}

// Get returns the draft for sessionID; ok is false when none exists.
func (d *Drafts) Get(sessionID string) (draft Draft, ok bool, err error) {
	err = d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(draftsBucket).Get([]byte(sessionID))
		if v == nil {
			return nil
		}
		if e := json.Unmarshal(v, &draft); e != nil {
			return e
		}
		ok = true
		return nil
	})
	return draft, ok, err
}

func (d *Drafts) Delete(sessionID string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).Delete([]byte(sessionID))
	})
}

// List returns the drafts of userEmail, most recent first. An empty email
// lists every draft.
func (d *Drafts) List(userEmail string) ([]Draft, error) {
	var out []Draft
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).ForEach(func(_, v []byte) error {
			var draft Draft
			if err := json.Unmarshal(v, &draft); err != nil {
				return err
			}
			if userEmail == "" || draft.UserEmail == userEmail {
				out = append(out, draft)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, err
}
