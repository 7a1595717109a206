package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	conversationsBucket = []byte("conversations")
	turnsBucket         = []byte("turns")
	turnIndexBucket     = []byte("turn_index")
	attachmentsBucket   = []byte("attachments")
	settingsBucket      = []byte("settings")
)

// ErrTurnNotFound is returned by turn lookups and mutations for unknown ids.
var ErrTurnNotFound = errors.New("store: turn not found")

type Store interface {
	SaveConversation(c Conversation) error
	GetConversation(id string) (*Conversation, error)
	ListConversations(ownerID string, limit int) ([]Conversation, error)
	DeleteConversation(id string) error

	InsertTurn(t *Turn) error
	GetTurn(id string) (*Turn, error)
	UpdateTurn(t Turn) error
	DeleteTurn(id string) error
	ListTurns(conversationID string) ([]Turn, error)
	CountTurns(conversationID string) (int, error)

	SaveAttachment(a Attachment) error
	GetAttachment(id string) (*Attachment, error)

	SaveSettings(ownerID string, s ModelSettings) error
	GetSettings(ownerID string) (*ModelSettings, error)

	Close() error
}

type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{conversationsBucket, turnsBucket, turnIndexBucket, attachmentsBucket, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveConversation(c Conversation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(conversationsBucket).Put([]byte(c.ID), data)
	})
}

func (s *BoltStore) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &c)
	})
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, nil
	}
	return &c, nil
}

func (s *BoltStore) ListConversations(ownerID string, limit int) ([]Conversation, error) {
	var out []Conversation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(_, v []byte) error {
			var c Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.OwnerID == ownerID {
				out = append(out, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteConversation removes the conversation record, all its turns, and
// their index entries in one transaction.
func (s *BoltStore) DeleteConversation(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(conversationsBucket).Delete([]byte(id)); err != nil {
			return err
		}

		idx := tx.Bucket(turnIndexBucket)
		if b := tx.Bucket(turnsBucket).Bucket([]byte(id)); b != nil {
			err := b.ForEach(func(_, v []byte) error {
				var t Turn
				if err := json.Unmarshal(v, &t); err != nil {
					return err
				}
				return idx.Delete([]byte(t.ID))
			})
			if err != nil {
				return err
			}
			if err := tx.Bucket(turnsBucket).DeleteBucket([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertTurn appends the turn to its conversation and assigns t.Seq. Sequence
// numbers are monotonic per conversation, so the bucket's key order is the
// insertion order.
func (s *BoltStore) InsertTurn(t *Turn) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(turnsBucket).CreateBucketIfNotExists([]byte(t.ConversationID))
		if err != nil {
			return err
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		t.Seq = seq

		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if err := b.Put(itob(seq), data); err != nil {
			return err
		}

		ref, err := json.Marshal(turnRef{ConversationID: t.ConversationID, Seq: seq})
		if err != nil {
			return err
		}
		return tx.Bucket(turnIndexBucket).Put([]byte(t.ID), ref)
	})
}

func (s *BoltStore) GetTurn(id string) (*Turn, error) {
	var t *Turn
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = lookupTurn(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *BoltStore) UpdateTurn(t Turn) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		cur, err := lookupTurn(tx, t.ID)
		if err != nil {
			return err
		}
		t.Seq = cur.Seq
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		return tx.Bucket(turnsBucket).Bucket([]byte(t.ConversationID)).Put(itob(t.Seq), data)
	})
}

func (s *BoltStore) DeleteTurn(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		t, err := lookupTurn(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(turnsBucket).Bucket([]byte(t.ConversationID)).Delete(itob(t.Seq)); err != nil {
			return err
		}
		return tx.Bucket(turnIndexBucket).Delete([]byte(id))
	})
}

// ListTurns returns all turns of a conversation in insertion order.
func (s *BoltStore) ListTurns(conversationID string) ([]Turn, error) {
	var out []Turn
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(turnsBucket).Bucket([]byte(conversationID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var t Turn
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) CountTurns(conversationID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(turnsBucket).Bucket([]byte(conversationID))
		if b == nil {
			return nil
		}
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

func (s *BoltStore) SaveAttachment(a Attachment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(attachmentsBucket).Put([]byte(a.ID), data)
	})
}

func (s *BoltStore) GetAttachment(id string) (*Attachment, error) {
	var a Attachment
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(attachmentsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &a)
	})
	if err != nil {
		return nil, err
	}
	if a.ID == "" {
		return nil, nil
	}
	return &a, nil
}

func (s *BoltStore) SaveSettings(ownerID string, m ModelSettings) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(settingsBucket).Put([]byte(ownerID), data)
	})
}

func (s *BoltStore) GetSettings(ownerID string) (*ModelSettings, error) {
	var m *ModelSettings
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(settingsBucket).Get([]byte(ownerID))
		if v == nil {
			return nil
		}
		m = &ModelSettings{}
		return json.Unmarshal(v, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

type turnRef struct {
	ConversationID string `json:"conversation_id"`
	Seq            uint64 `json:"seq"`
}

func lookupTurn(tx *bolt.Tx, id string) (*Turn, error) {
	v := tx.Bucket(turnIndexBucket).Get([]byte(id))
	if v == nil {
		return nil, ErrTurnNotFound
	}
	var ref turnRef
	if err := json.Unmarshal(v, &ref); err != nil {
		return nil, err
	}
	b := tx.Bucket(turnsBucket).Bucket([]byte(ref.ConversationID))
	if b == nil {
		return nil, ErrTurnNotFound
	}
	data := b.Get(itob(ref.Seq))
	if data == nil {
		return nil, ErrTurnNotFound
	}
	var t Turn
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
