package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yessika-commits/realish-time-llm-chat/core"
)

// ErrNotFound is returned when a conversation or message does not exist.
var ErrNotFound = errors.New("store: not found")

const (
	conversationPrefix = "conv:"
	messagePrefix      = "msg:"
	messageSeqKey      = "seq:message"
	seqBandwidth       = 64
)

// Store is the Badger-backed conversation store. Each exported method is a
// single transaction: committed on success, discarded on error.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *core.Logger
}

// Options configures the store backend.
type Options struct {
	// Dir is the directory for Badger data files. Required unless InMemory.
	Dir string
	// InMemory runs Badger without disk persistence. Useful for tests.
	InMemory bool
	Logger   *core.Logger
}

// Open opens (or creates) the conversation database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: Options.Dir is required for on-disk mode")
	}
	if opts.Logger == nil {
		opts.Logger = core.GetLogger()
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(messageSeqKey), seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: message sequence: %w", err)
	}
	return &Store{db: db, seq: seq, logger: opts.Logger}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("failed to release message sequence")
	}
	return s.db.Close()
}

func conversationKey(id string) []byte {
	return []byte(conversationPrefix + id)
}

// messageKey zero-pads the id so Badger's byte-ordered iteration yields
// messages in assignment order.
func messageKey(conversationID string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", messagePrefix, conversationID, id))
}

func messageScanPrefix(conversationID string) []byte {
	return []byte(messagePrefix + conversationID + ":")
}

// CreateConversation creates a conversation, generating an ID when none is
// given and defaulting the title to the placeholder. Creating an existing
// conversation returns the stored one unchanged.
func (s *Store) CreateConversation(ctx context.Context, id, title string) (*core.Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if title == "" {
		title = core.DefaultConversationTitle
	}

	conv := &core.Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if existing, err := getRecord[core.Conversation](txn, conversationKey(id)); err == nil {
			conv = existing
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return setRecord(txn, conversationKey(id), conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	var conv *core.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getRecord[core.Conversation](txn, conversationKey(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns every conversation, most recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]core.Conversation, error) {
	var out []core.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(conversationPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			var conv core.Conversation
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &conv)
			}); err != nil {
				return err
			}
			out = append(out, conv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// RenameConversation sets a new title, reporting whether the conversation
// existed.
func (s *Store) RenameConversation(ctx context.Context, id, title string) (bool, error) {
	renamed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		conv, err := getRecord[core.Conversation](txn, conversationKey(id))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		conv.Title = title
		conv.UpdatedAt = time.Now().UTC()
		if err := setRecord(txn, conversationKey(id), conv); err != nil {
			return err
		}
		renamed = true
		return nil
	})
	return renamed, err
}

// DeleteConversation removes a conversation and cascades to its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := getRecord[core.Conversation](txn, conversationKey(id)); errors.Is(err, ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if err := txn.Delete(conversationKey(id)); err != nil {
			return err
		}
		keys, err := collectKeys(txn, messageScanPrefix(id))
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// DeleteAllConversations wipes every conversation and message.
func (s *Store) DeleteAllConversations(ctx context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{[]byte(conversationPrefix), []byte(messagePrefix)} {
			keys, err := collectKeys(txn, prefix)
			if err != nil {
				return err
			}
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// AppendMessage inserts a message with the next monotonic ID, creating the
// conversation with the placeholder title when it does not exist yet.
func (s *Store) AppendMessage(ctx context.Context, msg core.Message) (*core.Message, error) {
	next, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("store: next message id: %w", err)
	}
	msg.ID = next + 1 // sequence starts at zero; ids start at one
	msg.CreatedAt = time.Now().UTC()

	err = s.db.Update(func(txn *badger.Txn) error {
		conv, err := getRecord[core.Conversation](txn, conversationKey(msg.ConversationID))
		if errors.Is(err, ErrNotFound) {
			conv = &core.Conversation{
				ID:        msg.ConversationID,
				Title:     core.DefaultConversationTitle,
				CreatedAt: time.Now().UTC(),
			}
		} else if err != nil {
			return err
		}
		conv.UpdatedAt = time.Now().UTC()
		if err := setRecord(txn, conversationKey(conv.ID), conv); err != nil {
			return err
		}
		return setRecord(txn, messageKey(msg.ConversationID, msg.ID), &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetMessageAudioPath attaches an audio reference to a stored message.
func (s *Store) SetMessageAudioPath(ctx context.Context, conversationID string, messageID uint64, audioPath string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := messageKey(conversationID, messageID)
		msg, err := getRecord[core.Message](txn, key)
		if err != nil {
			return err
		}
		msg.AudioPath = audioPath
		return setRecord(txn, key, msg)
	})
}

// Messages returns the conversation history in ascending ID order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]core.Message, error) {
	var out []core.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messageScanPrefix(conversationID)
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg core.Message
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getRecord[T any](txn *badger.Txn, key []byte) (*T, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec T
	if err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

func setRecord[T any](txn *badger.Txn, key []byte, rec *T) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func collectKeys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	iterOpts.PrefetchValues = false
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// badgerLogger routes badger's own output through the application logger,
// suppressing info and debug chatter.
type badgerLogger struct {
	logger *core.Logger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.logger.Errorf("[badger] "+f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.logger.Warnf("[badger] "+f, v...) }
func (b badgerLogger) Infof(string, ...interface{})        {}
func (b badgerLogger) Debugf(string, ...interface{})       {}
