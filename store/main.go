// Package store keeps named save slots of simulations in an embedded key-value store.
//
// Each slot has two keys: save:<id>:blob holds the zstd-compressed save and
// save:<id>:info holds an msgpack-encoded Info.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/buntdb"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/shingo/sim"
)

var ErrNotFound = errors.New("save not found")

type Info struct {
	ID    uuid.UUID `msgpack:"id"`
	Name  string    `msgpack:"name"`
	Tick  int64     `msgpack:"tick"`
	Saved time.Time `msgpack:"saved"`
	// Size is the uncompressed save size in bytes.
	Size int `msgpack:"size"`
}

type Store struct {
	db  *buntdb.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the database at path. ":memory:" keeps everything in memory.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

func (s *Store) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func blobKey(id uuid.UUID) string {
	return fmt.Sprintf("save:%s:blob", id)
}

func infoKey(id uuid.UUID) string {
	return fmt.Sprintf("save:%s:info", id)
}

// Save stores the current state of c in a new slot. It must only be called between ticks.
func (s *Store) Save(ctx context.Context, name string, c *sim.Context) (uuid.UUID, error) {
	var buf bytes.Buffer
	if err := c.Save(&buf); err != nil {
		return uuid.UUID{}, fmt.Errorf("save: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return uuid.UUID{}, err
	}
	info := Info{
		ID:    uuid.New(),
		Name:  name,
		Tick:  c.Ticks(),
		Saved: time.Now().UTC(),
		Size:  buf.Len(),
	}
	infoData, err := msgpack.Marshal(info)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("encode info: %w", err)
	}
	blob := s.enc.EncodeAll(buf.Bytes(), nil)
	err = s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(blobKey(info.ID), string(blob), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(infoKey(info.ID), string(infoData), nil)
		return err
	})
	if err != nil {
		return uuid.UUID{}, err
	}
	zap.S().Infow("saved",
		"id", info.ID,
		"name", name,
		"tick", info.Tick,
		"size", info.Size,
		"compressed", len(blob),
	)
	return info.ID, nil
}

// Load restores slot id into c. c is unchanged on error.
func (s *Store) Load(id uuid.UUID, c *sim.Context) error {
	var blob string
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		blob, err = tx.Get(blobKey(id))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	data, err := s.dec.DecodeAll([]byte(blob), nil)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", id, err)
	}
	if err := c.Restore(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("restore %s: %w", id, err)
	}
	return nil
}

// List returns every slot, oldest first.
func (s *Store) List() ([]Info, error) {
	var res []Info
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("save:*:info", func(key, value string) bool {
			var info Info
			if err := msgpack.Unmarshal([]byte(value), &info); err != nil {
				zap.S().Errorw("unmarshalling failed", "key", key, "err", err)
				return true
			}
			res = append(res, info)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(res, func(a, b Info) int {
		return a.Saved.Compare(b.Saved)
	})
	return res, nil
}

// Delete removes slot id.
func (s *Store) Delete(id uuid.UUID) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, key := range []string{blobKey(id), infoKey(id)} {
			if _, err := tx.Delete(key); err != nil {
				if errors.Is(err, buntdb.ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrNotFound, id)
				}
				return err
			}
		}
		return nil
	})
}
