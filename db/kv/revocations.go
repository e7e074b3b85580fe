package kv

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/aimo-network/aimo/keys"
)

// RevokeKey decodes an encoded secret key and persists its content hash with
// the current timestamp. Revocation is idempotent: re-revoking a key keeps
// the original timestamp.
func (s *Store) RevokeKey(_ context.Context, encodedKey string) error {
	_, key, err := keys.Decode(encodedKey)
	if err != nil {
		return err
	}
	hash, err := key.ContentHash()
	if err != nil {
		return err
	}
	now := make([]byte, 8)
	binary.BigEndian.PutUint64(now, uint64(time.Now().UnixMilli()))

	err = s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(revokedKeysBucket)
		if bkt.Get(hash[:]) != nil {
			return nil
		}
		return bkt.Put(hash[:], now)
	})
	if err != nil {
		return errors.Wrap(err, "could not persist key revocation")
	}
	log.WithField("signer", key.Signer).Debug("Revoked secret key")
	return nil
}

// IsKeyRevoked reports whether the key's content hash is present in the
// revocation set.
func (s *Store) IsKeyRevoked(_ context.Context, key *keys.SecretKey) (bool, error) {
	hash, err := key.ContentHash()
	if err != nil {
		return false, err
	}
	var revoked bool
	err = s.db.View(func(tx *bolt.Tx) error {
		revoked = tx.Bucket(revokedKeysBucket).Get(hash[:]) != nil
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "could not read key revocation")
	}
	return revoked, nil
}

// RevokedAt returns the unix-millisecond timestamp at which the key was
// revoked, or 0 when the key is not revoked.
func (s *Store) RevokedAt(_ context.Context, key *keys.SecretKey) (int64, error) {
	hash, err := key.ContentHash()
	if err != nil {
		return 0, err
	}
	var at int64
	err = s.db.View(func(tx *bolt.Tx) error {
		if enc := tx.Bucket(revokedKeysBucket).Get(hash[:]); enc != nil {
			at = int64(binary.BigEndian.Uint64(enc))
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "could not read key revocation")
	}
	return at, nil
}
