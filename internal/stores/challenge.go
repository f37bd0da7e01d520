package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeRecordVersion1 = 1
	maxChallengeLen         = 1024
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeMismatch = errors.New("challenge mismatch")
	ErrChallengeBackend  = errors.New("challenge backend unavailable")
)

// ChallengeKind namespaces challenges so an RSA and a passkey challenge for the same
// identity can coexist.
type ChallengeKind string

const (
	ChallengeRSA     ChallengeKind = "rsa"
	ChallengePasskey ChallengeKind = "pk"
)

// Challenge is the stored record for one outstanding challenge.
type Challenge struct {
	Value     string
	ExpiresAt int64
	Attempts  uint16
}

// ChallengeStore keeps at most one outstanding challenge per (kind, identity).
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewChallengeStore returns a store using prefix for its keys (default "ach").
func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "ach"
	}
	return &ChallengeStore{redis: redisClient, prefix: prefix, now: time.Now}
}

func (s *ChallengeStore) key(kind ChallengeKind, identityID int64) string {
	return s.prefix + ":" + string(kind) + ":" + strconv.FormatInt(identityID, 10)
}

// Issue stores value as the outstanding challenge, replacing any previous one.
func (s *ChallengeStore) Issue(ctx context.Context, kind ChallengeKind, identityID int64, value string, ttl time.Duration) (*Challenge, error) {
	record := &Challenge{Value: value, ExpiresAt: s.now().Add(ttl).Unix()}
	encoded, err := encodeChallenge(record)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, s.key(kind, identityID), encoded, ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return record, nil
}

// Get returns the outstanding challenge without consuming it.
func (s *ChallengeStore) Get(ctx context.Context, kind ChallengeKind, identityID int64) (*Challenge, error) {
	key := s.key(kind, identityID)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	record, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, key).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Consume deletes the challenge if it still equals presented. Exactly one of several
// concurrent callers presenting the right value succeeds.
func (s *ChallengeStore) Consume(ctx context.Context, kind ChallengeKind, identityID int64, presented string) error {
	const maxRetries = 4
	key := s.key(kind, identityID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}
			if s.now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}
			if subtle.ConstantTimeCompare([]byte(record.Value), []byte(presented)) != 1 {
				return ErrChallengeMismatch
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.Nil):
			return ErrChallengeNotFound
		case errors.Is(err, ErrChallengeExpired), errors.Is(err, ErrChallengeMismatch):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
	}
	return ErrChallengeNotFound
}

// RecordFailure counts a failed proof against the challenge and drops it once
// maxAttempts is reached. It reports whether the challenge was dropped.
func (s *ChallengeStore) RecordFailure(ctx context.Context, kind ChallengeKind, identityID int64, maxAttempts int) (bool, error) {
	const maxRetries = 4
	key := s.key(kind, identityID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}

			record.Attempts++
			ttl := time.Unix(record.ExpiresAt, 0).Sub(s.now())
			if int(record.Attempts) >= maxAttempts || ttl <= 0 {
				exceeded = int(record.Attempts) >= maxAttempts
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrChallengeNotFound
			}
			return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return exceeded, nil
	}
	return false, ErrChallengeNotFound
}

func encodeChallenge(record *Challenge) ([]byte, error) {
	if len(record.Value) > maxChallengeLen {
		return nil, errors.New("challenge value too long")
	}
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)
	_ = binary.Write(&buf, binary.BigEndian, record.Attempts)
	_ = binary.Write(&buf, binary.BigEndian, record.ExpiresAt)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(record.Value)))
	buf.WriteString(record.Value)
	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &Challenge{}
	if err := binary.Read(r, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	value := make([]byte, n)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, err
	}
	record.Value = string(value)
	return record, nil
}
