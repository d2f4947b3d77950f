package storage

import (
	"fmt"

	"erpadmin/internal/platform/crypto"
)

// SealedKV encrypts values at rest before handing them to the wrapped store.
type SealedKV struct {
	KV
	sealer *crypto.Service
}

func NewSealed(kv KV, sealer *crypto.Service) *SealedKV {
	return &SealedKV{KV: kv, sealer: sealer}
}

func (s *SealedKV) Get(key string) ([]byte, error) {
	sealed, err := s.KV.Get(key)
	if err != nil {
		return nil, err
	}
	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return plain, nil
}

func (s *SealedKV) Put(entries map[string][]byte) error {
	sealed := make(map[string][]byte, len(entries))
	for key, value := range entries {
		out, err := s.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("seal %s: %w", key, err)
		}
		sealed[key] = out
	}
	return s.KV.Put(sealed)
}
